package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/devices"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/services"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/utils/web/server"
	"gvisor.dev/gvisor/pkg/hostarch"
)

// MmapHandler mapea el archivo Path (relativo a files_path) en el espacio del proceso.
func MmapHandler(vm *services.VM) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.MmapRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		process, err := vm.Process(req.PID)
		if err != nil {
			sendError(w, err)
			return
		}

		path := filepath.Join(vm.Config().FilesPath, filepath.Clean("/"+req.Path))
		file, err := devices.OpenFile(path, req.Writable)
		if err != nil {
			slog.Error("No se pudo abrir el archivo a mapear", "path", path, "error", err)
			sendError(w, fmt.Errorf("abriendo %s: %w", req.Path, models.ErrInvalidMapping))
			return
		}
		// Mmap trabaja sobre su propio handle reabierto.
		defer file.Close()

		addr, err := process.Mmap(hostarch.Addr(req.Address), req.Length, req.Writable, file, req.Offset)
		if err != nil {
			sendError(w, err)
			return
		}
		server.SendJsonResponse(w, models.MmapResponse{Address: uint64(addr)})
	}
}

// MunmapHandler deshace el mapeo que empieza en Address.
func MunmapHandler(vm *services.VM) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.MunmapRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		process, err := vm.Process(req.PID)
		if err != nil {
			sendError(w, err)
			return
		}

		if err := process.Munmap(hostarch.Addr(req.Address)); err != nil {
			sendError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
