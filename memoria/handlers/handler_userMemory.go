package handlers

import (
	"log/slog"
	"net/http"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/services"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/utils/web/server"
	"gvisor.dev/gvisor/pkg/hostarch"
)

// FaultHandler resuelve un page fault reportado por la CPU.
func FaultHandler(vm *services.VM) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.FaultRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		process, err := vm.Process(req.PID)
		if err != nil {
			sendError(w, err)
			return
		}

		fault := services.Fault{
			Addr:       hostarch.Addr(req.Address),
			User:       req.User,
			Write:      req.Write,
			NotPresent: req.NotPresent,
			RSP:        hostarch.Addr(req.RSP),
		}
		if err := process.HandleFault(fault); err != nil {
			slog.Debug("Fault no resuelto", "pid", req.PID, "address", fault.Addr, "error", err)
			sendError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// ReadMemoryHandler lee Size bytes del espacio de usuario del proceso a partir de Address.
func ReadMemoryHandler(vm *services.VM) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.ReadRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		process, err := vm.Process(req.PID)
		if err != nil {
			sendError(w, err)
			return
		}

		data, err := process.Read(hostarch.Addr(req.Address), req.Size)
		if err != nil {
			sendError(w, err)
			return
		}
		server.SendJsonResponse(w, models.ReadResponse{Data: data})
	}
}

// WriteHandler escribe Data en el espacio de usuario del proceso a partir de Address.
func WriteHandler(vm *services.VM) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.WriteRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		process, err := vm.Process(req.PID)
		if err != nil {
			sendError(w, err)
			return
		}

		if err := process.Write(hostarch.Addr(req.Address), req.Data); err != nil {
			sendError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
