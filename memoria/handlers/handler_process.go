package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/helpers"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/services"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/utils/web/server"
)

// CreateProcessHandler da de alta el espacio de direcciones de un proceso y opcionalmente arma su stack.
func CreateProcessHandler(vm *services.VM) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.CreateProcessRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		process, err := vm.CreateProcess(req.PID)
		if err != nil {
			slog.Error("Error creando proceso", "pid", req.PID, "error", err)
			sendError(w, err)
			return
		}
		if req.SetupStack {
			if err := process.SetupStack(); err != nil {
				if exitErr := vm.Exit(req.PID); exitErr != nil {
					slog.Error("Error liberando proceso sin stack", "pid", req.PID, "error", exitErr)
				}
				sendError(w, err)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

// ForkHandler duplica el espacio de direcciones del padre en un hijo nuevo.
func ForkHandler(vm *services.VM) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.ForkRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		if _, err := vm.Fork(req.ParentPID, req.ChildPID); err != nil {
			sendError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// DumpHandler devuelve como texto la tabla de páginas suplementaria del proceso.
func DumpHandler(vm *services.VM) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.PIDRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		process, err := vm.Process(req.PID)
		if err != nil {
			sendError(w, err)
			return
		}
		// El dump queda en dump_path y además se devuelve en la respuesta.
		file, err := helpers.CreateDumpFile(vm.Config().DumpPath, req.PID)
		if err != nil {
			slog.Error("Error creando archivo de dump", "pid", req.PID, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer file.Close()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := process.Dump(io.MultiWriter(file, w)); err != nil {
			slog.Error("Error generando dump", "pid", req.PID, "error", err)
		}
	}
}

// sendError responde con el status HTTP y el errno que corresponden al error.
func sendError(w http.ResponseWriter, err error) {
	errno := services.Errno(err)
	status := http.StatusUnprocessableEntity
	switch {
	case errors.Is(err, models.ErrNoSuchProcess):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrAddressAlreadyMapped), errors.Is(err, models.ErrProcessExists):
		status = http.StatusConflict
	case errors.Is(err, models.ErrOutOfMemory):
		status = http.StatusInsufficientStorage
	case errors.Is(err, models.ErrIO):
		status = http.StatusInternalServerError
	}
	slog.Debug("Respondiendo error", "status", status, "error", err)
	server.SendJsonResponseWithStatus(w, status, models.ErrorResponse{Error: err.Error(), Errno: errno.Error()})
}
