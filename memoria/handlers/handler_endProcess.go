package handlers

import (
	"log/slog"
	"net/http"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/services"
)

// ExitProcessHandler destruye el espacio de direcciones del proceso.
func ExitProcessHandler(vm *services.VM) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		//VALIDACION METODO HTTP
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		//Recibe el PID del proceso a finalizar
		var req models.PIDRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		if err := vm.Exit(req.PID); err != nil {
			// El proceso ya no existe aunque el teardown haya fallado parcialmente.
			slog.Warn("Teardown con errores", "pid", req.PID, "error", err)
			sendError(w, err)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
