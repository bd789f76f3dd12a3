package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/services"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/utils/web/server"
)

// MemoryConfigHandler devuelve la configuración con la que se levantó la VM.
func MemoryConfigHandler(vm *services.VM) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		server.SendJsonResponse(w, vm.Config())
	}
}

// StatsHandler devuelve el estado global de la tabla de marcos y del swap.
func StatsHandler(vm *services.VM) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		server.SendJsonResponse(w, vm.Stats())
	}
}

// decodeRequest decodifica el body JSON; si falla responde 400 y devuelve false.
func decodeRequest(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		slog.Error("Invalid request", "path", r.URL.Path, "error", err)
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return false
	}
	return true
}
