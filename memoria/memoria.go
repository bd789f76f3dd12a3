package main

import (
	"fmt"
	"log/slog"
	"net/http"

	memoryHandler "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/handlers"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/helpers"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/utils/web/handlers"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/utils/web/server"
)

const (
	//NO borrar el comentario de ConfigPath
	ConfigPath = "memoria/configs/memoria.json" //"./configs/memoria.json"
	LogPath    = "./logs/memoria.log"           //"./memoria.log"
)

func main() {
	if err := helpers.InitMemory(ConfigPath, LogPath); err != nil {
		slog.Error(err.Error())
		panic(err)
	}

	vm, closeVM, err := helpers.BuildVM(models.MemoryConfig)
	if err != nil {
		slog.Error(fmt.Sprintf("error inicializando la memoria virtual: %v", err))
		panic(err)
	}
	defer closeVM()

	http.HandleFunc("GET /", handlers.HandshakeHandler("Bienvenido al módulo de Memoria"))
	http.HandleFunc("GET /memoria", handlers.HandshakeHandler("Memoria en funcionamiento 🚀"))
	http.HandleFunc("GET /config/memoria", memoryHandler.MemoryConfigHandler(vm))

	http.HandleFunc("POST /vm/process", memoryHandler.CreateProcessHandler(vm))
	http.HandleFunc("POST /vm/fault", memoryHandler.FaultHandler(vm))
	http.HandleFunc("POST /vm/read", memoryHandler.ReadMemoryHandler(vm))
	http.HandleFunc("POST /vm/write", memoryHandler.WriteHandler(vm))
	http.HandleFunc("POST /vm/mmap", memoryHandler.MmapHandler(vm))
	http.HandleFunc("POST /vm/munmap", memoryHandler.MunmapHandler(vm))
	http.HandleFunc("POST /vm/fork", memoryHandler.ForkHandler(vm))
	http.HandleFunc("POST /vm/exit", memoryHandler.ExitProcessHandler(vm))
	http.HandleFunc("POST /vm/dump", memoryHandler.DumpHandler(vm))
	http.HandleFunc("GET /vm/stats", memoryHandler.StatsHandler(vm))
	slog.Info("Memoria lista")

	err = server.InitServer(models.MemoryConfig.PortMemory)
	if err != nil {
		slog.Error(fmt.Sprintf("error initializing server: %v", err))
		panic(err)
	}
}
