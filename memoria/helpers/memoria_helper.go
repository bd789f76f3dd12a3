package helpers

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/devices"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/services"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/utils/config"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/utils/log"
)

// crea un directorio en el path especificado.
func CreateDirectory(dir string) {
	err := os.MkdirAll(dir, os.ModePerm)

	if err != nil {
		slog.Error(fmt.Sprintf("Error al crear el directorio %s: %v", dir, err))
		return
	}

	slog.Debug(fmt.Sprintf("Directorio %s creado o ya existía.", dir))
}

// crea el archivo
func CreateFile(file string) error {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)

	if err != nil {
		slog.Error(fmt.Sprintf("Error al crear el archivo: %v", err))
		return err
	}

	return f.Close()
}

// InitMemory carga el config (o los valores por defecto si no existe), levanta el logger y crea
// los directorios que usa el módulo.
func InitMemory(configPath string, logPath string) error {
	if err := config.LoadConfig(configPath, &models.MemoryConfig); err != nil {
		models.MemoryConfig = models.DefaultConfig()
		defer slog.Warn("No se pudo leer el config, se usan valores por defecto", "error", err)
	}
	CreateDirectory(filepath.Dir(logPath))
	log.InitLogger(logPath, models.MemoryConfig.LogLevel)

	if err := models.MemoryConfig.Validate(); err != nil {
		return fmt.Errorf("config inválido: %w", err)
	}

	slog.Debug(fmt.Sprintf("Port Memory: %d", models.MemoryConfig.PortMemory))
	CreateDirectory(models.MemoryConfig.DumpPath)
	CreateDirectory(models.MemoryConfig.FilesPath)
	slog.Debug(fmt.Sprintf("Swap: %s", models.MemoryConfig.SwapFilePath))
	return nil
}

// BuildVM arma el pool físico y el disco de swap según el config y devuelve la VM junto con la
// función que libera ambos recursos.
func BuildVM(cfg *models.Config) (*services.VM, func() error, error) {
	phys, err := devices.NewPhysMem(cfg.UserPoolFrames)
	if err != nil {
		return nil, nil, err
	}

	swap, err := devices.OpenSwapDisk(cfg.SwapFilePath, cfg.SwapSlots)
	if err != nil {
		return nil, nil, errors.Join(err, phys.Close())
	}

	slog.Debug("Memoria inicializada", "frames", cfg.UserPoolFrames, "swap_slots", cfg.SwapSlots)
	closeFn := func() error {
		return errors.Join(swap.Close(), phys.Close())
	}
	return services.NewVM(cfg, phys, swap), closeFn, nil
}

func GetDumpName(pid uint) string {
	timestamp := time.Now().Format("20060102-150405")
	return fmt.Sprintf("%d-%s.dmp", pid, timestamp)
}

// CreateDumpFile crea el archivo de dump del proceso en dump_path.
func CreateDumpFile(dumpPath string, pid uint) (*os.File, error) {
	path := filepath.Join(dumpPath, GetDumpName(pid))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("no se pudo crear el dump %s: %w", path, err)
	}
	slog.Debug("Archivo de dump creado", "path", path)
	return file, nil
}
