package models

import (
	"fmt"

	"gvisor.dev/gvisor/pkg/hostarch"
)

type Config struct {
	PortMemory     int    `json:"port_memory"`
	UserPoolFrames int    `json:"user_pool_frames"`
	SwapFilePath   string `json:"swap_file_path"`
	SwapSlots      int    `json:"swap_slots"`
	UserStackTop   uint64 `json:"user_stack_top"`
	StackMaxSize   uint64 `json:"stack_max_size"`
	StackSlack     uint64 `json:"stack_slack"`
	KernelBase     uint64 `json:"kernel_base"`
	FilesPath      string `json:"files_path"`
	LogLevel       string `json:"log_level"`
	DumpPath       string `json:"dump_path"`
}

var MemoryConfig *Config

// Valores por defecto, los mismos que usa el kernel de referencia (x86-64).
const (
	DefaultUserStackTop = 0x47480000
	DefaultStackMaxSize = 1 << 20
	DefaultStackSlack   = 8
	DefaultKernelBase   = 0x8004000000
)

// DefaultConfig devuelve una configuración usable para tests y para levantar el módulo sin archivo.
func DefaultConfig() *Config {
	return &Config{
		PortMemory:     8002,
		UserPoolFrames: 64,
		SwapFilePath:   "./swapfile.bin",
		SwapSlots:      256,
		UserStackTop:   DefaultUserStackTop,
		StackMaxSize:   DefaultStackMaxSize,
		StackSlack:     DefaultStackSlack,
		KernelBase:     DefaultKernelBase,
		FilesPath:      "./files/",
		LogLevel:       "INFO",
		DumpPath:       "./dump_files/",
	}
}

// Validate verifica que los valores leídos del config tengan sentido antes de inicializar la VM.
func (c *Config) Validate() error {
	if c.UserPoolFrames <= 0 {
		return fmt.Errorf("user_pool_frames debe ser positivo, se recibió %d", c.UserPoolFrames)
	}
	if c.SwapSlots <= 0 {
		return fmt.Errorf("swap_slots debe ser positivo, se recibió %d", c.SwapSlots)
	}
	if !hostarch.Addr(c.UserStackTop).IsPageAligned() {
		return fmt.Errorf("user_stack_top %#x no está alineado a página", c.UserStackTop)
	}
	if c.UserStackTop >= c.KernelBase {
		return fmt.Errorf("user_stack_top %#x debe estar por debajo de kernel_base %#x", c.UserStackTop, c.KernelBase)
	}
	if c.StackMaxSize < hostarch.PageSize || c.StackMaxSize > c.UserStackTop {
		return fmt.Errorf("stack_max_size %d fuera de rango", c.StackMaxSize)
	}
	return nil
}
