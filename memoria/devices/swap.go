package devices

import (
	"fmt"
	"log/slog"
	"os"

	"gvisor.dev/gvisor/pkg/hostarch"
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
)

// SwapDisk es el dispositivo de swap: un archivo del host dividido en slots de una página.
// El slot i vive en el offset i * PageSize.
type SwapDisk struct {
	mu        sync.Mutex
	file      *os.File
	freeSlots []bool // true = libre
	used      int
}

// OpenSwapDisk crea (o trunca) el archivo de swap con lugar para slots páginas.
func OpenSwapDisk(path string, slots int) (*SwapDisk, error) {
	if slots <= 0 {
		return nil, fmt.Errorf("cantidad de slots inválida: %d", slots)
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("no se pudo abrir swapfile: %w", err)
	}
	if err := file.Truncate(int64(slots) * hostarch.PageSize); err != nil {
		file.Close()
		return nil, fmt.Errorf("no se pudo dimensionar swapfile: %w", err)
	}

	freeSlots := make([]bool, slots)
	for i := range freeSlots {
		freeSlots[i] = true
	}

	slog.Debug("Swap inicializado", "path", path, "slots", slots)
	return &SwapDisk{file: file, freeSlots: freeSlots}, nil
}

// AllocSlot reserva un slot libre.
func (s *SwapDisk) AllocSlot() (models.SlotID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, free := range s.freeSlots {
		if free {
			s.freeSlots[i] = false
			s.used++
			return models.SlotID(i), nil
		}
	}
	return models.NoSlot, fmt.Errorf("swap lleno: %w", models.ErrOutOfMemory)
}

// Free libera el slot. Liberar NoSlot no hace nada.
func (s *SwapDisk) Free(slot models.SlotID) {
	if slot == models.NoSlot {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.freeSlots[slot] {
		slog.Warn("Se intentó liberar un slot de swap ya libre", "slot", slot)
		return
	}
	s.freeSlots[slot] = true
	s.used--
}

// Write escribe una página completa en el slot.
func (s *SwapDisk) Write(slot models.SlotID, page []byte) error {
	n, err := s.file.WriteAt(page[:hostarch.PageSize], s.offset(slot))
	if err != nil || n != hostarch.PageSize {
		return fmt.Errorf("escritura en swap slot %d (%d bytes): %v: %w", slot, n, err, models.ErrIO)
	}
	return nil
}

// Read lee el slot completo en page.
func (s *SwapDisk) Read(slot models.SlotID, page []byte) error {
	n, err := s.file.ReadAt(page[:hostarch.PageSize], s.offset(slot))
	if n != hostarch.PageSize {
		return fmt.Errorf("lectura de swap slot %d (%d bytes): %v: %w", slot, n, err, models.ErrIO)
	}
	return nil
}

func (s *SwapDisk) Slots() int {
	return len(s.freeSlots)
}

func (s *SwapDisk) UsedSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

func (s *SwapDisk) Close() error {
	return s.file.Close()
}

func (s *SwapDisk) offset(slot models.SlotID) int64 {
	if slot < 0 || int(slot) >= len(s.freeSlots) {
		panic(fmt.Sprintf("slot de swap fuera de rango: %d", slot))
	}
	return int64(slot) * hostarch.PageSize
}
