package devices

import (
	"errors"
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/unix"
	"gvisor.dev/gvisor/pkg/hostarch"
	"gvisor.dev/gvisor/pkg/memutil"
	"gvisor.dev/gvisor/pkg/safemem"
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
)

// PhysMem es el pool de marcos de usuario. La memoria sale de un memfd del host mapeado de una
// sola vez; cada marco es una página de ese mapeo y su offset en el memfd.
type PhysMem struct {
	mu         sync.Mutex
	fd         int
	arena      []byte
	base       models.PhysAddr
	freeFrames []bool // true = libre
	freeCount  int
}

// NewPhysMem reserva frames marcos de hostarch.PageSize bytes.
func NewPhysMem(frames int) (*PhysMem, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("cantidad de marcos inválida: %d", frames)
	}
	size := frames * hostarch.PageSize
	fd, err := memutil.CreateMemFD("memoria-user-pool", 0)
	if err != nil {
		return nil, fmt.Errorf("no se pudo crear el memfd del pool: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("no se pudo dimensionar el pool de marcos: %w", err)
	}
	arena, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("no se pudo mapear el pool de marcos: %w", err)
	}

	freeFrames := make([]bool, frames)
	for i := range freeFrames {
		freeFrames[i] = true
	}

	slog.Debug("Pool de marcos inicializado", "marcos", frames, "bytes", len(arena))
	return &PhysMem{
		fd:         fd,
		arena:      arena,
		base:       models.PhysAddr(uintptr(unsafe.Pointer(&arena[0]))),
		freeFrames: freeFrames,
		freeCount:  frames,
	}, nil
}

// AllocZeroedPage entrega un marco libre en cero, o ErrOutOfMemory si el pool está agotado.
func (m *PhysMem) AllocZeroedPage() (models.PhysAddr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, free := range m.freeFrames {
		if free {
			m.freeFrames[i] = false
			m.freeCount--
			pa := m.base + models.PhysAddr(i*hostarch.PageSize)
			if _, err := safemem.Zero(safemem.BlockFromSafeSlice(m.page(i))); err != nil {
				return 0, fmt.Errorf("no se pudo limpiar el marco %d: %w", i, err)
			}
			return pa, nil
		}
	}
	return 0, models.ErrOutOfMemory
}

// Free devuelve el marco al pool y libera sus páginas en el host haciendo un agujero en el memfd.
func (m *PhysMem) Free(pa models.PhysAddr) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.index(pa)
	if m.freeFrames[i] {
		slog.Warn("Se intentó liberar un marco ya libre", "marco", i)
		return
	}
	off := int64(i) * hostarch.PageSize
	if err := unix.Fallocate(m.fd, unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, off, hostarch.PageSize); err != nil {
		slog.Debug("No se pudo liberar el marco en el host", "marco", i, "error", err)
	}
	m.freeFrames[i] = true
	m.freeCount++
}

// Page devuelve los bytes del marco.
func (m *PhysMem) Page(pa models.PhysAddr) []byte {
	return m.page(m.index(pa))
}

func (m *PhysMem) Frames() int {
	return len(m.freeFrames)
}

func (m *PhysMem) FreeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freeCount
}

// Close libera el mapeo del host. No se puede usar el pool después.
func (m *PhysMem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.arena == nil {
		return nil
	}
	err := errors.Join(unix.Munmap(m.arena), unix.Close(m.fd))
	m.arena = nil
	return err
}

func (m *PhysMem) index(pa models.PhysAddr) int {
	off := uintptr(pa - m.base)
	i := int(off / hostarch.PageSize)
	if pa < m.base || off%hostarch.PageSize != 0 || i >= len(m.freeFrames) {
		panic(fmt.Sprintf("dirección física fuera del pool: %#x", uintptr(pa)))
	}
	return i
}

func (m *PhysMem) page(i int) []byte {
	start := i * hostarch.PageSize
	return m.arena[start : start+hostarch.PageSize : start+hostarch.PageSize]
}
