package services

import (
	"errors"
	"fmt"
	"log/slog"

	"gvisor.dev/gvisor/pkg/atomicbitops"
	"gvisor.dev/gvisor/pkg/hostarch"
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/utils/list"
)

// Frame es un marco físico residente. La página que lo ocupa se identifica por (owner, va), nunca
// por puntero: la tabla de páginas del proceso es la dueña de la página.
type Frame struct {
	ID    models.FrameID
	Phys  models.PhysAddr
	owner *Process
	va    hostarch.Addr

	// pinned mientras se carga el contenido; el reloj no lo elige como víctima.
	pinned bool
}

// FrameTable es la tabla global de marcos. mu cubre la selección de víctima, el guardado de la
// víctima y la reasignación del marco, y también el campo Frame de toda página. El lock de
// filesystem se toma siempre adentro de mu, nunca al revés.
type FrameTable struct {
	mu   sync.Mutex
	phys PhysAllocator

	// unpinned se señala (con mu tomado) cuando un marco deja de estar pinned o vuelve al pool.
	unpinned sync.Cond

	// frames está indexado por FrameID; nil si el id está libre.
	frames []*Frame
	freeID []models.FrameID

	// ring es el orden circular que recorre el reloj y hand la posición de la aguja.
	ring list.ArrayList[models.FrameID]
	hand int

	evictions atomicbitops.Uint64
	lastScan  int // marcos inspeccionados en la última selección de víctima
}

func NewFrameTable(phys PhysAllocator) *FrameTable {
	ft := &FrameTable{phys: phys}
	ft.unpinned.L = &ft.mu
	return ft
}

// acquire devuelve un marco vacío asignado a (owner, page.VA), marcado como pinned. Si el pool
// está agotado desaloja una víctima con el algoritmo del reloj. Si todos los marcos están pinned
// por cargas de otros procesos espera a que alguno se libere.
func (ft *FrameTable) acquire(owner *Process, page *models.Page) (*Frame, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	if page.Frame != models.NoFrame {
		return nil, fmt.Errorf("la página %v ya está residente en el marco %d: %w", page.VA, page.Frame, models.ErrAddressAlreadyMapped)
	}

	var frame *Frame
	for {
		pa, err := ft.phys.AllocZeroedPage()
		if err == nil {
			frame = ft.newFrameLocked(pa)
			break
		}
		if !errors.Is(err, models.ErrOutOfMemory) {
			return nil, err
		}

		if victim := ft.victimLocked(); victim != nil {
			if err := ft.evictLocked(victim); err != nil {
				return nil, err
			}
			clear(ft.phys.Page(victim.Phys))
			frame = victim
			break
		}
		if !ft.pinnedByOthersLocked(owner) {
			return nil, fmt.Errorf("no hay marcos desalojables: %w", models.ErrOutOfMemory)
		}
		slog.Debug("Todos los marcos están pinned, esperando", "pid", owner.pid, "va", page.VA)
		ft.unpinned.Wait() // suelta mu mientras espera
	}

	frame.owner = owner
	frame.va = page.VA
	frame.pinned = true
	return frame, nil
}

// link deja la página residente en el marco y lo despina.
func (ft *FrameTable) link(frame *Frame, page *models.Page) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	page.Frame = frame.ID
	frame.pinned = false
	ft.unpinned.Broadcast()
}

// release saca el marco de la tabla y lo devuelve al pool.
func (ft *FrameTable) release(frame *Frame) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.releaseLocked(frame)
}

// detach libera el marco de una página residente. Antes de soltarlo llama a persist con el lock
// tomado para que ningún desalojo concurrente toque la misma página.
func (ft *FrameTable) detach(page *models.Page, persist func(frame *Frame) error) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	if page.Frame == models.NoFrame {
		return nil
	}
	frame := ft.frames[page.Frame]
	err := persist(frame)
	page.Frame = models.NoFrame
	ft.releaseLocked(frame)
	return err
}

// frameOf devuelve el marco donde reside la página, si está residente.
func (ft *FrameTable) frameOf(page *models.Page) (*Frame, bool) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	if page.Frame == models.NoFrame {
		return nil, false
	}
	return ft.frames[page.Frame], true
}

// withLock ejecuta fn con el lock de la tabla tomado, de forma que ninguna página cambie de
// residencia mientras tanto.
func (ft *FrameTable) withLock(fn func()) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	fn()
}

func (ft *FrameTable) newFrameLocked(pa models.PhysAddr) *Frame {
	var id models.FrameID
	if n := len(ft.freeID); n > 0 {
		id = ft.freeID[n-1]
		ft.freeID = ft.freeID[:n-1]
	} else {
		id = models.FrameID(len(ft.frames))
		ft.frames = append(ft.frames, nil)
	}

	frame := &Frame{ID: id, Phys: pa}
	ft.frames[id] = frame
	ft.ring.Add(id)
	return frame
}

func (ft *FrameTable) releaseLocked(frame *Frame) {
	if _, index, found := ft.ring.Find(func(id models.FrameID) bool { return id == frame.ID }); found {
		ft.ring.Remove(index)
		if index < ft.hand {
			ft.hand--
		}
		if ft.hand >= ft.ring.Size() {
			ft.hand = 0
		}
	}
	ft.frames[frame.ID] = nil
	ft.freeID = append(ft.freeID, frame.ID)
	ft.phys.Free(frame.Phys)
	frame.owner = nil
	frame.pinned = false
	ft.unpinned.Broadcast()
}

// pinnedByOthersLocked indica si algún marco está pinned por un proceso distinto de owner. Solo
// en ese caso tiene sentido esperar: los pins propios no se sueltan mientras owner espera.
func (ft *FrameTable) pinnedByOthersLocked(owner *Process) bool {
	for _, frame := range ft.frames {
		if frame != nil && frame.pinned && frame.owner != owner {
			return true
		}
	}
	return false
}

// victimLocked recorre el anillo desde la aguja. Un marco con el bit de acceso prendido recibe
// una segunda oportunidad: se le apaga el bit y se avanza. Como en la primera vuelta se apagan
// todos los bits, la segunda vuelta siempre termina salvo que todos los marcos estén pinned.
func (ft *FrameTable) victimLocked() *Frame {
	n := ft.ring.Size()
	ft.lastScan = 0
	for i := 0; i < 2*n; i++ {
		if ft.hand >= n {
			ft.hand = 0
		}
		id, _ := ft.ring.Get(ft.hand)
		ft.hand++
		ft.lastScan++

		frame := ft.frames[id]
		if frame.pinned {
			continue
		}
		if frame.owner.pagedir.QueryAndClearAccessed(frame.va) {
			continue
		}
		return frame
	}
	return nil
}

// evictLocked guarda el contenido de la víctima y deja el marco sin dueño, listo para reusar.
func (ft *FrameTable) evictLocked(victim *Frame) error {
	owner := victim.owner
	page := owner.spt.Find(victim.va)
	if page == nil {
		return fmt.Errorf("el marco %d apunta a una página inexistente (PID %d, va %v)", victim.ID, owner.pid, victim.va)
	}

	if err := owner.swapOut(page, ft.phys.Page(victim.Phys)); err != nil {
		slog.Error("No se pudo desalojar la víctima", "pid", owner.pid, "va", page.VA, "error", err)
		return err
	}
	page.Frame = models.NoFrame
	victim.owner = nil
	ft.evictions.Add(1)

	slog.Debug("Marco desalojado", "marco", victim.ID, "pid", owner.pid, "va", page.VA, "tipo", page.Kind)
	return nil
}

func (ft *FrameTable) stats() (used, hand int, evictions uint64) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.ring.Size(), ft.hand, ft.evictions.Load()
}
