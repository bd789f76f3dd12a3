package services

import (
	"fmt"
	"log/slog"

	"gvisor.dev/gvisor/pkg/hostarch"
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/devices"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
)

// PhysAllocator es el asignador de marcos físicos de usuario.
type PhysAllocator interface {
	AllocZeroedPage() (models.PhysAddr, error)
	Free(pa models.PhysAddr)
	Page(pa models.PhysAddr) []byte
	Frames() int
}

// SwapDevice es el dispositivo de bloques donde se guardan las páginas anónimas desalojadas.
type SwapDevice interface {
	AllocSlot() (models.SlotID, error)
	Write(slot models.SlotID, page []byte) error
	Read(slot models.SlotID, page []byte) error
	Free(slot models.SlotID)
	Slots() int
	UsedSlots() int
}

// VM es el subsistema de memoria virtual: la tabla de marcos global, el swap y los procesos.
type VM struct {
	config *models.Config
	phys   PhysAllocator
	swap   SwapDevice
	frames *FrameTable

	// fsLock serializa toda la E/S de archivos y de swap. Se toma dentro de frames.mu.
	fsLock sync.Mutex

	mu        sync.RWMutex
	processes map[uint]*Process
}

func NewVM(config *models.Config, phys PhysAllocator, swap SwapDevice) *VM {
	slog.Debug("VM inicializada", "marcos", phys.Frames(), "slots_swap", swap.Slots())
	return &VM{
		config:    config,
		phys:      phys,
		swap:      swap,
		frames:    NewFrameTable(phys),
		processes: make(map[uint]*Process),
	}
}

// CreateProcess da de alta la tabla de páginas suplementaria y el directorio de páginas del proceso.
func (vm *VM) CreateProcess(pid uint) (*Process, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if _, exists := vm.processes[pid]; exists {
		return nil, fmt.Errorf("ya existe el proceso PID %d: %w", pid, models.ErrProcessExists)
	}
	process := &Process{
		pid:         pid,
		vm:          vm,
		spt:         NewSupplementalPageTable(),
		pagedir:     devices.NewPageDir(),
		stackBottom: hostarch.Addr(vm.config.UserStackTop),
		userRSP:     hostarch.Addr(vm.config.UserStackTop),
		mappings:    make(map[hostarch.Addr]*mapping),
		metrics:     &models.Metrics{},
	}
	vm.processes[pid] = process

	slog.Info(fmt.Sprintf("## PID: %d - Proceso Creado", pid))
	return process, nil
}

func (vm *VM) Process(pid uint) (*Process, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()

	process, exists := vm.processes[pid]
	if !exists {
		return nil, fmt.Errorf("PID %d: %w", pid, models.ErrNoSuchProcess)
	}
	return process, nil
}

// Fork crea el proceso hijo y duplica el espacio de direcciones del padre. Si la duplicación
// falla destruye al hijo a medio construir.
func (vm *VM) Fork(parentPID, childPID uint) (*Process, error) {
	parent, err := vm.Process(parentPID)
	if err != nil {
		return nil, err
	}
	child, err := vm.CreateProcess(childPID)
	if err != nil {
		return nil, err
	}

	parent.mu.Lock()
	child.mu.Lock()
	err = DuplicateAddressSpace(child, parent)
	child.mu.Unlock()
	parent.mu.Unlock()

	if err != nil {
		slog.Error("Falló la duplicación del espacio de direcciones", "padre", parentPID, "hijo", childPID, "error", err)
		if exitErr := vm.Exit(childPID); exitErr != nil {
			slog.Warn("Errores destruyendo el hijo a medio construir", "pid", childPID, "error", exitErr)
		}
		return nil, err
	}

	slog.Info(fmt.Sprintf("## PID: %d - Fork - Hijo: %d - Páginas: %d", parentPID, childPID, child.spt.Len()))
	return child, nil
}

// Exit destruye el espacio de direcciones del proceso y lo da de baja.
func (vm *VM) Exit(pid uint) error {
	process, err := vm.Process(pid)
	if err != nil {
		return err
	}
	err = process.Teardown()

	vm.mu.Lock()
	delete(vm.processes, pid)
	vm.mu.Unlock()
	return err
}

func (vm *VM) Stats() models.VMStats {
	used, hand, evictions := vm.frames.stats()

	vm.mu.RLock()
	processes := len(vm.processes)
	vm.mu.RUnlock()

	return models.VMStats{
		TotalFrames:   vm.phys.Frames(),
		UsedFrames:    used,
		ClockHand:     hand,
		Evictions:     evictions,
		SwapSlots:     vm.swap.Slots(),
		SwapSlotsUsed: vm.swap.UsedSlots(),
		Processes:     processes,
	}
}

func (vm *VM) Config() *models.Config {
	return vm.config
}
