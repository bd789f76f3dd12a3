package services

import (
	"fmt"
	"log/slog"

	"gvisor.dev/gvisor/pkg/hostarch"
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/devices"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
)

// Process es el espacio de direcciones de un proceso de usuario. mu modela al único hilo del
// proceso: fallos, accesos, mmap/munmap y la destrucción se ejecutan de a uno.
type Process struct {
	mu      sync.Mutex
	pid     uint
	vm      *VM
	spt     *SupplementalPageTable
	pagedir *devices.PageDir

	stackBottom hostarch.Addr // página de stack más baja asignada
	userRSP     hostarch.Addr // rsp guardado al entrar al kernel

	mappings map[hostarch.Addr]*mapping
	metrics  *models.Metrics
}

// mapping es un mmap vivo: su handle reabierto y la cantidad de páginas que registró.
type mapping struct {
	file  models.File
	pages int
}

func (p *Process) PID() uint {
	return p.pid
}

func (p *Process) SPT() *SupplementalPageTable {
	return p.spt
}

func (p *Process) PageDir() *devices.PageDir {
	return p.pagedir
}

func (p *Process) Metrics() models.MetricsSnapshot {
	return p.metrics.Snapshot()
}

// SetRSP guarda el stack pointer de usuario que se usa para los fallos ocurridos en modo kernel.
func (p *Process) SetRSP(rsp hostarch.Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userRSP = rsp
}

func (p *Process) StackBottom() hostarch.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stackBottom
}

// RegisterUninitPage registra una página perezosa de tipo kind en va. No reserva marco ni lee
// nada: la carga ocurre en el primer fallo.
func (p *Process) RegisterUninitPage(kind models.PageKind, va hostarch.Addr, writable bool, loader models.Loader, aux any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registerUninit(kind, va, writable, loader, aux)
}

func (p *Process) registerUninit(kind models.PageKind, va hostarch.Addr, writable bool, loader models.Loader, aux any) error {
	if kind != models.KindAnon && kind != models.KindFile {
		return fmt.Errorf("tipo de página inválido para registrar: %v: %w", kind, models.ErrInvalidMapping)
	}
	if !va.IsPageAligned() {
		return fmt.Errorf("va %v no está alineada a página: %w", va, models.ErrInvalidMapping)
	}
	return p.spt.Insert(models.NewUninitPage(kind, va, writable, loader, aux))
}

// Claim fuerza que la página registrada en va quede residente.
func (p *Process) Claim(va hostarch.Addr) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	page := p.spt.Find(va)
	if page == nil {
		return fmt.Errorf("no hay página registrada en %v: %w", va, models.ErrInvalidFault)
	}
	return p.doClaim(page)
}

// doClaim consigue un marco, instala el mapeo y carga el contenido de la página.
func (p *Process) doClaim(page *models.Page) error {
	frame, err := p.vm.frames.acquire(p, page)
	if err != nil {
		return err
	}

	if err := p.pagedir.Install(page.VA, frame.Phys, page.Writable); err != nil {
		p.vm.frames.release(frame)
		return err
	}

	if err := p.swapIn(page, p.vm.phys.Page(frame.Phys)); err != nil {
		p.pagedir.Clear(page.VA)
		p.vm.frames.release(frame)
		return err
	}

	p.vm.frames.link(frame, page)
	slog.Debug("Página reclamada", "pid", p.pid, "va", page.VA, "marco", frame.ID, "tipo", page.Kind)
	return nil
}

// removePage saca la página de la tabla liberando su marco, su slot de swap y escribiendo al
// archivo lo que haya cambiado. Llamarla dos veces sobre la misma página no hace nada.
func (p *Process) removePage(page *models.Page) error {
	if p.spt.Find(page.VA) != page {
		return nil
	}

	err := p.vm.frames.detach(page, func(frame *Frame) error {
		return p.writeBack(page, p.vm.phys.Page(frame.Phys))
	})
	p.destroyPage(page)
	p.spt.Delete(page)
	return err
}

// SetupStack registra y carga la primera página de stack, justo debajo del tope.
func (p *Process) SetupStack() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	top := hostarch.Addr(p.vm.config.UserStackTop)
	va := top - hostarch.PageSize
	if err := p.registerUninit(models.KindAnon, va, true, nil, nil); err != nil {
		return err
	}
	if err := p.doClaim(p.spt.Find(va)); err != nil {
		p.removePage(p.spt.Find(va))
		return err
	}
	p.stackBottom = va
	p.userRSP = top
	return nil
}

// LoadSegment registra de forma perezosa un segmento de archivo ejecutable a partir de va: una
// página anónima por ventana, con readBytes leídos del archivo y zeroBytes en cero.
func (p *Process) LoadSegment(file models.File, offset int64, va hostarch.Addr, readBytes, zeroBytes int, writable bool) error {
	if (readBytes+zeroBytes)%hostarch.PageSize != 0 || !va.IsPageAligned() || offset%hostarch.PageSize != 0 {
		return fmt.Errorf("segmento desalineado (va %v, offset %d): %w", va, offset, models.ErrInvalidMapping)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	start := va
	for readBytes > 0 || zeroBytes > 0 {
		pageRead := min(readBytes, hostarch.PageSize)
		window := models.FileWindow{
			File:      file,
			Offset:    offset,
			ReadBytes: pageRead,
			ZeroBytes: hostarch.PageSize - pageRead,
		}
		if err := p.registerUninit(models.KindAnon, va, writable, p.vm.LazyLoadSegment, window); err != nil {
			p.undoRegistered(start, va)
			return err
		}

		readBytes -= pageRead
		zeroBytes -= window.ZeroBytes
		offset += int64(pageRead)
		va += hostarch.PageSize
	}
	return nil
}
