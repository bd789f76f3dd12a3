package services

import (
	"fmt"
	"log/slog"

	"gvisor.dev/gvisor/pkg/hostarch"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
)

// Fault es lo que la trampa de page fault sabe del fallo.
type Fault struct {
	Addr       hostarch.Addr
	User       bool // el fallo ocurrió en modo usuario
	Write      bool
	NotPresent bool // false si la página estaba mapeada y el acceso no estaba permitido
	RSP        hostarch.Addr
}

// HandleFault resuelve un page fault del proceso. Un error significa que el proceso debe terminar;
// nunca se reintenta.
func (p *Process) HandleFault(fault Fault) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handleFault(fault)
}

func (p *Process) handleFault(fault Fault) error {
	p.metrics.Faults.Add(1)

	if fault.Addr == 0 || uint64(fault.Addr) >= p.vm.config.KernelBase {
		return fmt.Errorf("fallo en dirección inválida %v: %w", fault.Addr, models.ErrInvalidFault)
	}
	if !fault.NotPresent {
		return fmt.Errorf("violación de protección en %v (escritura=%v): %w", fault.Addr, fault.Write, models.ErrInvalidFault)
	}

	page := p.spt.Find(fault.Addr)
	if page == nil {
		rsp := fault.RSP
		if !fault.User {
			rsp = p.userRSP
		}
		return p.growStack(fault.Addr, rsp)
	}

	if fault.Write && !page.Writable {
		return fmt.Errorf("escritura sobre página de sólo lectura %v: %w", page.VA, models.ErrInvalidFault)
	}
	if err := p.doClaim(page); err != nil {
		return err
	}

	slog.Debug(fmt.Sprintf("## PID: %d - Fallo resuelto - Dirección: %v - Tipo: %v", p.pid, fault.Addr, page.Kind))
	return nil
}

// growStack extiende el stack de a una página hasta cubrir addr. Sólo se permite si addr está
// dentro de la región máxima de stack, a no más de StackSlack bytes por debajo de rsp y por
// debajo de la página de stack más baja.
func (p *Process) growStack(addr, rsp hostarch.Addr) error {
	config := p.vm.config
	top := hostarch.Addr(config.UserStackTop)
	limit := top - hostarch.Addr(config.StackMaxSize)

	switch {
	case addr < limit || addr >= top:
		return fmt.Errorf("%v fuera de la región de stack [%v, %v): %w", addr, limit, top, models.ErrStackGrowthDenied)
	case uint64(addr)+config.StackSlack < uint64(rsp):
		return fmt.Errorf("%v está más de %d bytes debajo de rsp %v: %w", addr, config.StackSlack, rsp, models.ErrStackGrowthDenied)
	case addr >= p.stackBottom:
		return fmt.Errorf("%v no está debajo del stack actual %v: %w", addr, p.stackBottom, models.ErrStackGrowthDenied)
	}

	for p.stackBottom > addr.RoundDown() {
		va := p.stackBottom - hostarch.PageSize
		if err := p.registerUninit(models.KindAnon, va, true, nil, nil); err != nil {
			return err
		}
		if err := p.doClaim(p.spt.Find(va)); err != nil {
			p.removePage(p.spt.Find(va))
			return err
		}
		p.stackBottom = va
		p.metrics.StackGrowths.Add(1)
		slog.Debug("Stack extendido", "pid", p.pid, "stack_bottom", va)
	}
	return nil
}
