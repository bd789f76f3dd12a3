package services

import (
	"fmt"

	"gvisor.dev/gvisor/pkg/hostarch"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
)

// Read lee size bytes desde va como lo haría una instrucción de usuario: si la traducción falla se
// resuelve el page fault y se reintenta el acceso.
func (p *Process) Read(va hostarch.Addr, size int) ([]byte, error) {
	if err := p.checkUserRange(va, size); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	data := make([]byte, 0, size)
	for size > 0 {
		offset := int(va.PageOffset())
		n := min(size, hostarch.PageSize-offset)
		err := p.access(va, false, func(frame []byte) {
			data = append(data, frame[offset:offset+n]...)
		})
		if err != nil {
			return nil, err
		}
		size -= n
		va += hostarch.Addr(n)
	}
	return data, nil
}

// Write escribe data a partir de va. Puede abarcar varias páginas.
func (p *Process) Write(va hostarch.Addr, data []byte) error {
	if err := p.checkUserRange(va, len(data)); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for len(data) > 0 {
		offset := int(va.PageOffset())
		n := min(len(data), hostarch.PageSize-offset)
		chunk := data[:n]
		err := p.access(va, true, func(frame []byte) {
			copy(frame[offset:], chunk)
		})
		if err != nil {
			return err
		}
		data = data[n:]
		va += hostarch.Addr(n)
	}
	return nil
}

// access traduce va con el directorio de páginas. Mientras la página no esté presente se levanta
// un fallo; si el fallo no se puede resolver el acceso termina con ese error.
func (p *Process) access(va hostarch.Addr, write bool, fn func(frame []byte)) error {
	for {
		present, allowed := p.pagedir.Access(va, write, func(pa models.PhysAddr) {
			fn(p.vm.phys.Page(pa))
		})
		if present && allowed {
			return nil
		}

		fault := Fault{Addr: va, User: true, Write: write, NotPresent: !present, RSP: p.userRSP}
		if err := p.handleFault(fault); err != nil {
			return fmt.Errorf("PID %d acceso a %v: %w", p.pid, va, err)
		}
	}
}

// checkUserRange valida que [va, va+size) sea un rango de usuario antes de reservar nada.
func (p *Process) checkUserRange(va hostarch.Addr, size int) error {
	if size < 0 {
		return fmt.Errorf("tamaño de acceso negativo (%d): %w", size, models.ErrInvalidMapping)
	}
	ar, ok := va.ToRange(uint64(size))
	if !ok || uint64(ar.End) > p.vm.config.KernelBase {
		return fmt.Errorf("el acceso [%v, +%d) sale del espacio de usuario: %w", va, size, models.ErrInvalidMapping)
	}
	return nil
}
