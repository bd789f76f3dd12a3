package services

import (
	"errors"
	"fmt"
	"log/slog"

	"gvisor.dev/gvisor/pkg/hostarch"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
)

// Mmap mapea length bytes de file desde offset en addr. El archivo se reabre para que cerrar el
// handle del llamador no invalide el mapeo. Si alguna página del rango ya existe no queda nada
// registrado.
func (p *Process) Mmap(addr hostarch.Addr, length uint64, writable bool, file models.File, offset int64) (hostarch.Addr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ar, err := p.validateMapping(addr, length, offset)
	if err != nil {
		return 0, err
	}

	reopened, err := file.Reopen()
	if err != nil {
		return 0, fmt.Errorf("mmap de %s: %w", file.Name(), err)
	}

	va := ar.Start
	remaining := length
	pages := 0
	for remaining > 0 {
		readBytes := min(remaining, hostarch.PageSize)
		window := models.FileWindow{
			File:      reopened,
			Offset:    offset,
			ReadBytes: int(readBytes),
			ZeroBytes: hostarch.PageSize - int(readBytes),
		}

		err := p.registerUninit(models.KindFile, va, writable, p.vm.LazyLoadSegment, window)
		if err != nil {
			p.undoRegistered(ar.Start, va)
			reopened.Close()
			slog.Warn("mmap rechazado", "pid", p.pid, "addr", ar.Start, "length", length, "error", err)
			return 0, err
		}

		pages++
		remaining -= readBytes
		offset += int64(readBytes)
		va += hostarch.PageSize
	}

	p.mappings[ar.Start] = &mapping{file: reopened, pages: pages}
	slog.Info(fmt.Sprintf("## PID: %d - MMAP - Archivo: %s - Dirección: %v - Páginas: %d", p.pid, file.Name(), ar.Start, pages))
	return ar.Start, nil
}

func (p *Process) validateMapping(addr hostarch.Addr, length uint64, offset int64) (hostarch.AddrRange, error) {
	if addr == 0 || !addr.IsPageAligned() {
		return hostarch.AddrRange{}, fmt.Errorf("dirección %v inválida para mmap: %w", addr, models.ErrInvalidMapping)
	}
	if length == 0 {
		return hostarch.AddrRange{}, fmt.Errorf("mmap de longitud 0: %w", models.ErrInvalidMapping)
	}
	if offset < 0 || offset%hostarch.PageSize != 0 {
		return hostarch.AddrRange{}, fmt.Errorf("offset %d no alineado a página: %w", offset, models.ErrInvalidMapping)
	}
	ar, ok := addr.ToRange(length)
	if !ok || uint64(ar.End) > p.vm.config.KernelBase {
		return hostarch.AddrRange{}, fmt.Errorf("rango [%v, +%d) fuera del espacio de usuario: %w", addr, length, models.ErrInvalidMapping)
	}
	return ar, nil
}

// undoRegistered quita las páginas registradas en [start, end) por un mmap o un segmento que no
// pudo completarse.
func (p *Process) undoRegistered(start, end hostarch.Addr) {
	for va := start; va < end; va += hostarch.PageSize {
		if page := p.spt.Find(va); page != nil {
			p.removePage(page)
		}
	}
}

// Munmap deshace el mapeo que empieza en addr: recorre las páginas de archivo consecutivas que
// usan el mismo archivo, escribe las modificadas y las quita. Se detiene en la primera página
// que no sea de archivo o en el primer hueco.
func (p *Process) Munmap(addr hostarch.Addr) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	page := p.spt.Find(addr)
	if page == nil || page.Type() != models.KindFile {
		slog.Debug("munmap sin mapeo", "pid", p.pid, "addr", addr)
		return nil
	}
	window, _ := fileWindow(page)
	file := window.File

	var errs []error
	pages := 0
	for va := page.VA; page != nil && page.Type() == models.KindFile; page = p.spt.Find(va) {
		if w, ok := fileWindow(page); !ok || w.File != file {
			break
		}
		if err := p.removePage(page); err != nil {
			errs = append(errs, err)
		}
		pages++
		va += hostarch.PageSize
	}

	if m, exists := p.mappings[addr.RoundDown()]; exists && m.file == file {
		delete(p.mappings, addr.RoundDown())
		if err := file.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	slog.Info(fmt.Sprintf("## PID: %d - MUNMAP - Dirección: %v - Páginas: %d", p.pid, addr, pages))
	return errors.Join(errs...)
}

// fileWindow devuelve la ventana de archivo de la página, esté o no inicializada.
func fileWindow(page *models.Page) (models.FileWindow, bool) {
	switch page.Kind {
	case models.KindFile:
		return page.File.FileWindow, true
	case models.KindUninit:
		window, ok := page.Uninit.Aux.(models.FileWindow)
		return window, ok
	}
	return models.FileWindow{}, false
}
