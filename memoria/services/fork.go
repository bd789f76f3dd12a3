package services

import (
	"fmt"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
	"gvisor.dev/gvisor/pkg/safemem"
)

// DuplicateAddressSpace reproduce en dst la tabla de páginas de src para un fork. Las páginas sin
// inicializar se vuelven a registrar con el mismo loader, las de archivo se vuelven a leer del
// archivo y las anónimas con contenido se copian byte a byte al marco del hijo.
//
// Si devuelve error dst puede quedar a medio construir; destruirlo es responsabilidad de quien
// orquesta el fork. Los locks de ambos procesos tienen que estar tomados.
func DuplicateAddressSpace(dst, src *Process) error {
	files, err := dst.inheritMappings(src)
	if err != nil {
		return err
	}
	dst.stackBottom = src.stackBottom
	dst.userRSP = src.userRSP

	for _, page := range src.spt.Pages() {
		if err := dst.duplicatePage(src, page, files); err != nil {
			return fmt.Errorf("fork PID %d -> %d, página %v: %w", src.pid, dst.pid, page.VA, err)
		}
	}
	return nil
}

// inheritMappings reabre para el hijo cada archivo mapeado por el padre.
func (p *Process) inheritMappings(src *Process) (map[models.File]models.File, error) {
	files := make(map[models.File]models.File, len(src.mappings))
	for start, m := range src.mappings {
		reopened, err := m.file.Reopen()
		if err != nil {
			return nil, fmt.Errorf("fork: reabriendo %s: %w", m.file.Name(), err)
		}
		p.mappings[start] = &mapping{file: reopened, pages: m.pages}
		files[m.file] = reopened
	}
	return files, nil
}

func (p *Process) duplicatePage(src *Process, page *models.Page, files map[models.File]models.File) error {
	switch page.Kind {
	case models.KindUninit:
		aux := page.Uninit.Aux
		if window, ok := aux.(models.FileWindow); ok {
			aux = remapWindow(window, files)
		}
		return p.registerUninit(page.Uninit.Target, page.VA, page.Writable, page.Uninit.Init, aux)

	case models.KindFile:
		window := remapWindow(page.File.FileWindow, files)
		if err := p.registerUninit(models.KindFile, page.VA, page.Writable, p.vm.LazyLoadSegment, window); err != nil {
			return err
		}
		if _, resident := src.vm.frames.frameOf(page); !resident {
			return nil
		}
		return p.doClaim(p.spt.Find(page.VA))

	case models.KindAnon:
		if !src.anonHasData(page) {
			return p.registerUninit(models.KindAnon, page.VA, page.Writable, nil, nil)
		}
		copyFromParent := func(_ *models.Page, frame []byte) error {
			return src.snapshotAnon(page, frame)
		}
		if err := p.registerUninit(models.KindAnon, page.VA, page.Writable, copyFromParent, nil); err != nil {
			return err
		}
		return p.doClaim(p.spt.Find(page.VA))
	}
	return fmt.Errorf("tipo de página desconocido: %v", page.Kind)
}

// anonHasData indica si la página anónima tiene datos que el hijo tiene que copiar: está
// residente o tiene un slot en swap.
func (p *Process) anonHasData(page *models.Page) bool {
	hasData := false
	p.vm.frames.withLock(func() {
		hasData = page.Frame != models.NoFrame || page.Anon.Slot != models.NoSlot
	})
	return hasData
}

// snapshotAnon copia en frame el contenido actual de la página anónima, tanto si está residente
// como si fue desalojada a swap mientras el hijo conseguía su marco.
func (p *Process) snapshotAnon(page *models.Page, frame []byte) error {
	var err error
	p.vm.frames.withLock(func() {
		switch {
		case page.Frame != models.NoFrame:
			src := p.vm.frames.frames[page.Frame]
			safemem.Copy(safemem.BlockFromSafeSlice(frame), safemem.BlockFromSafeSlice(p.vm.phys.Page(src.Phys)))
		case page.Anon.Slot != models.NoSlot:
			p.vm.fsLock.Lock()
			err = p.vm.swap.Read(page.Anon.Slot, frame)
			p.vm.fsLock.Unlock()
		default:
			clear(frame)
		}
	})
	return err
}

func remapWindow(window models.FileWindow, files map[models.File]models.File) models.FileWindow {
	if reopened, ok := files[window.File]; ok {
		window.File = reopened
	}
	return window
}
