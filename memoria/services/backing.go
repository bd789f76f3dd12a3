package services

import (
	"fmt"
	"log/slog"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
)

// swapIn carga en frame el contenido de la página según su tipo.
func (p *Process) swapIn(page *models.Page, frame []byte) error {
	switch page.Kind {
	case models.KindUninit:
		return p.uninitInitialize(page, frame)
	case models.KindAnon:
		return p.anonSwapIn(page, frame)
	case models.KindFile:
		return p.fileSwapIn(page, frame)
	default:
		return fmt.Errorf("tipo de página desconocido: %v", page.Kind)
	}
}

// swapOut guarda la página que está por ser desalojada y quita su mapeo. Se llama con el lock
// de la tabla de marcos tomado.
func (p *Process) swapOut(page *models.Page, frame []byte) error {
	switch page.Kind {
	case models.KindAnon:
		return p.anonSwapOut(page, frame)
	case models.KindFile:
		return p.fileWriteBack(page, frame)
	default:
		return fmt.Errorf("no se puede desalojar una página %v en %v", page.Kind, page.VA)
	}
}

// writeBack quita el mapeo de una página que se está destruyendo. Las páginas de archivo
// modificadas se escriben al archivo; las anónimas se descartan.
func (p *Process) writeBack(page *models.Page, frame []byte) error {
	if page.Kind == models.KindFile {
		return p.fileWriteBack(page, frame)
	}
	p.pagedir.Clear(page.VA)
	return nil
}

// destroyPage libera lo que la página tenga fuera de memoria. El marco ya fue liberado.
func (p *Process) destroyPage(page *models.Page) {
	if page.Kind == models.KindAnon && page.Anon.Slot != models.NoSlot {
		p.vm.swap.Free(page.Anon.Slot)
		page.Anon.Slot = models.NoSlot
	}
}

// uninitInitialize resuelve el primer fallo: arma el respaldo definitivo, corre el loader y
// recién si todo salió bien deja la página con su tipo final.
func (p *Process) uninitInitialize(page *models.Page, frame []byte) error {
	uninit := page.Uninit

	switch uninit.Target {
	case models.KindAnon:
		page.Anon = &models.AnonPage{Slot: models.NoSlot, HasContent: uninit.Init != nil}
	case models.KindFile:
		window, ok := uninit.Aux.(models.FileWindow)
		if !ok {
			return fmt.Errorf("página de archivo en %v sin ventana de archivo", page.VA)
		}
		page.File = &models.FilePage{FileWindow: window}
	default:
		return fmt.Errorf("tipo destino inválido %v en %v", uninit.Target, page.VA)
	}

	if uninit.Init == nil {
		clear(frame)
	} else if err := uninit.Init(page, frame); err != nil {
		page.Anon, page.File = nil, nil
		return err
	}
	if _, fromFile := uninit.Aux.(models.FileWindow); fromFile {
		p.metrics.FileReads.Add(1)
	}

	page.Kind = uninit.Target
	page.Uninit = nil
	return nil
}

func (p *Process) anonSwapIn(page *models.Page, frame []byte) error {
	anon := page.Anon
	if anon.Slot == models.NoSlot {
		clear(frame)
		return nil
	}

	p.vm.fsLock.Lock()
	err := p.vm.swap.Read(anon.Slot, frame)
	p.vm.fsLock.Unlock()
	if err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("## PID: %d - Página %v recuperada de SWAP - Slot: %d", p.pid, page.VA, anon.Slot))
	p.vm.swap.Free(anon.Slot)
	anon.Slot = models.NoSlot
	p.metrics.SwapsIn.Add(1)
	return nil
}

func (p *Process) anonSwapOut(page *models.Page, frame []byte) error {
	anon := page.Anon
	entry, _ := p.pagedir.Clear(page.VA)
	if entry.Dirty {
		anon.HasContent = true
	}
	// Una página que nunca se escribió vuelve a ser cero en el próximo fallo.
	if !anon.HasContent {
		return nil
	}

	slot, err := p.vm.swap.AllocSlot()
	if err == nil {
		p.vm.fsLock.Lock()
		err = p.vm.swap.Write(slot, frame)
		p.vm.fsLock.Unlock()
		if err != nil {
			p.vm.swap.Free(slot)
		}
	}
	if err != nil {
		if restoreErr := p.pagedir.Restore(page.VA, entry); restoreErr != nil {
			slog.Error("No se pudo restaurar el mapeo tras fallar el swap", "pid", p.pid, "va", page.VA, "error", restoreErr)
		}
		return err
	}

	anon.Slot = slot
	p.metrics.SwapsOut.Add(1)
	slog.Info(fmt.Sprintf("## PID: %d - Página %v movida a SWAP - Slot: %d", p.pid, page.VA, slot))
	return nil
}

func (p *Process) fileSwapIn(page *models.Page, frame []byte) error {
	if err := p.vm.readWindow(page.File.FileWindow, frame); err != nil {
		return err
	}
	p.metrics.FileReads.Add(1)
	return nil
}

// fileWriteBack quita el mapeo y, si el hardware marcó la página como modificada, escribe
// exactamente ReadBytes bytes en el archivo.
func (p *Process) fileWriteBack(page *models.Page, frame []byte) error {
	entry, mapped := p.pagedir.Clear(page.VA)
	if !mapped || !entry.Dirty {
		return nil
	}

	window := page.File.FileWindow
	p.vm.fsLock.Lock()
	n, err := window.File.WriteAt(frame[:window.ReadBytes], window.Offset)
	p.vm.fsLock.Unlock()
	if n != window.ReadBytes {
		if restoreErr := p.pagedir.Restore(page.VA, entry); restoreErr != nil {
			slog.Error("No se pudo restaurar el mapeo tras fallar la escritura", "pid", p.pid, "va", page.VA, "error", restoreErr)
		}
		return fmt.Errorf("escritura de %s offset %d (%d de %d bytes): %v: %w", window.File.Name(), window.Offset, n, window.ReadBytes, err, models.ErrIO)
	}

	p.metrics.FileWrites.Add(1)
	slog.Debug("Página de archivo escrita", "pid", p.pid, "va", page.VA, "archivo", window.File.Name(), "offset", window.Offset)
	return nil
}

// LazyLoadSegment es el loader de las páginas que salen de un archivo: aux es una
// models.FileWindow con la ventana a leer.
func (vm *VM) LazyLoadSegment(page *models.Page, frame []byte) error {
	window, ok := page.Uninit.Aux.(models.FileWindow)
	if !ok {
		return fmt.Errorf("loader sin ventana de archivo en %v", page.VA)
	}
	return vm.readWindow(window, frame)
}

// readWindow lee ReadBytes bytes del archivo y completa el resto de la página con ceros.
func (vm *VM) readWindow(window models.FileWindow, frame []byte) error {
	vm.fsLock.Lock()
	n, err := window.File.ReadAt(frame[:window.ReadBytes], window.Offset)
	vm.fsLock.Unlock()
	if n != window.ReadBytes {
		return fmt.Errorf("lectura de %s offset %d (%d de %d bytes): %v: %w", window.File.Name(), window.Offset, n, window.ReadBytes, err, models.ErrIO)
	}
	clear(frame[window.ReadBytes:])
	return nil
}
