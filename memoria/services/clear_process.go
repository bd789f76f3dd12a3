package services

import (
	"errors"
	"fmt"
	"log/slog"
)

// Teardown destruye el espacio de direcciones al terminar el proceso: escribe al archivo las
// páginas mapeadas que se modificaron, libera marcos y slots de swap y cierra los archivos
// mapeados. Es best-effort: un error en una página no impide liberar las demás.
func (p *Process) Teardown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, page := range p.spt.Pages() {
		if err := p.removePage(page); err != nil {
			slog.Warn("Error liberando página", "pid", p.pid, "va", page.VA, "error", err)
			errs = append(errs, err)
		}
	}
	for start, m := range p.mappings {
		if err := m.file.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.mappings, start)
	}

	metrics := p.metrics.Snapshot()
	slog.Info(fmt.Sprintf("## PID: %d - Proceso Destruido - Métricas - Fallos: %d; Stack: %d; SWAP in: %d; SWAP out: %d; Lec.Arch.: %d; Esc.Arch.: %d",
		p.pid, metrics.Faults, metrics.StackGrowths, metrics.SwapsIn, metrics.SwapsOut, metrics.FileReads, metrics.FileWrites))

	if p.pagedir.Len() != 0 {
		slog.Error("Quedaron mapeos instalados tras destruir el proceso", "pid", p.pid, "mapeos", p.pagedir.Len())
	}
	return errors.Join(errs...)
}
