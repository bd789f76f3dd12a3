package services

import (
	"fmt"
	"io"
	"log/slog"
)

// Dump escribe una línea por página de la tabla suplementaria del proceso, ordenadas por dirección.
func (p *Process) Dump(w io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	slog.Info(fmt.Sprintf("## PID: %d - Memory Dump solicitado", p.pid))
	for _, page := range p.spt.Pages() {
		frame := "-"
		if f, resident := p.vm.frames.frameOf(page); resident {
			frame = fmt.Sprintf("%d", f.ID)
		}
		_, err := fmt.Fprintf(w, "%v %-6v writable=%-5v type=%-6v frame=%s\n", page.VA, page.Kind, page.Writable, page.Type(), frame)
		if err != nil {
			return fmt.Errorf("fallo al escribir el dump: %w", err)
		}
	}
	return nil
}
