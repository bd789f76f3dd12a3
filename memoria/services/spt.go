package services

import (
	"fmt"
	"slices"

	"gvisor.dev/gvisor/pkg/hostarch"
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
)

// SupplementalPageTable indexa las páginas de un proceso por su dirección virtual alineada.
type SupplementalPageTable struct {
	mu    sync.RWMutex
	pages map[hostarch.Addr]*models.Page
}

func NewSupplementalPageTable() *SupplementalPageTable {
	return &SupplementalPageTable{pages: make(map[hostarch.Addr]*models.Page)}
}

// Insert agrega la página. Falla con ErrAddressAlreadyMapped si la dirección ya está ocupada.
func (spt *SupplementalPageTable) Insert(page *models.Page) error {
	spt.mu.Lock()
	defer spt.mu.Unlock()

	if _, exists := spt.pages[page.VA]; exists {
		return fmt.Errorf("va %v: %w", page.VA, models.ErrAddressAlreadyMapped)
	}
	spt.pages[page.VA] = page
	return nil
}

// Find devuelve la página que cubre va, o nil.
func (spt *SupplementalPageTable) Find(va hostarch.Addr) *models.Page {
	spt.mu.RLock()
	defer spt.mu.RUnlock()

	return spt.pages[va.RoundDown()]
}

// Delete saca la página de la tabla sólo si sigue siendo la registrada en su dirección.
func (spt *SupplementalPageTable) Delete(page *models.Page) bool {
	spt.mu.Lock()
	defer spt.mu.Unlock()

	if current, exists := spt.pages[page.VA]; !exists || current != page {
		return false
	}
	delete(spt.pages, page.VA)
	return true
}

func (spt *SupplementalPageTable) Len() int {
	spt.mu.RLock()
	defer spt.mu.RUnlock()

	return len(spt.pages)
}

// Pages devuelve una copia de las páginas ordenadas por dirección.
func (spt *SupplementalPageTable) Pages() []*models.Page {
	spt.mu.RLock()
	pages := make([]*models.Page, 0, len(spt.pages))
	for _, page := range spt.pages {
		pages = append(pages, page)
	}
	spt.mu.RUnlock()

	slices.SortFunc(pages, func(a, b *models.Page) int {
		switch {
		case a.VA < b.VA:
			return -1
		case a.VA > b.VA:
			return 1
		}
		return 0
	})
	return pages
}
