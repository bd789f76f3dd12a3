package devices

import (
	"fmt"

	"gvisor.dev/gvisor/pkg/hostarch"
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
)

// Entry es una entrada instalada en el directorio de páginas.
type Entry struct {
	Phys     models.PhysAddr
	Writable bool
	Accessed bool
	Dirty    bool
}

// PageDir simula la tabla de páginas de hardware de un proceso: traduce va -> pa y mantiene los
// bits de acceso y modificado que en el hardware real prende la MMU.
type PageDir struct {
	mu      sync.Mutex
	entries map[hostarch.Addr]*Entry
}

func NewPageDir() *PageDir {
	return &PageDir{entries: make(map[hostarch.Addr]*Entry)}
}

// Install mapea va a pa. Falla si va ya tiene un mapeo.
func (pd *PageDir) Install(va hostarch.Addr, pa models.PhysAddr, writable bool) error {
	va = va.RoundDown()
	pd.mu.Lock()
	defer pd.mu.Unlock()

	if _, exists := pd.entries[va]; exists {
		return fmt.Errorf("va %v ya tiene un mapeo instalado: %w", va, models.ErrAddressAlreadyMapped)
	}
	pd.entries[va] = &Entry{Phys: pa, Writable: writable}
	return nil
}

func (pd *PageDir) Lookup(va hostarch.Addr) (Entry, bool) {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	entry, ok := pd.entries[va.RoundDown()]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// QueryAndClearAccessed devuelve el bit de acceso y lo apaga.
func (pd *PageDir) QueryAndClearAccessed(va hostarch.Addr) bool {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	entry, ok := pd.entries[va.RoundDown()]
	if !ok {
		return false
	}
	accessed := entry.Accessed
	entry.Accessed = false
	return accessed
}

// QueryAndClearDirty devuelve el bit de modificado y lo apaga.
func (pd *PageDir) QueryAndClearDirty(va hostarch.Addr) bool {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	entry, ok := pd.entries[va.RoundDown()]
	if !ok {
		return false
	}
	dirty := entry.Dirty
	entry.Dirty = false
	return dirty
}

// Clear quita el mapeo y devuelve la entrada que tenía, con sus bits tal como quedaron.
func (pd *PageDir) Clear(va hostarch.Addr) (Entry, bool) {
	va = va.RoundDown()
	pd.mu.Lock()
	defer pd.mu.Unlock()

	entry, ok := pd.entries[va]
	if !ok {
		return Entry{}, false
	}
	delete(pd.entries, va)
	return *entry, true
}

// Restore vuelve a instalar una entrada quitada con Clear, con sus bits originales.
func (pd *PageDir) Restore(va hostarch.Addr, entry Entry) error {
	va = va.RoundDown()
	pd.mu.Lock()
	defer pd.mu.Unlock()

	if _, exists := pd.entries[va]; exists {
		return fmt.Errorf("va %v ya tiene un mapeo instalado: %w", va, models.ErrAddressAlreadyMapped)
	}
	restored := entry
	pd.entries[va] = &restored
	return nil
}

// Access hace lo que la MMU ante un acceso de usuario: si la traducción es válida prende los bits
// y llama a fn con el marco mientras el mapeo no puede cambiar. Devuelve present=false si no hay
// mapeo y allowed=false si es una escritura sobre una página de sólo lectura.
func (pd *PageDir) Access(va hostarch.Addr, write bool, fn func(pa models.PhysAddr)) (present, allowed bool) {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	entry, ok := pd.entries[va.RoundDown()]
	if !ok {
		return false, false
	}
	if write && !entry.Writable {
		return true, false
	}
	entry.Accessed = true
	if write {
		entry.Dirty = true
	}
	fn(entry.Phys)
	return true, true
}

func (pd *PageDir) Len() int {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	return len(pd.entries)
}
