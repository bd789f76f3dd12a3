package list

import (
	"fmt"
	"sync"
)

// List es la interfaz de las listas genéricas del módulo.
type List[T any] interface {
	Add(item T)                                 // Añadir un elemento al final de la lista
	Find(predicate func(T) bool) (T, int, bool) // Permite buscar un elemento de la lista dado un predicado.
	ForEach(callback func(T))                   // A cada elemento de la lista se le va aplicar la función que le pase
	Get(index int) (T, error)                   // Obtener un elemento a partir de un índice dado
	GetAll() []T                                // Retorna todos los elementos que se encuentra en la lista
	Remove(index int)                           // Eliminar un elemento en el índice dado
	Size() int                                  // Retornar el tamaño de la lista
}

// ArrayList implements List
type ArrayList[T any] struct {
	mu    sync.RWMutex
	items []T
}

// Add inserta un elemento al final de la lista.
//
// Parámetros:
//   - item: Elemento a insertar.
//
// Ejemplo:
//
//	func main() {
//		frames := &ArrayList[models.FrameID]{}
//		frames.Add(0)
//		frames.Add(1)
//	}
func (list *ArrayList[T]) Add(item T) {
	list.mu.Lock() // Bloqueo exclusivo para evitar cambios simultáneos
	defer list.mu.Unlock()

	list.items = append(list.items, item)
}

// Find permite buscar un elemento de la lista dado un predicado. Devuelve también su índice.
//
// Parámetros:
//   - predicate: Función que permite identificar el elemento buscado.
//
// Ejemplo:
//
//	func main() {
//		list := &ArrayList[int]{}
//		list.Add(10)
//		list.Add(20)
//
//		number, index, found := list.Find(func(number int) bool {
//			return number == 20
//		})
//	}
func (list *ArrayList[T]) Find(predicate func(T) bool) (T, int, bool) {
	list.mu.RLock() //Bloqueo de solo lectura: permite otras lecturas concurrentes
	defer list.mu.RUnlock()

	for i, item := range list.items {
		if predicate(item) {
			return item, i, true
		}
	}
	var zero T
	return zero, -1, false
}

// Get devuelve el elemento en el índice proporcionado.
//
// Parámetros:
//   - index: Índice del elemento a obtener.
func (list *ArrayList[T]) Get(index int) (T, error) {
	list.mu.RLock()
	defer list.mu.RUnlock()

	if index < 0 || index >= len(list.items) {
		var zero T // Crear un valor cero del tipo genérico T
		return zero, fmt.Errorf("index out of range: %d", index)
	}
	return list.items[index], nil
}

// Remove remueve un elemento de la lista a partir de su índice. Si el índice no existe no hace nada.
//
// Ejemplo:
//
//	func main() {
//		list := &ArrayList[int]{}
//		list.Add(10)
//		list.Add(20)
//		list.Add(30)
//		list.Remove(1)  //[10, 30]
//	}
func (list *ArrayList[T]) Remove(index int) {
	list.mu.Lock()
	defer list.mu.Unlock()

	if index >= 0 && index < len(list.items) {
		list.items = append(list.items[:index], list.items[index+1:]...)
	}
}

// Size devuelve el tamaño de la lista.
func (list *ArrayList[T]) Size() int {
	list.mu.RLock()
	defer list.mu.RUnlock()

	return len(list.items)
}

// ForEach a cada elemento de la lista se va a aplicar la función que le pase.
// El callback no debe modificar la lista.
func (list *ArrayList[T]) ForEach(callback func(T)) {
	list.mu.RLock()
	defer list.mu.RUnlock()

	for _, item := range list.items {
		callback(item)
	}
}

// GetAll retorna una copia de todos los elementos que se encuentra en la lista
func (list *ArrayList[T]) GetAll() []T {
	list.mu.RLock()
	defer list.mu.RUnlock()

	// Crear una copia del slice para evitar que modificaciones externas afecten la lista interna
	itemsCopy := make([]T, len(list.items))
	copy(itemsCopy, list.items)
	return itemsCopy
}
