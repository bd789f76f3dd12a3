package models

import (
	"fmt"
	"io"

	"gvisor.dev/gvisor/pkg/hostarch"
)

// PageKind indica con qué se respalda el contenido de una página.
type PageKind int

const (
	KindUninit PageKind = iota
	KindAnon
	KindFile
)

func (k PageKind) String() string {
	switch k {
	case KindUninit:
		return "UNINIT"
	case KindAnon:
		return "ANON"
	case KindFile:
		return "FILE"
	default:
		return fmt.Sprintf("PageKind(%d)", int(k))
	}
}

// FrameID es el índice de un marco dentro de la tabla de marcos.
type FrameID int

// NoFrame indica que la página no está residente.
const NoFrame FrameID = -1

// SlotID es el índice de un slot en el dispositivo de swap.
type SlotID int

// NoSlot indica que la página anónima todavía no tiene lugar en swap.
const NoSlot SlotID = -1

// PhysAddr es la dirección de un marco físico dentro del pool de usuario.
type PhysAddr uintptr

// File es el handle de archivo que usa el subsistema. Cada mapeo trabaja sobre su propio handle.
type File interface {
	io.ReaderAt
	io.WriterAt
	Reopen() (File, error)
	Length() (int64, error)
	Name() string
	Close() error
}

// FileWindow describe la ventana de un archivo que cubre exactamente una página.
type FileWindow struct {
	File      File
	Offset    int64
	ReadBytes int
	ZeroBytes int
}

// Loader carga el contenido inicial de una página la primera vez que se resuelve.
type Loader func(page *Page, frame []byte) error

type UninitPage struct {
	Target PageKind // tipo que va a tener la página una vez inicializada
	Init   Loader
	Aux    any
}

type AnonPage struct {
	Slot       SlotID
	HasContent bool // false mientras la página sea un cero "virtual" que nunca se escribió
}

type FilePage struct {
	FileWindow
}

// Page es la entrada de la tabla de páginas suplementaria. Sólo uno de Uninit, Anon o File está
// presente y lo determina Kind.
type Page struct {
	VA       hostarch.Addr
	Writable bool
	Kind     PageKind

	Uninit *UninitPage
	Anon   *AnonPage
	File   *FilePage

	Frame FrameID
}

// NewUninitPage crea la página pendiente de inicialización.
func NewUninitPage(target PageKind, va hostarch.Addr, writable bool, init Loader, aux any) *Page {
	return &Page{
		VA:       va,
		Writable: writable,
		Kind:     KindUninit,
		Uninit:   &UninitPage{Target: target, Init: init, Aux: aux},
		Frame:    NoFrame,
	}
}

// Type devuelve el tipo que tiene o va a tener la página.
func (p *Page) Type() PageKind {
	if p.Kind == KindUninit {
		return p.Uninit.Target
	}
	return p.Kind
}

func (p *Page) Resident() bool {
	return p.Frame != NoFrame
}
