package devices

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
)

// OSFile implementa models.File sobre un archivo del host.
type OSFile struct {
	file *os.File
	path string
	flag int
}

// OpenFile abre path en modo lectura/escritura, o sólo lectura si writable es false.
func OpenFile(path string, writable bool) (*OSFile, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	file, err := os.OpenFile(filepath.Clean(path), flag, 0)
	if err != nil {
		return nil, err
	}
	return &OSFile{file: file, path: path, flag: flag}, nil
}

// Reopen abre un handle nuevo e independiente sobre el mismo archivo, así cerrar el original
// no invalida al nuevo.
func (f *OSFile) Reopen() (models.File, error) {
	reopened, err := OpenFile(f.path, f.flag == os.O_RDWR)
	if err != nil {
		return nil, fmt.Errorf("no se pudo reabrir %s: %w", f.path, err)
	}
	return reopened, nil
}

func (f *OSFile) ReadAt(p []byte, off int64) (int, error) {
	return f.file.ReadAt(p, off)
}

func (f *OSFile) WriteAt(p []byte, off int64) (int, error) {
	return f.file.WriteAt(p, off)
}

func (f *OSFile) Length() (int64, error) {
	info, err := f.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (f *OSFile) Name() string {
	return f.path
}

func (f *OSFile) Close() error {
	return f.file.Close()
}
