package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	memoryHandler "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/handlers"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/helpers"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
)

// newTestMemoria levanta la API de memoria en un httptest.Server y devuelve un cliente apuntándole.
func newTestMemoria(t *testing.T) (memoriaClient, *models.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := models.DefaultConfig()
	cfg.UserPoolFrames = 4
	cfg.SwapSlots = 8
	cfg.SwapFilePath = filepath.Join(dir, "swap.bin")
	cfg.FilesPath = filepath.Join(dir, "files")
	cfg.DumpPath = filepath.Join(dir, "dumps")
	os.MkdirAll(cfg.FilesPath, 0755)
	os.MkdirAll(cfg.DumpPath, 0755)

	vm, closeVM, err := helpers.BuildVM(cfg)
	if err != nil {
		t.Fatalf("BuildVM: %v", err)
	}
	t.Cleanup(func() { closeVM() })

	mux := http.NewServeMux()
	mux.HandleFunc("POST /vm/process", memoryHandler.CreateProcessHandler(vm))
	mux.HandleFunc("POST /vm/read", memoryHandler.ReadMemoryHandler(vm))
	mux.HandleFunc("POST /vm/write", memoryHandler.WriteHandler(vm))
	mux.HandleFunc("POST /vm/mmap", memoryHandler.MmapHandler(vm))
	mux.HandleFunc("POST /vm/munmap", memoryHandler.MunmapHandler(vm))
	mux.HandleFunc("POST /vm/exit", memoryHandler.ExitProcessHandler(vm))
	mux.HandleFunc("POST /vm/dump", memoryHandler.DumpHandler(vm))
	mux.HandleFunc("GET /vm/stats", memoryHandler.StatsHandler(vm))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return memoriaClient{ip: u.Hostname(), port: port}, cfg
}

func TestRun_WriteAndReadStack(t *testing.T) {
	memoria, cfg := newTestMemoria(t)
	address := fmt.Sprintf("%#x", cfg.UserStackTop-16)

	var out bytes.Buffer
	for _, args := range [][]string{
		{"process", "1", "stack"},
		{"write", "1", address, "hola"},
		{"read", "1", address, "4"},
		{"stats"},
	} {
		if err := run(memoria, args, &out); err != nil {
			t.Fatalf("run %v: %v", args, err)
		}
	}

	if !strings.HasPrefix(out.String(), "hola\n") {
		t.Errorf("expected hola as read output, got %q", out.String())
	}
	if !strings.Contains(out.String(), `"used_frames":1`) {
		t.Errorf("expected stats with one frame in use, got %q", out.String())
	}
}

func TestRun_MmapDumpAndMunmap(t *testing.T) {
	memoria, cfg := newTestMemoria(t)
	if err := os.WriteFile(filepath.Join(cfg.FilesPath, "datos.txt"), []byte("contenido"), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := run(memoria, []string{"process", "1"}, &out); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := run(memoria, []string{"mmap", "1", "0x10000000", "4096", "datos.txt"}, &out); err != nil {
		t.Fatalf("mmap: %v", err)
	}
	if out.String() != "0x10000000\n" {
		t.Errorf("expected mapped address, got %q", out.String())
	}

	out.Reset()
	if err := run(memoria, []string{"dump", "1"}, &out); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(out.String(), "0x10000000") {
		t.Errorf("expected dump to list the mapped page, got %q", out.String())
	}

	if err := run(memoria, []string{"munmap", "1", "0x10000000"}, &out); err != nil {
		t.Fatalf("munmap: %v", err)
	}
	if err := run(memoria, []string{"exit", "1"}, &out); err != nil {
		t.Fatalf("exit: %v", err)
	}
}

func TestRun_ReportsMemoriaErrno(t *testing.T) {
	memoria, _ := newTestMemoria(t)

	err := run(memoria, []string{"read", "7", "0x10000000", "4"}, &bytes.Buffer{})
	if err == nil {
		t.Fatalf("expected error for unknown process")
	}
	if !strings.Contains(err.Error(), "vm/read") || !strings.Contains(err.Error(), "errno") {
		t.Errorf("expected error with the query and errno, got %v", err)
	}
}

func TestRun_InvalidArguments(t *testing.T) {
	memoria := memoriaClient{ip: "127.0.0.1", port: 1}

	tests := map[string][]string{
		"no command":      nil,
		"unknown command": {"swap", "1"},
		"missing args":    {"read", "1"},
		"bad pid":         {"exit", "uno"},
		"bad address":     {"munmap", "1", "lejos"},
	}
	for name, args := range tests {
		if err := run(memoria, args, &bytes.Buffer{}); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
