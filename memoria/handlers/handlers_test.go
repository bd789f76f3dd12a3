package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/helpers"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/services"
)

const testVA = 0x10000000

func newTestVM(t *testing.T) *services.VM {
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

	vm, closeFn, err := helpers.BuildVM(cfg)
	if err != nil {
		t.Fatalf("BuildVM: %v", err)
	}
	t.Cleanup(func() { closeFn() })
	return vm
}

func post(t *testing.T, handler func(http.ResponseWriter, *http.Request), body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func TestCreateProcessHandler(t *testing.T) {
	vm := newTestVM(t)

	rr := post(t, CreateProcessHandler(vm), models.CreateProcessRequest{PID: 1, SetupStack: true})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if vm.Stats().UsedFrames != 1 {
		t.Errorf("expected stack page claimed")
	}

	rr = post(t, CreateProcessHandler(vm), models.CreateProcessRequest{PID: 1})
	if rr.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicated PID, got %d", rr.Code)
	}
	var body models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Errno != services.Errno(models.ErrProcessExists).Error() {
		t.Errorf("expected EEXIST errno, got %q", body.Errno)
	}
}

func TestCreateProcessHandler_InvalidBody(t *testing.T) {
	vm := newTestVM(t)
	req := httptest.NewRequest(http.MethodPost, "/vm/process", strings.NewReader("{no json"))
	rr := httptest.NewRecorder()

	CreateProcessHandler(vm)(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestWriteAndReadHandlers(t *testing.T) {
	vm := newTestVM(t)
	post(t, CreateProcessHandler(vm), models.CreateProcessRequest{PID: 1, SetupStack: true})
	top := vm.Config().UserStackTop

	rr := post(t, WriteHandler(vm), models.WriteRequest{PID: 1, Address: top - 16, Data: []byte("pila")})
	if rr.Code != http.StatusOK {
		t.Fatalf("write: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = post(t, ReadMemoryHandler(vm), models.ReadRequest{PID: 1, Address: top - 16, Size: 4})
	if rr.Code != http.StatusOK {
		t.Fatalf("read: expected 200, got %d", rr.Code)
	}
	var resp models.ReadResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if string(resp.Data) != "pila" {
		t.Errorf("expected pila, got %q", resp.Data)
	}
}

func TestFaultHandler_ErrnoInResponse(t *testing.T) {
	vm := newTestVM(t)
	post(t, CreateProcessHandler(vm), models.CreateProcessRequest{PID: 1})

	rr := post(t, FaultHandler(vm), models.FaultRequest{PID: 1, Address: vm.Config().KernelBase, User: true, NotPresent: true})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if resp.Error == "" || resp.Errno != services.Errno(models.ErrInvalidFault).Error() {
		t.Errorf("unexpected error response %+v", resp)
	}

	rr = post(t, FaultHandler(vm), models.FaultRequest{PID: 42, Address: testVA, NotPresent: true})
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown PID, got %d", rr.Code)
	}
}

func TestMmapAndMunmapHandlers(t *testing.T) {
	vm := newTestVM(t)
	post(t, CreateProcessHandler(vm), models.CreateProcessRequest{PID: 1})
	path := filepath.Join(vm.Config().FilesPath, "datos.txt")
	os.WriteFile(path, []byte("hola mundo"), 0644)

	rr := post(t, MmapHandler(vm), models.MmapRequest{PID: 1, Address: testVA, Length: 10, Writable: true, Path: "datos.txt"})
	if rr.Code != http.StatusOK {
		t.Fatalf("mmap: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var mmapResp models.MmapResponse
	json.NewDecoder(rr.Body).Decode(&mmapResp)
	if mmapResp.Address != testVA {
		t.Errorf("expected address %#x, got %#x", testVA, mmapResp.Address)
	}

	post(t, WriteHandler(vm), models.WriteRequest{PID: 1, Address: testVA, Data: []byte("HOLA")})
	rr = post(t, MunmapHandler(vm), models.MunmapRequest{PID: 1, Address: testVA})
	if rr.Code != http.StatusOK {
		t.Fatalf("munmap: expected 200, got %d", rr.Code)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "HOLA mundo" {
		t.Errorf("expected write back through munmap, got %q", content)
	}

	rr = post(t, MmapHandler(vm), models.MmapRequest{PID: 1, Address: testVA, Length: 10, Path: "no_existe.txt"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for missing file, got %d", rr.Code)
	}
}

func TestForkExitAndStatsHandlers(t *testing.T) {
	vm := newTestVM(t)
	post(t, CreateProcessHandler(vm), models.CreateProcessRequest{PID: 1, SetupStack: true})

	if rr := post(t, ForkHandler(vm), models.ForkRequest{ParentPID: 1, ChildPID: 2}); rr.Code != http.StatusOK {
		t.Fatalf("fork: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr := post(t, ExitProcessHandler(vm), models.PIDRequest{PID: 1}); rr.Code != http.StatusOK {
		t.Fatalf("exit: expected 200, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/vm/stats", nil)
	rr := httptest.NewRecorder()
	StatsHandler(vm)(rr, req)

	var stats models.VMStats
	json.NewDecoder(rr.Body).Decode(&stats)
	if stats.Processes != 1 || stats.UsedFrames != 1 {
		t.Errorf("expected only the child and its stack page, got %+v", stats)
	}

	req = httptest.NewRequest(http.MethodGet, "/vm/exit", nil)
	rr = httptest.NewRecorder()
	ExitProcessHandler(vm)(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET on exit, got %d", rr.Code)
	}
}

func TestDumpHandler_WritesDumpFile(t *testing.T) {
	vm := newTestVM(t)
	post(t, CreateProcessHandler(vm), models.CreateProcessRequest{PID: 3, SetupStack: true})

	rr := post(t, DumpHandler(vm), models.PIDRequest{PID: 3})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "ANON") {
		t.Errorf("expected stack page in dump, got %q", rr.Body.String())
	}

	files, _ := filepath.Glob(filepath.Join(vm.Config().DumpPath, "3-*.dmp"))
	if len(files) != 1 {
		t.Fatalf("expected one dump file, got %v", files)
	}
	content, _ := os.ReadFile(files[0])
	if string(content) != rr.Body.String() {
		t.Errorf("dump file and response differ")
	}
}

func TestMemoryConfigHandler(t *testing.T) {
	vm := newTestVM(t)
	req := httptest.NewRequest(http.MethodGet, "/config/memoria", nil)
	rr := httptest.NewRecorder()
	MemoryConfigHandler(vm)(rr, req)

	var cfg models.Config
	if err := json.NewDecoder(rr.Body).Decode(&cfg); err != nil {
		t.Fatalf("invalid config body: %v", err)
	}
	if cfg.UserPoolFrames != 4 || cfg.SwapSlots != 8 {
		t.Errorf("unexpected config %+v", cfg)
	}
}
