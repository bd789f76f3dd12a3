package services

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gvisor.dev/gvisor/pkg/hostarch"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
)

func TestEviction_AnonRoundTripThroughSwap(t *testing.T) {
	vm := newTestVM(t, 1, 4)
	process := newTestProcess(t, vm, 1)
	pageA, pageB := testVA, testVA+hostarch.PageSize
	process.RegisterUninitPage(models.KindAnon, pageA, true, nil, nil)
	process.RegisterUninitPage(models.KindAnon, pageB, true, nil, nil)

	if err := process.Write(pageA, []byte("hola")); err != nil {
		t.Fatalf("Write A: %v", err)
	}
	if err := process.Write(pageB, []byte("chau")); err != nil {
		t.Fatalf("Write B: %v", err)
	}

	a, b := process.SPT().Find(pageA), process.SPT().Find(pageB)
	if a.Resident() || !b.Resident() {
		t.Fatalf("expected A evicted and B resident")
	}
	if a.Anon.Slot == models.NoSlot {
		t.Fatalf("expected A to own a swap slot")
	}
	if _, mapped := process.PageDir().Lookup(pageA); mapped {
		t.Errorf("evicted page must not stay mapped")
	}

	data, err := process.Read(pageA, 4)
	if err != nil {
		t.Fatalf("Read A: %v", err)
	}
	if string(data) != "hola" {
		t.Errorf("expected hola after swap in, got %q", data)
	}
	if a.Anon.Slot != models.NoSlot {
		t.Errorf("swap in must release the slot")
	}

	metrics := process.Metrics()
	if metrics.SwapsOut != 2 || metrics.SwapsIn != 1 {
		t.Errorf("expected 2 swap outs and 1 swap in, got %+v", metrics)
	}
	stats := vm.Stats()
	if stats.Evictions != 2 || stats.UsedFrames != 1 || stats.SwapSlotsUsed != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestEviction_PristinePageIsNotSwapped(t *testing.T) {
	vm := newTestVM(t, 1, 4)
	process := newTestProcess(t, vm, 1)
	pageA, pageB := testVA, testVA+hostarch.PageSize
	process.RegisterUninitPage(models.KindAnon, pageA, true, nil, nil)
	process.RegisterUninitPage(models.KindAnon, pageB, true, nil, nil)

	if _, err := process.Read(pageA, 8); err != nil {
		t.Fatalf("Read A: %v", err)
	}
	if _, err := process.Read(pageB, 8); err != nil {
		t.Fatalf("Read B: %v", err)
	}

	if vm.Stats().SwapSlotsUsed != 0 || process.Metrics().SwapsOut != 0 {
		t.Errorf("a page never written must not reach swap")
	}
	data, err := process.Read(pageA, hostarch.PageSize)
	if err != nil {
		t.Fatalf("Read A again: %v", err)
	}
	if !bytes.Equal(data, make([]byte, hostarch.PageSize)) {
		t.Errorf("expected zero page after discarding pristine page")
	}
}

func TestEviction_SecondChance(t *testing.T) {
	vm := newTestVM(t, 3, 8)
	process := newTestProcess(t, vm, 1)
	for i := 0; i < 4; i++ {
		process.RegisterUninitPage(models.KindAnon, testVA+hostarch.Addr(i*hostarch.PageSize), true, nil, nil)
	}
	for i := 0; i < 3; i++ {
		if err := process.Write(testVA+hostarch.Addr(i*hostarch.PageSize), []byte{byte(i + 1)}); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	// Los tres marcos tienen el bit de acceso prendido: la primera vuelta los apaga y la
	// segunda elige el primero.
	if err := process.Write(testVA+3*hostarch.PageSize, []byte{4}); err != nil {
		t.Fatalf("Write 3: %v", err)
	}

	if scanned := vm.frames.lastScan; scanned > 2*3 {
		t.Errorf("victim selection scanned %d frames, more than two revolutions", scanned)
	}
	if process.SPT().Find(testVA).Resident() {
		t.Errorf("expected the first page to be the victim")
	}
	for i := 1; i < 4; i++ {
		if !process.SPT().Find(testVA + hostarch.Addr(i*hostarch.PageSize)).Resident() {
			t.Errorf("page %d should still be resident", i)
		}
	}
}

func TestEviction_RecentlyUsedPageSurvives(t *testing.T) {
	vm := newTestVM(t, 2, 8)
	process := newTestProcess(t, vm, 1)
	pages := []hostarch.Addr{testVA, testVA + hostarch.PageSize, testVA + 2*hostarch.PageSize}
	for _, va := range pages {
		process.RegisterUninitPage(models.KindAnon, va, true, nil, nil)
	}
	process.Write(pages[0], []byte("a"))
	process.Write(pages[1], []byte("b"))

	// Cargar la tercera desaloja a la primera; la segunda recibió su segunda oportunidad.
	process.Write(pages[2], []byte("c"))
	// Ahora la aguja quedó después del marco reusado: la segunda página tiene el bit apagado
	// y la tercera lo tiene prendido, así que la próxima víctima es la segunda.
	if _, err := process.Read(pages[0], 1); err != nil {
		t.Fatalf("Read: %v", err)
	}

	if process.SPT().Find(pages[1]).Resident() {
		t.Errorf("expected the page without second chance to be evicted")
	}
	if !process.SPT().Find(pages[2]).Resident() || !process.SPT().Find(pages[0]).Resident() {
		t.Errorf("expected recently used pages to be resident")
	}
}

func TestEviction_ResidencyInvariant(t *testing.T) {
	vm := newTestVM(t, 2, 16)
	process := newTestProcess(t, vm, 1)
	for i := 0; i < 6; i++ {
		va := testVA + hostarch.Addr(i*hostarch.PageSize)
		process.RegisterUninitPage(models.KindAnon, va, true, nil, nil)
		if err := process.Write(va, []byte{byte('a' + i)}); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	resident := 0
	for _, page := range process.SPT().Pages() {
		_, mapped := process.PageDir().Lookup(page.VA)
		frame, inTable := vm.frames.frameOf(page)
		if page.Resident() != mapped || page.Resident() != inTable {
			t.Errorf("page %v: resident=%v mapped=%v inTable=%v", page.VA, page.Resident(), mapped, inTable)
		}
		if inTable {
			resident++
			if frame.owner != process || frame.va != page.VA {
				t.Errorf("frame %d does not point back to page %v", frame.ID, page.VA)
			}
		}
	}
	if resident != 2 {
		t.Errorf("expected 2 resident pages, got %d", resident)
	}

	for i := 0; i < 6; i++ {
		data, err := process.Read(testVA+hostarch.Addr(i*hostarch.PageSize), 1)
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		if data[0] != byte('a'+i) {
			t.Errorf("page %d: expected %q, got %q", i, 'a'+i, data[0])
		}
	}
}

func TestAcquire_ConcurrentProcessesShareSmallPool(t *testing.T) {
	const (
		processes = 4
		pages     = 8
	)
	vm := newTestVM(t, 3, processes*pages)

	var wg sync.WaitGroup
	errs := make(chan error, processes)
	for pid := uint(1); pid <= processes; pid++ {
		process := newTestProcess(t, vm, pid)
		for i := 0; i < pages; i++ {
			process.RegisterUninitPage(models.KindAnon, testVA+hostarch.Addr(i*hostarch.PageSize), true, nil, nil)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < pages; i++ {
				va := testVA + hostarch.Addr(i*hostarch.PageSize)
				if err := process.Write(va, []byte(fmt.Sprintf("pid%d-%d", pid, i))); err != nil {
					errs <- err
					return
				}
			}
			for i := 0; i < pages; i++ {
				va := testVA + hostarch.Addr(i*hostarch.PageSize)
				want := fmt.Sprintf("pid%d-%d", pid, i)
				data, err := process.Read(va, len(want))
				if err != nil {
					errs <- err
					return
				}
				if string(data) != want {
					errs <- fmt.Errorf("PID %d página %d: esperaba %q, leyó %q", pid, i, want, data)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if used := vm.Stats().UsedFrames; used > 3 {
		t.Errorf("expected at most 3 frames in use, got %d", used)
	}
}

func TestAcquire_WaitsWhileOtherProcessPinsEveryFrame(t *testing.T) {
	vm := newTestVM(t, 1, 4)
	loading := newTestProcess(t, vm, 1)
	waiting := newTestProcess(t, vm, 2)

	started, release := make(chan struct{}), make(chan struct{})
	slowLoader := func(_ *models.Page, frame []byte) error {
		close(started)
		<-release
		copy(frame, "lento")
		return nil
	}
	loading.RegisterUninitPage(models.KindAnon, testVA, true, slowLoader, nil)
	waiting.RegisterUninitPage(models.KindAnon, testVA, true, nil, nil)

	claimed := make(chan error, 1)
	go func() { claimed <- loading.Claim(testVA) }()
	<-started

	written := make(chan error, 1)
	go func() { written <- waiting.Write(testVA, []byte("rapido")) }()

	select {
	case err := <-written:
		t.Fatalf("write finished while the only frame was pinned: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-claimed; err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := <-written; err != nil {
		t.Fatalf("Write after unpin: %v", err)
	}
	if !waiting.SPT().Find(testVA).Resident() || loading.SPT().Find(testVA).Resident() {
		t.Errorf("expected the waiter to take the frame by evicting the loaded page")
	}

	data, err := loading.Read(testVA, 5)
	if err != nil || string(data) != "lento" {
		t.Errorf("expected evicted page to come back from swap, got %q, %v", data, err)
	}
}

func TestAcquire_OwnPinIsOutOfMemory(t *testing.T) {
	vm := newTestVM(t, 1, 1)
	process := newTestProcess(t, vm, 1)
	first := models.NewUninitPage(models.KindAnon, testVA, true, nil, nil)
	second := models.NewUninitPage(models.KindAnon, testVA+hostarch.PageSize, true, nil, nil)

	frame, err := vm.frames.acquire(process, first)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer vm.frames.release(frame)

	if _, err := vm.frames.acquire(process, second); !errors.Is(err, models.ErrOutOfMemory) {
		t.Errorf("expected ErrOutOfMemory when only the caller pins frames, got %v", err)
	}
}
