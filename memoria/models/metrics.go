package models

import "gvisor.dev/gvisor/pkg/atomicbitops"

// Metrics acumula los eventos de memoria virtual de un proceso.
type Metrics struct {
	Faults       atomicbitops.Uint64
	StackGrowths atomicbitops.Uint64
	SwapsIn      atomicbitops.Uint64
	SwapsOut     atomicbitops.Uint64
	FileReads    atomicbitops.Uint64
	FileWrites   atomicbitops.Uint64
}

type MetricsSnapshot struct {
	Faults       uint64 `json:"faults"`
	StackGrowths uint64 `json:"stack_growths"`
	SwapsIn      uint64 `json:"swaps_in"`
	SwapsOut     uint64 `json:"swaps_out"`
	FileReads    uint64 `json:"file_reads"`
	FileWrites   uint64 `json:"file_writes"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Faults:       m.Faults.Load(),
		StackGrowths: m.StackGrowths.Load(),
		SwapsIn:      m.SwapsIn.Load(),
		SwapsOut:     m.SwapsOut.Load(),
		FileReads:    m.FileReads.Load(),
		FileWrites:   m.FileWrites.Load(),
	}
}

// VMStats es la foto global del subsistema.
type VMStats struct {
	TotalFrames   int    `json:"total_frames"`
	UsedFrames    int    `json:"used_frames"`
	ClockHand     int    `json:"clock_hand"`
	Evictions     uint64 `json:"evictions"`
	SwapSlots     int    `json:"swap_slots"`
	SwapSlotsUsed int    `json:"swap_slots_used"`
	Processes     int    `json:"processes"`
}
