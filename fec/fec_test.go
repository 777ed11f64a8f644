package fec

import (
	"bytes"
	"testing"
)

func symbolOf(n int, fill byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = fill
	}
	return b
}

// TestSingleLossRLNC drops one source symbol out of K=4, R=1 and checks the
// single repair symbol recovers it exactly.
func TestSingleLossRLNC(t *testing.T) {
	enc := NewEncoder(4, 1)
	payloads := [][]byte{
		symbolOf(16, 0xA1),
		symbolOf(16, 0xB2),
		symbolOf(16, 0xC3),
		symbolOf(16, 0xD4),
	}
	var repairs []RepairSymbol
	for i, p := range payloads {
		if rs := enc.AddSourceSymbol(uint64(i), p); rs != nil {
			repairs = rs
		}
	}
	if len(repairs) != 1 {
		t.Fatalf("expected 1 repair symbol, got %d", len(repairs))
	}

	dec := NewDecoder(4)
	const genID = 0
	const k = 4
	const dropped = 2

	var recovered []Recovered
	for i, p := range payloads {
		if i == dropped {
			continue
		}
		rec, ok := dec.AddSource(genID, k, i, p)
		if !ok {
			t.Fatalf("AddSource(%d) rejected", i)
		}
		recovered = append(recovered, rec...)
	}

	rep := repairs[0]
	rec, ok := dec.AddRepair(genID, int(rep.Header.K), int(rep.Header.R), rep.Header.SymbolIndex, rep.Data)
	if !ok {
		t.Fatalf("AddRepair rejected")
	}
	recovered = append(recovered, rec...)

	found := false
	for _, r := range recovered {
		if r.Position == dropped {
			found = true
			if !bytes.Equal(r.Data, payloads[dropped]) {
				t.Fatalf("recovered position %d = %x, want %x", dropped, r.Data, payloads[dropped])
			}
		}
	}
	if !found {
		t.Fatalf("position %d was never recovered; recovered=%v", dropped, recovered)
	}
}

// TestTwoLossTwoRepairRLNC drops two source symbols out of K=4, R=2 and
// checks both repair symbols together recover both losses.
func TestTwoLossTwoRepairRLNC(t *testing.T) {
	enc := NewEncoder(4, 2)
	payloads := [][]byte{
		symbolOf(8, 0x11),
		symbolOf(8, 0x22),
		symbolOf(8, 0x33),
		symbolOf(8, 0x44),
	}
	var repairs []RepairSymbol
	for i, p := range payloads {
		if rs := enc.AddSourceSymbol(uint64(i), p); rs != nil {
			repairs = rs
		}
	}
	if len(repairs) != 2 {
		t.Fatalf("expected 2 repair symbols, got %d", len(repairs))
	}

	dec := NewDecoder(4)
	const genID = 0
	const k = 4
	dropped := map[int]bool{1: true, 3: true}

	recoveredByPos := map[int][]byte{}
	for i, p := range payloads {
		if dropped[i] {
			continue
		}
		rec, ok := dec.AddSource(genID, k, i, p)
		if !ok {
			t.Fatalf("AddSource(%d) rejected", i)
		}
		for _, r := range rec {
			recoveredByPos[r.Position] = r.Data
		}
	}
	for _, rep := range repairs {
		rec, ok := dec.AddRepair(genID, int(rep.Header.K), int(rep.Header.R), rep.Header.SymbolIndex, rep.Data)
		if !ok {
			t.Fatalf("AddRepair rejected")
		}
		for _, r := range rec {
			recoveredByPos[r.Position] = r.Data
		}
	}

	for pos := range dropped {
		data, ok := recoveredByPos[pos]
		if !ok {
			t.Fatalf("position %d was never recovered", pos)
		}
		if !bytes.Equal(data, payloads[pos]) {
			t.Fatalf("recovered position %d = %x, want %x", pos, data, payloads[pos])
		}
	}
}

// TestRecoverabilityBoundary checks the general property: losing L<=R
// symbols is always recoverable from the remaining sources plus repairs,
// losing L>R symbols is not (the decoder simply never resolves them).
func TestRecoverabilityBoundary(t *testing.T) {
	const k = 6
	const r = 2

	run := func(dropPositions []int) (recoveredAll bool) {
		enc := NewEncoder(k, r)
		payloads := make([][]byte, k)
		for i := range payloads {
			payloads[i] = symbolOf(8, byte(0x10*(i+1)))
		}
		var repairs []RepairSymbol
		for i, p := range payloads {
			if rs := enc.AddSourceSymbol(uint64(i), p); rs != nil {
				repairs = rs
			}
		}

		dropped := map[int]bool{}
		for _, p := range dropPositions {
			dropped[p] = true
		}

		dec := NewDecoder(4)
		const genID = 0
		recoveredByPos := map[int][]byte{}
		for i, p := range payloads {
			if dropped[i] {
				continue
			}
			rec, _ := dec.AddSource(genID, k, i, p)
			for _, rr := range rec {
				recoveredByPos[rr.Position] = rr.Data
			}
		}
		for _, rep := range repairs {
			rec, _ := dec.AddRepair(genID, int(rep.Header.K), int(rep.Header.R), rep.Header.SymbolIndex, rep.Data)
			for _, rr := range rec {
				recoveredByPos[rr.Position] = rr.Data
			}
		}

		for pos := range dropped {
			data, ok := recoveredByPos[pos]
			if !ok || !bytes.Equal(data, payloads[pos]) {
				return false
			}
		}
		return true
	}

	if !run([]int{0, 5}) {
		t.Fatal("losing exactly R=2 symbols should be fully recoverable")
	}
	if run([]int{0, 2, 4}) {
		t.Fatal("losing L=3 > R=2 symbols should not be fully recoverable")
	}
}

// TestDecoderDropsLateArrivalForEvictedGeneration evicts generation 0 by
// pushing maxGenerations newer ones through the decoder, then checks a
// late AddSource for generation 0 is rejected rather than silently
// starting a brand new generation under the same id.
func TestDecoderDropsLateArrivalForEvictedGeneration(t *testing.T) {
	const maxGenerations = 2
	dec := NewDecoder(maxGenerations)
	const k = 4

	if _, ok := dec.AddSource(0, k, 0, symbolOf(8, 0xAA)); !ok {
		t.Fatal("AddSource(gen=0) rejected on first arrival")
	}
	if !dec.held(0) {
		t.Fatal("gen=0 should still be held right after creation")
	}

	// Push maxGenerations fresh generations through to force gen=0 out of
	// the FIFO window.
	for g := uint16(1); g <= maxGenerations; g++ {
		if _, ok := dec.AddSource(g, k, 0, symbolOf(8, byte(g))); !ok {
			t.Fatalf("AddSource(gen=%d) rejected", g)
		}
	}
	if dec.held(0) {
		t.Fatal("gen=0 should have been evicted")
	}

	if _, ok := dec.AddSource(0, k, 1, symbolOf(8, 0xBB)); ok {
		t.Fatal("late AddSource for an evicted generation should be rejected, not treated as fresh")
	}
	if _, ok := dec.AddRepair(0, k, 1, 0, symbolOf(8, 0xCC)); ok {
		t.Fatal("late AddRepair for an evicted generation should be rejected, not treated as fresh")
	}
}

func TestEncoderFlushPartialWindow(t *testing.T) {
	enc := NewEncoder(4, 1)
	enc.AddSourceSymbol(0, symbolOf(8, 1))
	enc.AddSourceSymbol(1, symbolOf(8, 2))
	repairs := enc.Flush()
	if len(repairs) != 1 {
		t.Fatalf("expected 1 repair from partial flush, got %d", len(repairs))
	}
	if repairs[0].Header.K != 2 {
		t.Fatalf("partial flush should record K=2, got %d", repairs[0].Header.K)
	}
}

func TestOptimalRepairCountIncreasesWithLoss(t *testing.T) {
	low := OptimalRepairCount(20, 0.01, 50, DefaultTarotWeights, DefaultRateBounds)
	high := OptimalRepairCount(20, 0.30, 50, DefaultTarotWeights, DefaultRateBounds)
	if high < low {
		t.Fatalf("higher loss should not pick fewer repairs: low=%d high=%d", low, high)
	}
}

func TestOptimalRepairCountRespectsBounds(t *testing.T) {
	bounds := RateBounds{MinRatio: 0.02, MaxRatio: 0.50}
	r := OptimalRepairCount(20, 0.9, 10, DefaultTarotWeights, bounds)
	maxAllowed := int(bounds.MaxRatio * 20)
	if r > maxAllowed {
		t.Fatalf("R=%d exceeds max ratio bound (%d)", r, maxAllowed)
	}
	if r < 1 {
		t.Fatalf("R must be at least 1, got %d", r)
	}
}

func TestOptimalRepairCountNeverExceedsHalfK(t *testing.T) {
	r := OptimalRepairCount(10, 0.5, 5, DefaultTarotWeights, RateBounds{MinRatio: 0, MaxRatio: 1})
	if r > 5 {
		t.Fatalf("R must never exceed K/2: got %d for K=10", r)
	}
}
