// Package fec implements the sliding-window Random Linear Network Coding
// (RLNC) engine over GF(2^8): a source-symbol-windowed encoder, a
// Gaussian-elimination decoder, and the TAROT cost-minimising rate
// controller that picks the repair count R for a given source count K.
package fec

import (
	"github.com/bondrelay/bond/gf256"
	"github.com/bondrelay/bond/wire"
	"github.com/templexxx/xorsimd"
)

// Symbol is one source symbol: its original sequence number plus payload
// bytes. All symbols in a generation must share the same length; shorter
// symbols are zero-padded by the caller before AddSourceSymbol.
type Symbol struct {
	Seq  uint64
	Data []byte
}

// RepairSymbol is an encoded repair symbol ready to be wrapped in a
// control packet.
type RepairSymbol struct {
	Header wire.FecRepairHeader
	Data   []byte
}

// Encoder is a sliding-window RLNC encoder. It accumulates up to K source
// symbols, then emits R repair symbols as linear combinations over
// GF(2^8), before rolling over to the next generation.
type Encoder struct {
	k, r int
	gen  uint16

	window []Symbol
}

// NewEncoder creates an encoder with the given (K, R) parameters.
func NewEncoder(k, r int) *Encoder {
	return &Encoder{k: k, r: r, window: make([]Symbol, 0, k)}
}

// SetRate hot-swaps K and R. The current partial window is preserved;
// subsequent windows are sized by the new K.
func (e *Encoder) SetRate(k, r int) {
	e.k, e.r = k, r
}

// K returns the current source-symbol window size.
func (e *Encoder) K() int { return e.k }

// R returns the current repair-symbol count.
func (e *Encoder) R() int { return e.r }

// AddSourceSymbol pushes a source symbol into the current window. When the
// window fills to K symbols, it returns the generation's repair symbols
// and clears the window; otherwise it returns nil.
func (e *Encoder) AddSourceSymbol(seq uint64, payload []byte) []RepairSymbol {
	e.window = append(e.window, Symbol{Seq: seq, Data: payload})
	if len(e.window) < e.k {
		return nil
	}
	repairs := e.encodeWindow()
	e.window = e.window[:0]
	e.gen++
	return repairs
}

// Flush emits repair symbols for the current partial window (if any) even
// though it has not filled to K, then clears the window and advances the
// generation.
func (e *Encoder) Flush() []RepairSymbol {
	if len(e.window) == 0 {
		return nil
	}
	repairs := e.encodeWindow()
	e.window = e.window[:0]
	e.gen++
	return repairs
}

func (e *Encoder) encodeWindow() []RepairSymbol {
	n := len(e.window)
	if n == 0 {
		return nil
	}
	symLen := 0
	for _, s := range e.window {
		if len(s.Data) > symLen {
			symLen = len(s.Data)
		}
	}

	repairs := make([]RepairSymbol, 0, e.r)
	scaled := make([][]byte, n)
	for i := range scaled {
		scaled[i] = make([]byte, symLen)
	}

	for j := 0; j < e.r; j++ {
		for i, s := range e.window {
			coeff := gf256.Coefficient(e.gen, uint8(j), i)
			scaleInto(scaled[i], s.Data, coeff)
		}
		repairData := make([]byte, symLen)
		xorsimd.Encode(repairData, scaled)
		repairs = append(repairs, RepairSymbol{
			Header: wire.FecRepairHeader{
				GenerationID: e.gen,
				SymbolIndex:  uint8(j),
				K:            uint8(n),
				R:            uint8(e.r),
			},
			Data: repairData,
		})
	}
	return repairs
}

// scaleInto writes src scaled by coeff (GF(2^8) multiplication) into dst.
// dst must be at least len(src) long; any trailing bytes (from zero-padding
// shorter symbols to the generation's max length) are left zero.
func scaleInto(dst, src []byte, coeff byte) {
	row := &gf256.Mul[coeff]
	for i, b := range src {
		dst[i] = row[b]
	}
	for i := len(src); i < len(dst); i++ {
		dst[i] = 0
	}
}
