package fec

import "github.com/bondrelay/bond/gf256"

// Recovered is a symbol the decoder has fully resolved, either because it
// arrived directly or because Gaussian elimination isolated it.
type Recovered struct {
	GenerationID uint16
	Position     int // index within the generation's K source positions
	Data         []byte
}

type row struct {
	coeffs []byte // length k
	data   []byte // length symLen
}

func zeroRow(k, symLen int) row {
	return row{coeffs: make([]byte, k), data: make([]byte, symLen)}
}

// eliminateFrom subtracts factor*other from r in place (GF(2^8); subtraction
// is XOR, same as addition).
func (r row) eliminateFrom(factor byte, other row) {
	mulRow := &gf256.Mul[factor]
	for i := range r.coeffs {
		r.coeffs[i] ^= mulRow[other.coeffs[i]]
	}
	for i := range r.data {
		r.data[i] ^= mulRow[other.data[i]]
	}
}

func (r row) scale(factor byte) {
	mulRow := &gf256.Mul[factor]
	for i := range r.coeffs {
		r.coeffs[i] = mulRow[r.coeffs[i]]
	}
	for i := range r.data {
		r.data[i] = mulRow[r.data[i]]
	}
}

func (r row) isUnitAt(c int) bool {
	if r.coeffs[c] != 1 {
		return false
	}
	for i, v := range r.coeffs {
		if i != c && v != 0 {
			return false
		}
	}
	return true
}

// generation holds the in-progress reduced row-echelon state for one RLNC
// generation: pivots[c] is the (possibly still under-determined) row whose
// leading nonzero column is c.
type generation struct {
	k, r, symLen int
	pivots       []*row
	resolvedMask []bool
	resolved     int
}

func newGeneration(k, r, symLen int) *generation {
	return &generation{
		k:            k,
		r:            r,
		symLen:       symLen,
		pivots:       make([]*row, k),
		resolvedMask: make([]bool, k),
	}
}

func (g *generation) insert(rw row) []int {
	if g.symLen == 0 {
		g.symLen = len(rw.data)
	}
	// Reduce incoming row against every existing pivot.
	for c := 0; c < g.k; c++ {
		if rw.coeffs[c] != 0 && g.pivots[c] != nil {
			factor := rw.coeffs[c]
			rw.eliminateFrom(factor, *g.pivots[c])
		}
	}

	lead := -1
	for c := 0; c < g.k; c++ {
		if rw.coeffs[c] != 0 {
			lead = c
			break
		}
	}
	if lead == -1 {
		// Row is fully explained by existing pivots: redundant, discard.
		return nil
	}

	rw.scale(gf256.Inv[rw.coeffs[lead]])
	stored := rw
	g.pivots[lead] = &stored

	// Back-substitute the new pivot into every other existing pivot row.
	var newlyResolved []int
	for c := 0; c < g.k; c++ {
		if c == lead || g.pivots[c] == nil {
			continue
		}
		p := g.pivots[c]
		if p.coeffs[lead] != 0 {
			factor := p.coeffs[lead]
			p.eliminateFrom(factor, stored)
		}
	}
	for c := 0; c < g.k; c++ {
		if g.resolvedMask[c] || g.pivots[c] == nil {
			continue
		}
		if g.pivots[c].isUnitAt(c) {
			g.resolvedMask[c] = true
			g.resolved++
			newlyResolved = append(newlyResolved, c)
		}
	}
	return newlyResolved
}

func (g *generation) dataAt(c int) []byte {
	return g.pivots[c].data
}

// evictedHistory bounds how many evicted generation ids the decoder keeps
// a record of, so a late arrival long after eviction is counted as late
// rather than, after the record itself ages out, silently starting a new
// generation under a reused id.
const evictedHistory = 256

// Decoder reconstructs source symbols from a stream of source and repair
// arrivals, per generation, bounded to MaxGenerations held concurrently.
type Decoder struct {
	maxGenerations int
	gens           map[uint16]*generation
	order          []uint16 // FIFO of generation ids currently held

	evicted      map[uint16]struct{}
	evictedOrder []uint16 // FIFO of ids in evicted, bounded by evictedHistory
}

// NewDecoder creates a decoder that holds at most maxGenerations concurrent
// generations, evicting the oldest-created generation on overflow.
func NewDecoder(maxGenerations int) *Decoder {
	if maxGenerations < 1 {
		maxGenerations = 1
	}
	return &Decoder{
		maxGenerations: maxGenerations,
		gens:           make(map[uint16]*generation),
		evicted:        make(map[uint16]struct{}),
	}
}

func (d *Decoder) getOrCreate(genID uint16, k, r int) *generation {
	g, ok := d.gens[genID]
	if ok {
		return g
	}
	g = newGeneration(k, r, 0)
	d.gens[genID] = g
	d.order = append(d.order, genID)
	if len(d.order) > d.maxGenerations {
		evict := d.order[0]
		d.order = d.order[1:]
		delete(d.gens, evict)
		d.markEvicted(evict)
	}
	return g
}

func (d *Decoder) markEvicted(genID uint16) {
	if _, already := d.evicted[genID]; already {
		return
	}
	d.evicted[genID] = struct{}{}
	d.evictedOrder = append(d.evictedOrder, genID)
	if len(d.evictedOrder) > evictedHistory {
		oldest := d.evictedOrder[0]
		d.evictedOrder = d.evictedOrder[1:]
		delete(d.evicted, oldest)
	}
}

// held reports whether genID is currently tracked (not evicted as too old).
func (d *Decoder) held(genID uint16) bool {
	if _, ok := d.gens[genID]; ok {
		return true
	}
	_, wasEvicted := d.evicted[genID]
	return !wasEvicted
}

// AddSource feeds a directly-received source symbol at position pos within
// generation genID (out of k total source positions). It returns any
// symbols newly resolved as a side effect (including this one, trivially).
// ok is false if genID has already been evicted (the caller should treat
// this as a late arrival: count and drop per spec §7).
func (d *Decoder) AddSource(genID uint16, k int, pos int, data []byte) (recovered []Recovered, ok bool) {
	if pos < 0 || pos >= k {
		return nil, false
	}
	if !d.held(genID) {
		return nil, false
	}
	g := d.getOrCreate(genID, k, 0)
	if g.k != k {
		// Parameters changed mid-generation: rebuild with the new K,
		// dropping prior state for this id (treated as a fresh generation).
		g = newGeneration(k, g.r, len(data))
		d.gens[genID] = g
	}
	rw := zeroRow(k, len(data))
	rw.coeffs[pos] = 1
	copy(rw.data, data)
	newly := g.insert(rw)
	return d.collect(genID, g, newly), true
}

// AddRepair feeds a received repair symbol. ok is false if the generation
// has already been evicted.
func (d *Decoder) AddRepair(genID uint16, k, r int, symbolIndex uint8, data []byte) (recovered []Recovered, ok bool) {
	if !d.held(genID) {
		return nil, false
	}
	g := d.getOrCreate(genID, k, r)
	if g.k != k {
		g = newGeneration(k, r, len(data))
		d.gens[genID] = g
	}
	rw := zeroRow(k, len(data))
	for i := 0; i < k; i++ {
		rw.coeffs[i] = gf256.Coefficient(genID, symbolIndex, i)
	}
	copy(rw.data, data)
	newly := g.insert(rw)
	return d.collect(genID, g, newly), true
}

func (d *Decoder) collect(genID uint16, g *generation, positions []int) []Recovered {
	out := make([]Recovered, 0, len(positions))
	for _, p := range positions {
		out = append(out, Recovered{GenerationID: genID, Position: p, Data: g.dataAt(p)})
	}
	if g.resolved >= g.k {
		delete(d.gens, genID)
		for i, id := range d.order {
			if id == genID {
				d.order = append(d.order[:i], d.order[i+1:]...)
				break
			}
		}
	}
	return out
}
