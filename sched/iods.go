package sched

// iodsSample is one entry in a link's monotonic assignment log: the
// sequence assigned and the predicted delay at assignment time.
type iodsSample struct {
	seq           uint64
	predictedDelayMs float64
}

const iodsLogDepth = 16

// iods keeps a small fixed-depth log of assignments per link and can
// score a link's recent predicted-delay trend (Bias/Trend). It never
// vetoes a candidate. The Scheduler only calls Record; no selection path
// reads Bias or Trend, so the log does not influence which link is picked.
type iods struct {
	log map[uint8][]iodsSample
}

func newIoDS() *iods {
	return &iods{log: make(map[uint8][]iodsSample)}
}

func (o *iods) remove(id uint8) { delete(o.log, id) }

// Record appends an assignment to the link's log, bounding it to
// iodsLogDepth entries (FIFO).
func (o *iods) Record(id uint8, seq uint64, predictedDelayMs float64) {
	l := append(o.log[id], iodsSample{seq: seq, predictedDelayMs: predictedDelayMs})
	if len(l) > iodsLogDepth {
		l = l[len(l)-iodsLogDepth:]
	}
	o.log[id] = l
}

// Trend returns the slope of predicted delay over the link's recent
// assignment log: negative means improving (falling delay), which IoDS
// uses to bias ties in that link's favour. Returns 0 with fewer than 2
// samples (no bias).
func (o *iods) Trend(id uint8) float64 {
	l := o.log[id]
	if len(l) < 2 {
		return 0
	}
	first, last := l[0], l[len(l)-1]
	span := float64(last.seq - first.seq)
	if span <= 0 {
		return 0
	}
	return (last.predictedDelayMs - first.predictedDelayMs) / span
}

// Bias returns a small tie-break score; lower is preferred. It never
// excludes a link, only orders equally-ranked candidates.
func (o *iods) Bias(id uint8) float64 {
	return o.Trend(id)
}
