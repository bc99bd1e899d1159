package estimate

// SamplePool collects the speed samples accepted during one window, in
// arrival order. It grows monotonically and is discarded with its window.
// The pool has a single writer (the window controller); ordering matters
// because later samples' fusion weights depend on the accumulated variance
// of earlier same-kind samples.
type SamplePool struct {
	samples []SpeedSample
}

// Append adds an accepted sample. Samples are never removed or reordered.
func (p *SamplePool) Append(s SpeedSample) {
	p.samples = append(p.samples, s)
}

// Len returns the number of samples in the pool.
func (p *SamplePool) Len() int {
	return len(p.samples)
}

// Snapshot returns a copy of the samples in arrival order, safe to hand to
// the fusion engine or to observers while the pool keeps growing.
func (p *SamplePool) Snapshot() []SpeedSample {
	out := make([]SpeedSample, len(p.samples))
	copy(out, p.samples)
	return out
}
