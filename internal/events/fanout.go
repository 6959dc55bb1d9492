package events

// Invalidator receives the listing invalidation signal.
type Invalidator interface {
	InvalidateListing()
}

// Fanout forwards one invalidation to every configured sink in order.
type Fanout struct {
	sinks []Invalidator
}

// NewFanout creates a Fanout over the non-nil sinks.
func NewFanout(sinks ...Invalidator) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// InvalidateListing signals every sink.
func (f *Fanout) InvalidateListing() {
	for _, s := range f.sinks {
		s.InvalidateListing()
	}
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}
