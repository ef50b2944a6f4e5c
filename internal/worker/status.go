package worker

// SinkStatus holds the delivery counters of one sink. For batching sinks
// Delivered only counts committed records; accepted but uncommitted ones are
// reported as Pending.
type SinkStatus struct {
	Name      string `json:"name"`
	Delivered int64  `json:"delivered"`
	Pending   int    `json:"pending,omitempty"`
	Failed    int64  `json:"failed"`
	Flushes   int    `json:"flushes,omitempty"`
}

// batcher is implemented by sinks that commit in batches.
type batcher interface {
	Pending() int
	Committed() int64
	Flushes() int
}

// Status is a point-in-time view of a Session, safe to take from any
// goroutine.
type Status struct {
	ID        int          `json:"id"`
	State     string       `json:"state"`
	Cycles    int64        `json:"cycles"`
	Sinks     []SinkStatus `json:"sinks"`
	LastError string       `json:"last_error,omitempty"`
}

func (s *Session) Status() Status {
	st := Status{
		ID:        s.id,
		State:     s.State().String(),
		Cycles:    s.cycles.Load(),
		Sinks:     make([]SinkStatus, len(s.sinks)),
		LastError: s.lastError.Load().(string),
	}
	for i, sk := range s.sinks {
		st.Sinks[i] = SinkStatus{
			Name:      sk.Name(),
			Delivered: s.counters[i].delivered.Load(),
			Failed:    s.counters[i].failed.Load(),
		}
		if b, ok := sk.(batcher); ok {
			st.Sinks[i].Delivered = b.Committed()
			st.Sinks[i].Pending = b.Pending()
			st.Sinks[i].Flushes = b.Flushes()
		}
	}
	return st
}
