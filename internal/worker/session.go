// Package worker runs the generation and dispatch loops.
//
// Each Session owns its generator, its sinks (database connection and file
// handle included) and its counters. Sessions never share mutable state, so
// the loop needs no locks; the only values read from other goroutines are the
// atomic counters exposed through Status.
package worker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"coffeeshop/internal/config"
	"coffeeshop/internal/sale"
	"coffeeshop/internal/sink"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle position of a Session.
type State int32

const (
	Starting State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type sinkCounters struct {
	delivered atomic.Int64
	failed    atomic.Int64
}

// Session is one worker: a sequential generate, dispatch, wait loop.
type Session struct {
	id        int
	log       *logrus.Entry
	gen       *sale.Generator
	sinks     []sink.Sink
	counters  []*sinkCounters
	maxWait   time.Duration
	maxCycles int64
	rng       *rand.Rand

	state     atomic.Int32
	cycles    atomic.Int64
	lastError atomic.Value // string

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSession assembles a session around already opened sinks. It fails with
// config.ErrConfiguration when no sink is given.
func NewSession(id int, cfg *config.Config, sinks []sink.Sink) (*Session, error) {
	if len(sinks) == 0 {
		return nil, fmt.Errorf("%w: worker %d has no sink configured", config.ErrConfiguration, id)
	}
	s := &Session{
		id:        id,
		log:       logrus.WithField("worker", id),
		gen:       sale.NewGenerator(sale.Options{Historic: cfg.HistoricData, Static: cfg.StaticData}),
		sinks:     sinks,
		counters:  make([]*sinkCounters, len(sinks)),
		maxWait:   time.Duration(cfg.WaitSeconds) * time.Second,
		maxCycles: int64(cfg.MaxCycles),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
		stopCh:    make(chan struct{}),
	}
	for i := range s.counters {
		s.counters[i] = &sinkCounters{}
	}
	s.lastError.Store("")
	return s, nil
}

// Start opens the configured sinks and returns a session ready to Run.
// Configuration and bootstrap failures are returned and the session never
// starts.
func Start(ctx context.Context, id int, cfg *config.Config, open SinkOpener) (*Session, error) {
	if !cfg.HasSink() {
		return nil, fmt.Errorf("%w: worker %d has no sink configured", config.ErrConfiguration, id)
	}
	if open == nil {
		open = OpenSinks
	}
	sinks, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}
	s, err := NewSession(id, cfg, sinks)
	if err != nil {
		closeAll(sinks, logrus.WithField("worker", id))
		return nil, err
	}
	return s, nil
}

// ID returns the worker number.
func (s *Session) ID() int { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Stop asks the worker to finish its current cycle and exit. It is safe to
// call from any goroutine, any number of times.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Run executes cycles until ctx is cancelled, Stop is called, the cycle limit
// is reached or a sink reports a persistence failure. Sinks are closed before
// Run returns.
func (s *Session) Run(ctx context.Context) {
	s.setState(Running)
	s.log.Infof("worker running | sinks=%d maxWait=%s", len(s.sinks), s.maxWait)
	defer s.shutdown()

	// Once started, a cycle always completes its dispatch.
	dispatchCtx := context.WithoutCancel(ctx)
	for {
		if s.stopping(ctx) {
			return
		}
		if fatal := s.cycle(dispatchCtx); fatal {
			return
		}
		if s.maxCycles > 0 && s.cycles.Load() >= s.maxCycles {
			s.log.Infof("cycle limit reached | cycles=%d", s.maxCycles)
			return
		}
		if !s.wait(ctx) {
			return
		}
	}
}

// cycle generates one record and hands it to every sink. Sink failures stay
// local to their sink; it returns true when one of them is fatal.
func (s *Session) cycle(ctx context.Context) bool {
	rec := s.gen.Next()
	fatal := false
	for i, sk := range s.sinks {
		if err := sk.Write(ctx, rec); err != nil {
			s.counters[i].failed.Add(1)
			s.lastError.Store(err.Error())
			if sink.Fatal(err) {
				s.log.Errorf("%s sink failed, stopping worker: %v", sk.Name(), err)
				fatal = true
				continue
			}
			s.log.Warnf("%s sink dropped record %s: %v", sk.Name(), rec.RecordID, err)
			continue
		}
		s.counters[i].delivered.Add(1)
		s.log.Debugf("%s sink accepted record %s", sk.Name(), rec.RecordID)
	}
	s.cycles.Add(1)
	return fatal
}

func (s *Session) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// wait pauses for a random duration in [0, maxWait). It returns false when
// the worker was stopped during the pause.
func (s *Session) wait(ctx context.Context) bool {
	d := s.jitter()
	if d <= 0 {
		return !s.stopping(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-s.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (s *Session) jitter() time.Duration {
	if s.maxWait <= 0 {
		return 0
	}
	return time.Duration(s.rng.Int63n(int64(s.maxWait)))
}

// shutdown closes every sink on a best effort basis: close errors are logged
// and never propagated.
func (s *Session) shutdown() {
	s.setState(Stopping)
	closeAll(s.sinks, s.log)
	s.setState(Stopped)
	s.log.Infof("worker stopped | cycles=%d", s.cycles.Load())
}

func closeAll(sinks []sink.Sink, log *logrus.Entry) {
	for _, sk := range sinks {
		if err := sk.Close(); err != nil {
			log.Warnf("failed to close %s sink: %v", sk.Name(), err)
		}
	}
}
