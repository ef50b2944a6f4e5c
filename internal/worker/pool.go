package worker

import (
	"context"
	"errors"
	"sort"
	"sync"

	"coffeeshop/internal/config"

	"github.com/sirupsen/logrus"
)

// Pool spawns the configured number of independent workers and waits for
// them. Workers do not coordinate; the pool only keeps a registry so that
// their status can be reported.
type Pool struct {
	cfg  *config.Config
	open SinkOpener

	mu       sync.RWMutex
	sessions map[int]*Session
}

// NewPool builds a pool. A nil opener uses OpenSinks.
func NewPool(cfg *config.Config, open SinkOpener) *Pool {
	if open == nil {
		open = OpenSinks
	}
	return &Pool{cfg: cfg, open: open, sessions: make(map[int]*Session)}
}

// Run starts every worker and blocks until all of them have stopped. Workers
// that fail to start are logged and skipped; their errors are joined into
// the returned error.
func (p *Pool) Run(ctx context.Context) error {
	if !p.cfg.HasSink() {
		return p.cfg.Validate()
	}

	logrus.Infof("starting workers | threads=%d waitSeconds=%d", p.cfg.Threads, p.cfg.WaitSeconds)

	errs := make([]error, p.cfg.Threads)
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Threads; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			sess, err := Start(ctx, id, p.cfg, p.open)
			if err != nil {
				logrus.WithField("worker", id).Errorf("worker did not start: %v", err)
				errs[id] = err
				return
			}
			p.register(sess)
			sess.Run(ctx)
		}(i)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (p *Pool) register(s *Session) {
	p.mu.Lock()
	p.sessions[s.ID()] = s
	p.mu.Unlock()
}

// Session looks up a started worker.
func (p *Pool) Session(id int) (*Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[id]
	return s, ok
}

// Statuses reports every started worker ordered by id.
func (p *Pool) Statuses() []Status {
	p.mu.RLock()
	out := make([]Status, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, s.Status())
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
