package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cberner/fuser-sub000/fuser"
	"github.com/cberner/fuser-sub000/fuser/fuse"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"
)

// PoolConfig controls a WorkerPool.
type PoolConfig struct {
	// InitialWorkers is the number of workers launched by Start. Values <= 0
	// use DefaultPoolConfig.InitialWorkers. Capped to MaxWorkers.
	InitialWorkers int

	// MaxWorkers bounds the pool. Values <= 0 use
	// DefaultPoolConfig.MaxWorkers.
	MaxWorkers int

	// MaxIdleWorkers lets workers terminate when more than this many sit
	// idle. Values <= 0 disable shrinking; the pool never drops below one
	// worker either way.
	MaxIdleWorkers int

	// CloneFD gives each worker its own duplicated device descriptor so
	// workers don't contend on one descriptor offset inside the kernel.
	CloneFD bool
}

// DefaultPoolConfig provides defaults for WorkerPool.
var DefaultPoolConfig = PoolConfig{
	InitialWorkers: 3,
	MaxWorkers:     10,
}

// WorkerPool serves one Session with a bounded set of worker goroutines.
// Every worker blocks reading the device; the pool grows when a request
// arrives while no other worker is free to take the next one, and optionally
// shrinks when too many workers sit idle.
type WorkerPool struct {
	log     log.Logger
	session *Session
	cfg     PoolConfig

	wg      sync.WaitGroup
	workers atomic.Int32
	idle    atomic.Int32
	nextID  atomic.Uint32
	exiting atomic.Bool

	// mut serializes grow/shrink decisions so the bound holds exactly.
	mut sync.Mutex

	errMut sync.Mutex
	errs   *multierror.Error
}

// NewWorkerPool creates a WorkerPool serving session. Call Start to launch
// the workers, or Run to drive the whole lifecycle under a context.
func NewWorkerPool(l log.Logger, session *Session, cfg PoolConfig) (*WorkerPool, error) {
	if session == nil {
		return nil, fmt.Errorf("session must be set")
	}
	if l == nil {
		l = log.NewNopLogger()
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultPoolConfig.MaxWorkers
	}
	if cfg.InitialWorkers <= 0 {
		cfg.InitialWorkers = DefaultPoolConfig.InitialWorkers
	}
	if cfg.InitialWorkers > cfg.MaxWorkers {
		cfg.InitialWorkers = cfg.MaxWorkers
	}
	return &WorkerPool{log: l, session: session, cfg: cfg}, nil
}

// Start launches the full initial complement of workers.
func (p *WorkerPool) Start() error {
	p.session.state.CAS(int32(SessionCreated), int32(SessionHandshaking))

	p.mut.Lock()
	defer p.mut.Unlock()
	for i := 0; i < p.cfg.InitialWorkers; i++ {
		if err := p.spawn(); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the pool and blocks until it winds down or ctx is canceled.
func (p *WorkerPool) Run(ctx context.Context) error {
	if err := p.Start(); err != nil {
		p.Exit()
		_ = p.Wait()
		return err
	}

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			p.Exit()
		case <-stopped:
		}
	}()

	return p.Wait()
}

// Exit asks all workers to stop and unblocks pending reads by closing the
// session channel.
func (p *WorkerPool) Exit() {
	if p.exiting.CAS(false, true) {
		if err := p.session.Close(); err != nil {
			level.Debug(p.log).Log("msg", "error when closing session", "err", err)
		}
	}
}

// Wait blocks until every worker has stopped and returns the accumulated
// worker errors, if any. The handler's teardown hook is guaranteed to have
// run by the time Wait returns.
func (p *WorkerPool) Wait() error {
	p.wg.Wait()
	p.session.shutdown()

	p.errMut.Lock()
	defer p.errMut.Unlock()
	return p.errs.ErrorOrNil()
}

// Workers returns the current number of live workers.
func (p *WorkerPool) Workers() int {
	return int(p.workers.Load())
}

// spawn launches one worker. Callers hold p.mut.
func (p *WorkerPool) spawn() error {
	ch := p.session.ch
	ownsChannel := false
	if p.cfg.CloneFD {
		cloned, err := ch.Clone()
		if err != nil {
			return fmt.Errorf("cloning device channel: %w", err)
		}
		ch, ownsChannel = cloned, true
	}

	id := p.nextID.Inc()
	p.workers.Inc()
	p.wg.Add(1)
	go p.worker(id, ch, ownsChannel)
	return nil
}

func (p *WorkerPool) worker(id uint32, ch fuse.Channel, ownsChannel bool) {
	defer p.wg.Done()
	defer p.workers.Dec()
	if ownsChannel {
		defer func() { _ = ch.Close() }()
	}

	l := log.With(p.log, "worker", id)
	level.Debug(l).Log("msg", "worker started")
	defer level.Debug(l).Log("msg", "worker stopped")

	ctx := context.Background()
	var buf []byte

	for !p.exiting.Load() && p.session.State() != SessionDestroyed {
		if need := p.session.recvBufferSize(); len(buf) < need {
			buf = make([]byte, need)
		}

		p.idle.Inc()
		hdr, req, err := p.session.readRequest(ch, buf)
		othersIdle := p.idle.Dec()

		switch {
		case errors.Is(err, errRetryRead):
			continue
		case errors.Is(err, errSessionExit):
			// Unmount or channel teardown. The remaining workers observe the
			// same condition on their next read.
			p.exiting.Store(true)
			return
		case err != nil:
			// Framing is lost; the whole session has to come down.
			level.Error(l).Log("msg", "worker failed", "err", err)
			p.recordError(err)
			p.Exit()
			return
		}

		p.maybeGrow(l, othersIdle, hdr.Op)

		if herr := p.session.handleRequest(ctx, ch, hdr, req); herr != nil {
			if errors.Is(herr, errSessionExit) {
				p.exiting.Store(true)
				return
			}
			level.Error(l).Log("msg", "worker failed", "err", herr)
			p.recordError(herr)
			p.Exit()
			return
		}

		if p.shouldShrink() {
			level.Debug(l).Log("msg", "worker idling out")
			return
		}
	}
}

// maybeGrow spawns another worker when a request arrived while no other
// worker was free to pick up the next one. Forget-family bursts are exempt:
// they are cheap, carry no reply, and arrive in storms during cache
// eviction, so they never justify growth.
func (p *WorkerPool) maybeGrow(l log.Logger, othersIdle int32, op fuser.Op) {
	if op == fuser.OpForget || op == fuser.OpBatchForget {
		return
	}
	if othersIdle > 0 || p.exiting.Load() {
		return
	}
	if p.session.State() != SessionReady {
		return
	}

	p.mut.Lock()
	defer p.mut.Unlock()
	if int(p.workers.Load()) >= p.cfg.MaxWorkers {
		return
	}
	if err := p.spawn(); err != nil {
		level.Error(l).Log("msg", "failed to grow pool", "err", err)
	}
}

// shouldShrink reports whether the calling worker should terminate because
// too many workers sit idle.
func (p *WorkerPool) shouldShrink() bool {
	if p.cfg.MaxIdleWorkers <= 0 {
		return false
	}

	p.mut.Lock()
	defer p.mut.Unlock()
	return int(p.idle.Load()) >= p.cfg.MaxIdleWorkers && p.workers.Load() > 1
}

func (p *WorkerPool) recordError(err error) {
	p.errMut.Lock()
	defer p.errMut.Unlock()
	p.errs = multierror.Append(p.errs, err)
}
