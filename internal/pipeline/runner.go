package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
)

// Runner fans envelopes across three worker pools over bounded channels:
// admit (normalize+dedup), gateway (noise gate, extraction, validation),
// and scoring. Stage work for a single event stays sequential; only
// distinct events run concurrently.
type Runner struct {
	p        *Pipeline
	ingestCh chan model.Envelope
	gateCh   chan *task
	scoreCh  chan *task
	outcomes chan Outcome
	g        *errgroup.Group
}

// NewRunner builds a runner over this pipeline. Channel capacity comes
// from the queue_size setting.
func (p *Pipeline) NewRunner() *Runner {
	q := p.cfg.Pipeline.QueueSize
	if q <= 0 {
		q = 64
	}
	return &Runner{
		p:        p,
		ingestCh: make(chan model.Envelope, q),
		gateCh:   make(chan *task, q),
		scoreCh:  make(chan *task, q),
		outcomes: make(chan Outcome, q),
	}
}

// Start launches the worker pools. The caller must drain Outcomes; it is
// closed once every enqueued envelope has reached a terminal outcome.
func (r *Runner) Start(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	r.g = g
	cfg := r.p.cfg.Pipeline

	var admitWG, gateWG, scoreWG sync.WaitGroup

	admitWG.Add(cfg.DedupWorkers)
	for i := 0; i < cfg.DedupWorkers; i++ {
		g.Go(func() error {
			defer admitWG.Done()
			return r.admitLoop(ctx)
		})
	}
	go func() {
		admitWG.Wait()
		close(r.gateCh)
	}()

	gateWG.Add(cfg.GatewayWorkers)
	for i := 0; i < cfg.GatewayWorkers; i++ {
		g.Go(func() error {
			defer gateWG.Done()
			return r.gatewayLoop(ctx)
		})
	}
	go func() {
		gateWG.Wait()
		close(r.scoreCh)
	}()

	scoreWG.Add(cfg.ScoringWorkers)
	for i := 0; i < cfg.ScoringWorkers; i++ {
		g.Go(func() error {
			defer scoreWG.Done()
			return r.scoreLoop(ctx)
		})
	}
	go func() {
		scoreWG.Wait()
		close(r.outcomes)
	}()
}

// Enqueue hands an envelope to the admit pool, blocking while the queue
// is full.
func (r *Runner) Enqueue(ctx context.Context, env model.Envelope) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r.ingestCh <- env:
		return nil
	}
}

// Outcomes streams terminal outcomes as events finish.
func (r *Runner) Outcomes() <-chan Outcome {
	return r.outcomes
}

// Drain closes intake and waits for in-flight events to complete. The
// first worker error (store down, context cancelled) is returned.
func (r *Runner) Drain() error {
	close(r.ingestCh)
	return r.g.Wait()
}

func (r *Runner) admitLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-r.ingestCh:
			if !ok {
				return nil
			}
			t, out, err := r.p.admit(ctx, env)
			if err != nil {
				return err
			}
			if out != nil {
				if err := r.emit(ctx, *out); err != nil {
					return err
				}
				continue
			}
			if err := r.forward(ctx, r.gateCh, t); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) gatewayLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-r.gateCh:
			if !ok {
				return nil
			}
			out, err := r.runGatewayStages(ctx, t)
			if err != nil {
				return err
			}
			if out != nil {
				if err := r.emit(ctx, *out); err != nil {
					return err
				}
				continue
			}
			if err := r.forward(ctx, r.scoreCh, t); err != nil {
				return err
			}
		}
	}
}

// runGatewayStages executes the model-backed stages plus the deterministic
// validator, which is cheap enough to keep on the same workers.
func (r *Runner) runGatewayStages(ctx context.Context, t *task) (*Outcome, error) {
	if out, err := r.p.classify(ctx, t); err != nil || out != nil {
		return out, err
	}
	if out, err := r.p.extract(ctx, t); err != nil || out != nil {
		return out, err
	}
	return r.p.validate(ctx, t)
}

func (r *Runner) scoreLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-r.scoreCh:
			if !ok {
				return nil
			}
			out, err := r.p.score(ctx, t)
			if err != nil {
				return err
			}
			if err := r.emit(ctx, *out); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) forward(ctx context.Context, ch chan<- *task, t *task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ch <- t:
		return nil
	}
}

func (r *Runner) emit(ctx context.Context, out Outcome) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r.outcomes <- out:
		return nil
	}
}
