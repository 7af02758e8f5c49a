package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/ignite/session-reconciler/internal/attribution"
	"github.com/ignite/session-reconciler/internal/domain"
	"github.com/ignite/session-reconciler/internal/session"
)

// Result holds everything derived from one visitor's event stream.
type Result struct {
	VisitorID string
	Events    []domain.Event
	Indices   []int
	Starts    []domain.SessionStart
	Labels    []attribution.Label
}

// Sessions returns the number of derived sessions for the visitor.
func (r Result) Sessions() int {
	if len(r.Indices) == 0 {
		return 0
	}
	return r.Indices[len(r.Indices)-1]
}

// VisitorPool fans resegmentation and attribution out across visitors.
// Each visitor's scan runs on a single goroutine with its own accumulator
// state, so no locking is needed inside the core; the pool only coordinates
// which goroutine owns which visitor.
type VisitorPool struct {
	numWorkers int
	reseg      *session.Resegmenter
	attr       *attribution.Attributor
}

// NewVisitorPool creates a pool with the given concurrency. A non-positive
// worker count defaults to GOMAXPROCS.
func NewVisitorPool(numWorkers int, reseg *session.Resegmenter, attr *attribution.Attributor) *VisitorPool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	return &VisitorPool{numWorkers: numWorkers, reseg: reseg, attr: attr}
}

// Process runs the full per-visitor derivation for every bucket in grouped.
// Buckets must already be sorted (see session.GroupByVisitor). The first
// visitor error cancels the remaining work and is returned; partial results
// are discarded so callers never see a half-reconciled batch.
func (p *VisitorPool) Process(ctx context.Context, grouped map[string][]domain.Event) (map[string]Result, error) {
	jobs := make(chan string)
	results := make(map[string]Result, len(grouped))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel()
	}

	for w := 0; w < p.numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for visitorID := range jobs {
				if workCtx.Err() != nil {
					return
				}
				res, err := p.processVisitor(visitorID, grouped[visitorID])
				if err != nil {
					setErr(err)
					return
				}
				mu.Lock()
				results[visitorID] = res
				mu.Unlock()
			}
		}()
	}

	for visitorID := range grouped {
		select {
		case jobs <- visitorID:
		case <-workCtx.Done():
		}
		if workCtx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *VisitorPool) processVisitor(visitorID string, events []domain.Event) (Result, error) {
	indices, err := p.reseg.Resegment(events)
	if err != nil {
		return Result{}, fmt.Errorf("resegment visitor %s: %w", visitorID, err)
	}
	starts := session.SessionStarts(events, indices)
	labels, err := p.attr.Attribute(starts)
	if err != nil {
		return Result{}, fmt.Errorf("attribute visitor %s: %w", visitorID, err)
	}
	return Result{
		VisitorID: visitorID,
		Events:    events,
		Indices:   indices,
		Starts:    starts,
		Labels:    labels,
	}, nil
}
