// Package propagate fans a ban or unban decision out to every connected
// server except the one where the action already happened. Per-server
// failures are isolated: they surface as operator notifications and never
// stop the sweep.
package propagate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"warden/internal/metrics"
	"warden/internal/notify"
	"warden/internal/platform"
	"warden/internal/registry"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Mode selects the direction of a propagation sweep.
type Mode string

const (
	ModeBan   Mode = "ban"
	ModeUnban Mode = "unban"
)

// Result is the observed outcome of one per-server call. Every result is
// consumed: failures become notifications, successes become debug logs.
type Result struct {
	ServerID string
	Mode     Mode
	Err      error
}

// Dispatcher performs propagation sweeps.
type Dispatcher struct {
	client        platform.Client
	registry      *registry.Registry
	notifier      *notify.Notifier
	retentionDays int

	// sem bounds concurrent per-server platform calls across all sweeps.
	sem *semaphore.Weighted
}

// New creates a dispatcher. maxConcurrent bounds in-flight platform calls.
func New(client platform.Client, reg *registry.Registry, notifier *notify.Notifier, retentionDays int, maxConcurrent int64) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &Dispatcher{
		client:        client,
		registry:      reg,
		notifier:      notifier,
		retentionDays: retentionDays,
		sem:           semaphore.NewWeighted(maxConcurrent),
	}
}

// Propagate starts a sweep in the background and returns immediately. The
// sweep outlives the caller's request context; cancellation of that context
// must not abort half-applied cross-server state.
func (d *Dispatcher) Propagate(ctx context.Context, userID string, mode Mode, reason, originServerID string) {
	go d.Sweep(context.WithoutCancel(ctx), userID, mode, reason, originServerID)
}

// Sweep synchronously applies the decision on every connected server except
// the origin and returns the per-server results.
func (d *Dispatcher) Sweep(ctx context.Context, userID string, mode Mode, reason, originServerID string) []Result {
	servers := d.registry.All()
	results := make([]Result, 0, len(servers))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, srv := range servers {
		if srv.ID == originServerID {
			continue
		}

		srv := srv
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := d.sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				results = append(results, Result{ServerID: srv.ID, Mode: mode, Err: err})
				mu.Unlock()
				return
			}
			defer d.sem.Release(1)

			res := Result{ServerID: srv.ID, Mode: mode, Err: d.apply(ctx, srv.ID, userID, reason, mode)}
			d.observe(ctx, userID, res)

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}

	wg.Wait()
	return results
}

func (d *Dispatcher) apply(ctx context.Context, serverID, userID, reason string, mode Mode) error {
	switch mode {
	case ModeBan:
		return d.client.Ban(ctx, serverID, userID, reason, d.retentionDays)
	case ModeUnban:
		err := d.client.Unban(ctx, serverID, userID)
		if errors.Is(err, platform.ErrNotFound) {
			// Not banned there counts as success.
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown propagation mode %q", mode)
	}
}

// observe consumes one per-server result. Failures go to the service log;
// the blacklist entry stays the durable source of truth, so a failed server
// is retried on that user's next join or message there.
func (d *Dispatcher) observe(ctx context.Context, userID string, res Result) {
	if res.Err == nil {
		log.Debug().Str("server", res.ServerID).Str("user", userID).Str("mode", string(res.Mode)).
			Msg("propagate: applied")
		metrics.PropagationTotal.WithLabelValues(string(res.Mode), "ok").Inc()
		return
	}

	metrics.PropagationTotal.WithLabelValues(string(res.Mode), "error").Inc()
	d.notifier.ServiceLog(ctx, fmt.Sprintf(
		"Could not %s user %s on server %s: %v", res.Mode, platform.Mention(userID), res.ServerID, res.Err))
}
