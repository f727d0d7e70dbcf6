// Package dispatcher runs the worker pool that claims READY actions and
// hands them to an Engine, and the heartbeat loop that keeps this engine's
// liveness record current so a dead-engine sweep elsewhere never mistakes
// it for dead mid-run.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nodeforge/fleetengine/pkg/log"
	"github.com/nodeforge/fleetengine/pkg/metrics"
	"github.com/nodeforge/fleetengine/pkg/storage"
	"github.com/nodeforge/fleetengine/pkg/types"
	"github.com/rs/zerolog"
)

// Coordinator is the subset of pkg/coordinator's API the dispatcher needs:
// the replicated claim primitive, and passthrough service-record writes.
type Coordinator interface {
	ClaimReadyAction(engineID string) (*types.Action, error)
	CreateService(s *types.Service) error
	UpdateService(s *types.Service) error
	Store() storage.Store
}

// Engine is the subset of pkg/actionengine.Engine the dispatcher calls.
type Engine interface {
	Execute(ctx context.Context, action *types.Action) error
}

// Dispatcher polls for READY actions and runs them on a bounded worker
// pool: a ticker-driven loop reading from the coordinator, fanning work
// out to goroutines.
type Dispatcher struct {
	coord    Coordinator
	engine   Engine
	engineID string
	poolSize int
	interval time.Duration

	sem    chan struct{}
	wg     sync.WaitGroup
	stopCh chan struct{}
	logger zerolog.Logger
}

// New builds a Dispatcher. engineID identifies this process as an action
// owner and a liveness-record ID; poolSize bounds concurrent Engine.Execute
// calls; interval is config.PeriodicInterval and paces the heartbeat. The
// claim poll runs on its own fixed 250ms ticker.
func New(coord Coordinator, engine Engine, engineID string, poolSize int, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		coord:    coord,
		engine:   engine,
		engineID: engineID,
		poolSize: poolSize,
		interval: interval,
		sem:      make(chan struct{}, poolSize),
		stopCh:   make(chan struct{}),
		logger:   log.WithComponent("dispatcher"),
	}
}

// Start registers this engine's liveness record and launches the claim and
// heartbeat loops in the background.
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.coord.CreateService(&types.Service{
		ID: d.engineID, Host: d.engineID, Binary: "fleetengine", UpdatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("dispatcher: failed to register liveness record: %w", err)
	}

	go d.claimLoop(ctx)
	go d.heartbeatLoop(ctx)
	return nil
}

// Stop signals both loops to exit and waits for in-flight actions to
// finish executing.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

func (d *Dispatcher) claimLoop(ctx context.Context) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.claimOnce(ctx)
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// claimOnce attempts to claim and dispatch every currently-READY action,
// bounded by the worker pool's semaphore so it never over-subscribes.
func (d *Dispatcher) claimOnce(ctx context.Context) {
	for {
		select {
		case d.sem <- struct{}{}:
		default:
			return // pool is full; next tick tries again
		}

		action, err := d.coord.ClaimReadyAction(d.engineID)
		if err != nil {
			<-d.sem
			d.logger.Error().Err(err).Msg("failed to claim ready action")
			return
		}
		if action == nil {
			<-d.sem
			return
		}

		metrics.ActionsClaimedTotal.WithLabelValues(string(action.Action)).Inc()
		metrics.ActionsInFlight.Inc()
		d.wg.Add(1)
		go func(a *types.Action) {
			defer func() {
				<-d.sem
				metrics.ActionsInFlight.Dec()
				d.wg.Done()
			}()
			d.run(ctx, a)
		}(action)
	}
}

func (d *Dispatcher) run(ctx context.Context, action *types.Action) {
	timer := metrics.NewTimer()
	err := d.engine.Execute(ctx, action)

	status := "SUCCEEDED"
	if err != nil {
		status = "FAILED"
		d.logger.Error().Err(err).Str("action_id", action.ID).Str("kind", string(action.Action)).
			Msg("action execution failed")
	}
	timer.ObserveDurationVec(metrics.ActionDuration, string(action.Action), status)
}

// heartbeatLoop rewrites this engine's liveness record every interval, the
// lease pkg/lock's dead-engine rule checks against.
func (d *Dispatcher) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := d.coord.UpdateService(&types.Service{
				ID: d.engineID, Host: d.engineID, Binary: "fleetengine", UpdatedAt: time.Now(),
			}); err != nil {
				d.logger.Error().Err(err).Msg("failed to renew liveness heartbeat")
			}
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
