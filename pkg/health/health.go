// Package health implements the periodic cluster health-check registry: a periodic
// sweep that claims enabled registry entries and originates a
// CLUSTER_CHECK action for each whose own check interval has elapsed since
// this process last checked it, the same way pkg/dispatcher
// claims and runs individual actions. A cluster's entry is claimed by at
// most one engine at a time; claims are stolen from dead engines using the
// same liveness rule pkg/lock's GC sweep uses.
package health

import (
	"context"
	"time"

	"github.com/nodeforge/fleetengine/pkg/lock"
	"github.com/nodeforge/fleetengine/pkg/log"
	"github.com/nodeforge/fleetengine/pkg/storage"
	"github.com/nodeforge/fleetengine/pkg/types"
	"github.com/rs/zerolog"
)

// Coordinator is the subset of pkg/coordinator's API the registry needs.
// Reads go through Store() directly, the same way pkg/metrics.Collector and
// pkg/actionengine read current state; only the claim/steal CAS goes through
// Raft consensus.
type Coordinator interface {
	Store() storage.Store
	ClaimRegistryEntry(clusterID, engineID string, now time.Time) (*types.RegistryEntry, error)
	StealRegistryEntry(clusterID, engineID string, now time.Time) error
}

// Originator creates the root action a claimed tick should run — normally
// pkg/clusterops.Service.Check, injected here to keep this package
// decoupled from clusterops's full surface.
type Originator interface {
	Check(clusterID string) (*types.Action, error)
}

// Registry runs the per-cluster periodic health-check sweep.
type Registry struct {
	coord            Coordinator
	originator       Originator
	engineID         string
	tickInterval     time.Duration
	periodicInterval time.Duration
	logger           zerolog.Logger
	stopCh           chan struct{}

	// lastChecked tracks, per cluster, the last time this process
	// originated a CLUSTER_CHECK for it. RegistryEntry.UpdatedAt is the
	// claim heartbeat (the claim/steal CAS), not the check
	// cadence, so the two must not share a field: reusing one for both
	// would mean every reaffirmed claim resets the interval countdown.
	lastChecked map[string]time.Time
}

// New builds a Registry. tickInterval paces the claim sweep;
// periodicInterval is config.PeriodicInterval, the same liveness window
// pkg/lock.IsDead uses, so a stuck entry is reclaimed at the same rate a
// stuck lock is.
func New(coord Coordinator, originator Originator, engineID string, tickInterval, periodicInterval time.Duration) *Registry {
	return &Registry{
		coord:            coord,
		originator:       originator,
		engineID:         engineID,
		tickInterval:     tickInterval,
		periodicInterval: periodicInterval,
		logger:           log.WithComponent("health"),
		stopCh:           make(chan struct{}),
		lastChecked:      make(map[string]time.Time),
	}
}

// Start launches the sweep loop in the background.
func (r *Registry) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop signals the sweep loop to exit.
func (r *Registry) Stop() { close(r.stopCh) }

func (r *Registry) run(ctx context.Context) {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(ctx)
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep claims every entry this engine is eligible for and originates one
// CLUSTER_CHECK per claimed entry whose check interval has elapsed.
func (r *Registry) sweep(ctx context.Context) {
	entries, err := r.coord.Store().ListRegistryEntries()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list health registry entries")
		return
	}

	now := time.Now()
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		if e.EngineID != "" && e.EngineID != r.engineID {
			holder, err := r.coord.Store().GetService(e.EngineID)
			if err != nil {
				r.logger.Error().Err(err).Str("cluster_id", e.ClusterID).Msg("failed to resolve registry claimant")
				continue
			}
			if !lock.IsDead(holder, r.periodicInterval, now) {
				continue
			}
			if err := r.coord.StealRegistryEntry(e.ClusterID, r.engineID, now); err != nil {
				r.logger.Error().Err(err).Str("cluster_id", e.ClusterID).Msg("failed to steal dead engine's registry entry")
				continue
			}
		}

		claimed, err := r.coord.ClaimRegistryEntry(e.ClusterID, r.engineID, now)
		if err != nil {
			r.logger.Error().Err(err).Str("cluster_id", e.ClusterID).Msg("failed to claim registry entry")
			continue
		}
		if claimed.EngineID != r.engineID {
			continue
		}
		if last, ok := r.lastChecked[e.ClusterID]; ok && now.Sub(last) < e.Interval {
			continue
		}

		if _, err := r.originator.Check(e.ClusterID); err != nil {
			r.logger.Error().Err(err).Str("cluster_id", e.ClusterID).Msg("failed to originate periodic cluster check")
			continue
		}
		r.lastChecked[e.ClusterID] = now
	}
}
