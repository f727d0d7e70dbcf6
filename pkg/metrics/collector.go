package metrics

import (
	"time"

	"github.com/nodeforge/fleetengine/pkg/storage"
	"github.com/nodeforge/fleetengine/pkg/types"
)

// Coordinator is the subset of pkg/coordinator's API the collector polls.
type Coordinator interface {
	Store() storage.Store
	Stats() map[string]any
	IsLeader() bool
}

// Collector periodically samples cluster/node/action/raft gauges so
// Prometheus always reflects current state between transitions, not just
// the counters pkg/dispatcher, pkg/lock and pkg/depgraph record inline.
type Collector struct {
	coord  Coordinator
	stopCh chan struct{}
}

// NewCollector builds a Collector over coord.
func NewCollector(coord Coordinator) *Collector {
	return &Collector{coord: coord, stopCh: make(chan struct{})}
}

// Start begins sampling every 15 seconds, collecting once immediately.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() { close(c.stopCh) }

func (c *Collector) collect() {
	c.collectClusterMetrics()
	c.collectNodeMetrics()
	c.collectActionMetrics()
	c.collectEngineMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectClusterMetrics() {
	clusters, err := c.coord.Store().ListClusters(storage.ListOptions{IsAdmin: true})
	if err != nil {
		return
	}
	counts := make(map[types.ClusterStatus]int)
	for _, cl := range clusters {
		counts[cl.Status]++
	}
	for status, count := range counts {
		ClustersTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectNodeMetrics() {
	nodes, err := c.coord.Store().ListNodes(storage.ListOptions{IsAdmin: true})
	if err != nil {
		return
	}
	counts := make(map[types.NodeStatus]int)
	for _, n := range nodes {
		counts[n.Status]++
	}
	for status, count := range counts {
		NodesTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectActionMetrics() {
	actions, err := c.coord.Store().ListActions(storage.ListOptions{IsAdmin: true, Filters: map[string]string{"status": string(types.ActionReady)}})
	if err != nil {
		return
	}
	ActionQueueDepth.Set(float64(len(actions)))
}

func (c *Collector) collectEngineMetrics() {
	services, err := c.coord.Store().ListServices()
	if err != nil {
		return
	}
	alive := 0
	now := time.Now()
	for _, s := range services {
		if !s.Disabled && now.Sub(s.UpdatedAt) < time.Hour {
			alive++
		}
	}
	EnginesAliveTotal.Set(float64(alive))
}

func (c *Collector) collectRaftMetrics() {
	if c.coord.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	stats := c.coord.Stats()
	if stats == nil {
		return
	}
	if peers, ok := stats["peers"].(int); ok {
		RaftPeers.Set(float64(peers))
	}
	if applied, ok := stats["applied_index"].(uint64); ok {
		RaftAppliedIndex.Set(float64(applied))
	}
}
