/*
Package storage provides BoltDB-backed state persistence for the action
execution engine.

BoltStore implements the Store interface over an embedded bbolt database:
ACID transactions, one bucket per entity kind, JSON-marshaled values keyed
by entity ID (or a composite key for entities that don't have one, like
bindings and credentials).

# Bucket layout

	profiles          (Profile ID)
	clusters          (Cluster ID)
	nodes             (Node ID)
	policies          (Policy ID)
	bindings          (cluster_id/policy_id)
	actions           (Action ID)
	cluster_locks     (Cluster ID)
	node_locks        (Node ID)
	services          (Service ID)
	credentials       (user/project)
	health_registry   (Cluster ID)
	events            (cluster_id/timestamp/sequence)
	counters          (named monotonic counters: node index, event sequence)

# Project scoping, short IDs, pagination

Every List* method takes a ListOptions: a non-admin caller only ever sees
rows in their own project, a caller may address an entity by a unique ID
prefix (ResolveShortID) instead of spelling out the full ID, and Sort takes
"key[:asc|:desc]" pairs with an implicit trailing ":id" tiebreak so a page
boundary is reproducible even when two rows share a sort key.

# Single-writer semantics

bbolt serializes all writers through one file-level lock, so ClaimReadyAction
and GCByEngine can read-then-write within a single transaction and get an
atomic compare-and-swap for free on a single process. pkg/coordinator wraps
the same calls in a Raft log so multiple engine processes get the identical
guarantee across a replicated group.

# See also

  - pkg/coordinator for the replicated wrapper around this Store
  - pkg/lock for the locking policy built on ClusterLock/NodeLock
*/
package storage
