// Package driver defines the profile-type boundary ActionEngine calls
// through to actually create, delete, or inspect infrastructure, and a
// typed registry of concrete implementations keyed by (kind, version) —
// the compiled-in replacement for the original's dynamic plugin lookup.
package driver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nodeforge/fleetengine/pkg/types"
)

// Health is a driver's report on a node's current condition.
type Health struct {
	Healthy bool
	Reason  string
}

// RecoverOp selects how NODE_RECOVER asks a driver to heal a node.
type RecoverOp string

const (
	RecoverRebuild  RecoverOp = "REBUILD"
	RecoverRecreate RecoverOp = "RECREATE"
	RecoverEvacuate RecoverOp = "EVACUATE"
)

// ResourceDriver is the profile-type contract: every call is
// synchronous from ActionEngine's perspective, but a driver may internally
// poll until the underlying resource reaches its target status.
type ResourceDriver interface {
	// Create provisions node's backing resource and returns its physical ID.
	Create(ctx context.Context, node *types.Node, profile *types.Profile) (physicalID string, err error)
	// Delete tears down node's backing resource. Idempotent: deleting an
	// already-gone resource is not an error.
	Delete(ctx context.Context, node *types.Node) error
	// Update reconciles node onto newProfile, returning whether a
	// replace/rebuild path was required (vs. an in-place update).
	Update(ctx context.Context, node *types.Node, newProfile *types.Profile) (replaced bool, err error)
	// GetDetails returns driver-reported attributes for the node, used to
	// refresh Node.Data.
	GetDetails(ctx context.Context, node *types.Node) (map[string]any, error)
	// Check reports the node's current health as seen by the backing
	// resource, independent of the Store's cached Status.
	Check(ctx context.Context, node *types.Node) (Health, error)
	// Recover attempts the given recovery operation and reports whether it
	// succeeded.
	Recover(ctx context.Context, node *types.Node, op RecoverOp, params map[string]any) error
}

// Operator is implemented by drivers that support CLUSTER_OPERATION /
// NODE_OPERATION's caller-named, profile-specific actions (e.g. "reboot",
// "rebuild_config") that don't warrant their own ActionKind.
type Operator interface {
	Operation(ctx context.Context, node *types.Node, name string, params map[string]any) error
}

// Key identifies a driver implementation by profile kind and schema version,
// mirroring how Profile itself carries its type string.
type Key struct {
	Kind    string
	Version string
}

func (k Key) String() string { return fmt.Sprintf("%s-%s", k.Kind, k.Version) }

var (
	registryMu sync.RWMutex
	registry   = map[Key]ResourceDriver{}
)

// Register installs a driver for (kind, version) at process init. Calling
// Register twice for the same key overwrites the previous entry, which is
// only ever intentional in tests.
func Register(kind, version string, d ResourceDriver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[Key{Kind: kind, Version: version}] = d
}

// Lookup returns the registered driver for (kind, version), or false if
// none was compiled in.
func Lookup(kind, version string) (ResourceDriver, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[Key{Kind: kind, Version: version}]
	return d, ok
}

// ForProfile resolves the driver for a Profile, parsing its Type field as
// "kind-version" (e.g. "os.nova.server-1.0"), the same convention the
// original system uses for profile type strings.
func ForProfile(p *types.Profile) (ResourceDriver, bool) {
	kind, version := SplitType(p.Type)
	return Lookup(kind, version)
}

// SplitType parses a profile type string of the form "kind-version" into
// its two parts. A type with no "-version" suffix resolves to version "1.0".
func SplitType(profileType string) (kind, version string) {
	if i := strings.LastIndex(profileType, "-"); i > 0 {
		return profileType[:i], profileType[i+1:]
	}
	return profileType, "1.0"
}
