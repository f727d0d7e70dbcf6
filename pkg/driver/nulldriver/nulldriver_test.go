package nulldriver

import (
	"context"
	"net"
	"testing"

	"github.com/nodeforge/fleetengine/pkg/driver/probe"
	"github.com/nodeforge/fleetengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckHealthyWithoutChecker(t *testing.T) {
	d := New()
	node := &types.Node{ID: "n1"}
	id, err := d.Create(context.Background(), node, &types.Profile{ID: "p1"})
	require.NoError(t, err)
	node.PhysicalID = id

	health, err := d.Check(context.Background(), node)
	require.NoError(t, err)
	assert.True(t, health.Healthy)
}

func TestCheckDefersToProbeChecker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	d := NewWithChecker(probe.NewTCPChecker(ln.Addr().String()))
	node := &types.Node{ID: "n1"}
	id, err := d.Create(context.Background(), node, &types.Profile{ID: "p1"})
	require.NoError(t, err)
	node.PhysicalID = id

	health, err := d.Check(context.Background(), node)
	require.NoError(t, err)
	assert.True(t, health.Healthy)
}

func TestCheckUnhealthyWhenProbeCheckerFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	d := NewWithChecker(probe.NewTCPChecker(addr).WithTimeout(0))
	node := &types.Node{ID: "n1"}
	id, err := d.Create(context.Background(), node, &types.Profile{ID: "p1"})
	require.NoError(t, err)
	node.PhysicalID = id

	health, err := d.Check(context.Background(), node)
	require.NoError(t, err)
	assert.False(t, health.Healthy)
}

func TestCheckReportsResourceMissingBeforeConsultingChecker(t *testing.T) {
	d := NewWithChecker(probe.NewTCPChecker("127.0.0.1:0"))
	node := &types.Node{ID: "n1", PhysicalID: "nonexistent"}

	health, err := d.Check(context.Background(), node)
	require.NoError(t, err)
	assert.False(t, health.Healthy)
	assert.Equal(t, "resource missing", health.Reason)
}
