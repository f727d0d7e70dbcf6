package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPCheckerHealthyOnOpenPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	c := NewTCPChecker(ln.Addr().String())
	result := c.Check(context.Background())

	assert.True(t, result.Healthy)
	assert.Equal(t, CheckTypeTCP, c.Type())
}

func TestTCPCheckerUnhealthyOnClosedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := NewTCPChecker(addr).WithTimeout(0)
	result := c.Check(context.Background())

	assert.False(t, result.Healthy)
}

func TestHTTPCheckerHealthyOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPChecker(srv.URL)
	result := c.Check(context.Background())

	assert.True(t, result.Healthy)
	assert.Equal(t, CheckTypeHTTP, c.Type())
}

func TestHTTPCheckerUnhealthyOutsideStatusRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPChecker(srv.URL)
	result := c.Check(context.Background())

	assert.False(t, result.Healthy)
}

func TestExecCheckerHealthyOnSuccess(t *testing.T) {
	c := NewExecChecker([]string{"true"})
	result := c.Check(context.Background())

	assert.True(t, result.Healthy)
	assert.Equal(t, CheckTypeExec, c.Type())
}

func TestExecCheckerUnhealthyOnFailure(t *testing.T) {
	c := NewExecChecker([]string{"false"})
	result := c.Check(context.Background())

	assert.False(t, result.Healthy)
}

func TestStatusMarksUnhealthyAfterRetryThreshold(t *testing.T) {
	s := NewStatus()
	cfg := DefaultConfig()
	cfg.Retries = 2

	s.Update(Result{Healthy: false}, cfg)
	assert.True(t, s.Healthy)

	s.Update(Result{Healthy: false}, cfg)
	assert.False(t, s.Healthy)

	s.Update(Result{Healthy: true}, cfg)
	assert.True(t, s.Healthy)
	assert.Equal(t, 0, s.ConsecutiveFailures)
}
