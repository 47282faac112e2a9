// Package redistest starts an in-process miniredis server for tests and
// hands back the engine store connected to it.
package redistest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/redis"
)

// New returns a client on a fresh miniredis server. Both are closed when the
// test ends. Keys never expire on their own; use FastForward on the server.
func New(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	c, err := redis.NewClient(config.RedisConfig{Addr: srv.Addr(), PoolSize: 8})
	if err != nil {
		t.Fatalf("connecting to miniredis: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, srv
}

// NewStore is New for tests that only need the store.
func NewStore(t testing.TB) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	c, srv := New(t)
	return c.Store(), srv
}
