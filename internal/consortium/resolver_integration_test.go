//go:build integration

package consortium_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oai-edge/internal/consortium"
	"oai-edge/internal/consortium/store"
	"oai-edge/pkg/testutil/containers"
)

// countingStore wraps the in-memory store to observe cache effectiveness.
type countingStore struct {
	*store.InMemory
	calls int
}

func (c *countingStore) Members(ctx context.Context, tenantID string) ([]consortium.Member, error) {
	c.calls++
	return c.InMemory.Members(ctx, tenantID)
}

func TestResolverCachesMembershipInRedis(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	backing := &countingStore{InMemory: store.NewInMemory()}
	backing.AddConsortium("mobius",
		consortium.Member{TenantID: "central", Central: true},
		consortium.Member{TenantID: "tenant1"},
		consortium.Member{TenantID: "tenant2"},
	)

	resolver := consortium.NewResolver(backing,
		consortium.WithCache(rc.Client, 30*time.Second))

	seq, err := resolver.ResolveSequence(ctx, "central")
	require.NoError(t, err)
	assert.Equal(t, consortium.Sequence{"tenant1", "tenant2"}, seq)
	assert.Equal(t, 1, backing.calls)

	// Second lookup is served from the cache.
	seq, err = resolver.ResolveSequence(ctx, "central")
	require.NoError(t, err)
	assert.Equal(t, consortium.Sequence{"tenant1", "tenant2"}, seq)
	assert.Equal(t, 1, backing.calls)

	require.NoError(t, rc.FlushAll(ctx))

	_, err = resolver.ResolveSequence(ctx, "central")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls, "flushed cache falls through to the store")
}
