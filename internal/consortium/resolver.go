package consortium

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "consortium:members:"

// Resolver turns membership rows into harvest sequences. Lookups for the same
// tenant are deduplicated with singleflight and optionally cached in Redis
// with a short TTL; correctness never depends on cache freshness, a stale
// member list only costs an extra or missing harvest hop.
type Resolver struct {
	store  Store
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

type ResolverOption func(r *Resolver)

// WithCache enables Redis caching of membership rows. A nil client disables
// caching, matching how the platform treats unconfigured Redis.
func WithCache(client *redis.Client, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.cache = client
		r.ttl = ttl
	}
}

func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver constructs a Resolver over a membership store.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, ttl: 30 * time.Second, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveSequence returns the tenants a harvest starting at tenantID visits.
// Non-central and consortium-less tenants harvest alone; a central tenant
// yields its non-central members sorted ascending. An empty member list also
// degrades to the tenant itself.
func (r *Resolver) ResolveSequence(ctx context.Context, tenantID string) (Sequence, error) {
	members, err := r.members(ctx, tenantID)
	if err != nil {
		return nil, &LookupError{TenantID: tenantID, Err: err}
	}
	if !isCentral(members, tenantID) {
		return Sequence{tenantID}, nil
	}
	seq := nonCentralSequence(members)
	if len(seq) == 0 {
		return Sequence{tenantID}, nil
	}
	return seq, nil
}

// Locate re-derives the sequence a mid-harvest tenant belongs to and the
// tenant's position in it. A tenant outside any sequence is its own
// one-element sequence. Idempotent and order-stable: the sequence is sorted,
// so repeated calls within one harvest session agree.
func (r *Resolver) Locate(ctx context.Context, tenantID string) (Sequence, int, error) {
	members, err := r.members(ctx, tenantID)
	if err != nil {
		return nil, 0, &LookupError{TenantID: tenantID, Err: err}
	}
	seq := nonCentralSequence(members)
	for i, id := range seq {
		if id == tenantID {
			return seq, i, nil
		}
	}
	return Sequence{tenantID}, 0, nil
}

func (r *Resolver) members(ctx context.Context, tenantID string) ([]Member, error) {
	if cached, ok := r.cacheGet(ctx, tenantID); ok {
		return cached, nil
	}
	v, err, _ := r.group.Do(tenantID, func() (any, error) {
		members, err := r.store.Members(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		r.cacheSet(ctx, tenantID, members)
		return members, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Member), nil
}

func (r *Resolver) cacheGet(ctx context.Context, tenantID string) ([]Member, bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, err := r.cache.Get(ctx, cacheKeyPrefix+tenantID).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.WarnContext(ctx, "membership cache read failed", "tenant", tenantID, "error", err)
		}
		return nil, false
	}
	var members []Member
	if err := json.Unmarshal(raw, &members); err != nil {
		r.logger.WarnContext(ctx, "membership cache entry corrupt, ignoring", "tenant", tenantID, "error", err)
		return nil, false
	}
	return members, true
}

func (r *Resolver) cacheSet(ctx context.Context, tenantID string, members []Member) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(members)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKeyPrefix+tenantID, raw, r.ttl).Err(); err != nil {
		r.logger.WarnContext(ctx, "membership cache write failed", "tenant", tenantID, "error", err)
	}
}

func isCentral(members []Member, tenantID string) bool {
	for _, m := range members {
		if m.TenantID == tenantID {
			return m.Central
		}
	}
	return false
}

func nonCentralSequence(members []Member) Sequence {
	seen := make(map[string]struct{}, len(members))
	var seq Sequence
	for _, m := range members {
		if m.Central {
			continue
		}
		if _, dup := seen[m.TenantID]; dup {
			continue
		}
		seen[m.TenantID] = struct{}{}
		seq = append(seq, m.TenantID)
	}
	sort.Strings(seq)
	return seq
}
