package studio

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"studio/internal/domain"
)

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 2 * time.Hour

// SeedLoader reads the persisted state a new session starts from.
type SeedLoader func(ctx context.Context, scope domain.Scope) (Seed, error)

// Registry keeps one session per user and project and expires idle ones. Every job starts
// from a Get, so a ttl longer than the slowest job (see infra.Config.MinSessionTTL) never
// expires a session while its job is in flight.
type Registry struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
	deps  Deps
	load  SeedLoader
}

// NewRegistry creates a registry. load may be nil, in which case sessions start empty.
func NewRegistry(deps Deps, load SeedLoader, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Registry{
		cache: cache.New(ttl, ttl/2),
		ttl:   ttl,
		deps:  deps.withDefaults(),
		load:  load,
	}
}

// Get returns the session of scope, creating it from persisted state on first use.
// Every access extends the session's lifetime.
func (r *Registry) Get(ctx context.Context, scope domain.Scope, plan string) (*Session, error) {
	if !scope.Complete() {
		return nil, domain.ErrMissingContext
	}
	key := scope.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.cache.Get(key); ok {
		sess := v.(*Session)
		if plan != "" {
			sess.SetPlan(plan)
		}
		r.cache.Set(key, sess, cache.DefaultExpiration)
		return sess, nil
	}
	seed := Seed{Scope: scope, Plan: plan}
	if r.load != nil {
		loaded, err := r.load(ctx, scope)
		if err != nil {
			return nil, err
		}
		seed = loaded
		seed.Scope = scope
		if plan != "" {
			seed.Plan = plan
		}
	}
	sess := NewSession(seed, r.deps)
	r.cache.Set(key, sess, cache.DefaultExpiration)
	r.deps.Logger.Debug().Str("project_id", scope.ProjectID).Msg("studio: session created")
	return sess, nil
}

// Peek returns an existing session without creating one.
func (r *Registry) Peek(scope domain.Scope) (*Session, bool) {
	v, ok := r.cache.Get(scope.Key())
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}
