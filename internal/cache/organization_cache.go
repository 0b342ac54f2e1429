package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
)

const (
	cacheName          = "organization"
	defaultTTL         = 5 * time.Minute
	defaultNegativeTTL = 30 * time.Second
)

type entry struct {
	org       *model.Organization
	notFound  bool
	expiresAt time.Time
}

// OrganizationCache memoizes organization lookups by phone number id. Unknown
// phone numbers are remembered for a shorter time so webhook traffic for
// unconfigured numbers does not reach the database on every change.
type OrganizationCache struct {
	repo        storage.OrganizationRepo
	ttl         time.Duration
	negativeTTL time.Duration
	now         func() time.Time

	mu      sync.RWMutex
	byPhone map[string]entry
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// Ensure OrganizationCache implements storage.OrganizationRepo
var _ storage.OrganizationRepo = (*OrganizationCache)(nil)

// NewOrganizationCache wraps repo. A zero ttl selects the default.
func NewOrganizationCache(repo storage.OrganizationRepo, ttl time.Duration) *OrganizationCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	negative := defaultNegativeTTL
	if ttl < negative {
		negative = ttl
	}
	return &OrganizationCache{
		repo:        repo,
		ttl:         ttl,
		negativeTTL: negative,
		now:         time.Now,
		byPhone:     make(map[string]entry),
	}
}

// FindByPhoneNumberID returns the cached organization or loads it. Concurrent
// misses for the same key share one query.
func (c *OrganizationCache) FindByPhoneNumberID(ctx context.Context, phoneNumberID string) (*model.Organization, error) {
	c.mu.RLock()
	e, ok := c.byPhone[phoneNumberID]
	c.mu.RUnlock()

	if ok && c.now().Before(e.expiresAt) {
		c.hits.Add(1)
		if e.notFound {
			observer.IncCacheLookup(cacheName, "negative_hit")
			return nil, apperrors.ErrNotFound
		}
		observer.IncCacheLookup(cacheName, "hit")
		return e.org, nil
	}

	c.misses.Add(1)
	observer.IncCacheLookup(cacheName, "miss")

	v, err, _ := c.group.Do(phoneNumberID, func() (interface{}, error) {
		org, err := c.repo.FindByPhoneNumberID(ctx, phoneNumberID)
		switch {
		case err == nil:
			c.store(phoneNumberID, entry{org: org, expiresAt: c.now().Add(c.ttl)})
		case errors.Is(err, apperrors.ErrNotFound):
			c.store(phoneNumberID, entry{notFound: true, expiresAt: c.now().Add(c.negativeTTL)})
		}
		return org, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Organization), nil
}

// FindByID is not cached.
func (c *OrganizationCache) FindByID(ctx context.Context, id string) (*model.Organization, error) {
	return c.repo.FindByID(ctx, id)
}

// FindByVerifyToken is not cached.
func (c *OrganizationCache) FindByVerifyToken(ctx context.Context, token string) (*model.Organization, error) {
	return c.repo.FindByVerifyToken(ctx, token)
}

func (c *OrganizationCache) store(key string, e entry) {
	c.mu.Lock()
	c.byPhone[key] = e
	c.mu.Unlock()
}

// Invalidate drops the entry for phoneNumberID.
func (c *OrganizationCache) Invalidate(phoneNumberID string) {
	c.mu.Lock()
	delete(c.byPhone, phoneNumberID)
	c.mu.Unlock()
}

// Stats returns the hit and miss counts since creation.
func (c *OrganizationCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
