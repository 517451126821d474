package cache

import (
	"strings"
	"time"

	subscriptiondomain "github.com/smallbiznis/bundleworks/internal/subscription/domain"
)

const defaultViewTTL = 45 * time.Second

// EntitlementResolverCache stores hot-path subscription views for capability
// and quota checks. The short TTL bounds staleness after a lifecycle change
// or bundle swap.
type EntitlementResolverCache interface {
	GetView(workspaceID string) (subscriptiondomain.View, bool)
	SetView(workspaceID string, view subscriptiondomain.View)
	Invalidate(workspaceID string)
}

type entitlementResolverCache struct {
	views   Cache[string, subscriptiondomain.View]
	viewTTL time.Duration
}

// NewEntitlementResolverCache returns an in-memory cache tuned for the
// entitlement hot path.
func NewEntitlementResolverCache() EntitlementResolverCache {
	return &entitlementResolverCache{
		views:   NewTTLCache[string, subscriptiondomain.View](),
		viewTTL: defaultViewTTL,
	}
}

func (c *entitlementResolverCache) GetView(workspaceID string) (subscriptiondomain.View, bool) {
	return c.views.Get(cacheKey(workspaceID))
}

func (c *entitlementResolverCache) SetView(workspaceID string, view subscriptiondomain.View) {
	if view.WorkspaceID == "" {
		return
	}
	c.views.Set(cacheKey(workspaceID), view, c.viewTTL)
}

func (c *entitlementResolverCache) Invalidate(workspaceID string) {
	c.views.Delete(cacheKey(workspaceID))
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
