// Package entitlement answers "may this workspace use this capability"
// from the subscription state and the bundle catalog.
package entitlement

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/bundleworks/internal/cache"
	"github.com/smallbiznis/bundleworks/internal/catalog"
	subscriptiondomain "github.com/smallbiznis/bundleworks/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidCapability = errors.New("invalid_capability")

// Decision explains a capability check, for API responses and audit logs.
type Decision struct {
	Granted     bool                      `json:"granted"`
	Capability  string                    `json:"capability"`
	WorkspaceID string                    `json:"workspace_id"`
	Status      subscriptiondomain.Status `json:"status"`
	// Declared is true when some bundle in the selection carries the
	// capability; a declared capability can still be denied by state.
	Declared bool `json:"declared"`
}

type CheckerParam struct {
	fx.In

	Log           *zap.Logger
	Catalog       *catalog.Catalog
	Subscriptions subscriptiondomain.Service
	Cache         cache.EntitlementResolverCache
}

type Checker struct {
	log           *zap.Logger
	catalog       *catalog.Catalog
	subscriptions subscriptiondomain.Service
	cache         cache.EntitlementResolverCache
}

func NewChecker(p CheckerParam) *Checker {
	return &Checker{
		log:           p.Log.Named("entitlement.checker"),
		catalog:       p.Catalog,
		subscriptions: p.Subscriptions,
		cache:         p.Cache,
	}
}

// Check grants a capability when the subscription is in an entitled state
// and at least one selected bundle declares it.
func (c *Checker) Check(ctx context.Context, workspaceID, capability string) (Decision, error) {
	capability = strings.TrimSpace(capability)
	if capability == "" {
		return Decision{}, ErrInvalidCapability
	}

	view, err := c.resolveView(ctx, workspaceID)
	if err != nil {
		return Decision{}, err
	}

	declared, err := c.catalog.HasCapability(view.BundleCodes, capability)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Granted:     declared && view.Status.Entitled(),
		Capability:  capability,
		WorkspaceID: view.WorkspaceID,
		Status:      view.Status,
		Declared:    declared,
	}, nil
}

// Capabilities lists every capability the workspace currently holds; empty
// when the subscription state is not entitled.
func (c *Checker) Capabilities(ctx context.Context, workspaceID string) ([]string, error) {
	view, err := c.resolveView(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !view.Status.Entitled() {
		return []string{}, nil
	}

	bundles, err := c.catalog.Resolve(view.BundleCodes)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	capabilities := make([]string, 0)
	for _, b := range bundles {
		for _, granted := range b.Capabilities {
			if _, ok := seen[granted]; ok {
				continue
			}
			seen[granted] = struct{}{}
			capabilities = append(capabilities, granted)
		}
	}
	return capabilities, nil
}

// Invalidate drops the cached view after a lifecycle or bundle change.
func (c *Checker) Invalidate(workspaceID string) {
	if c.cache != nil {
		c.cache.Invalidate(workspaceID)
	}
}

func (c *Checker) resolveView(ctx context.Context, workspaceID string) (subscriptiondomain.View, error) {
	if c.cache != nil {
		if view, ok := c.cache.GetView(workspaceID); ok {
			return view, nil
		}
	}
	view, err := c.subscriptions.GetByWorkspace(ctx, workspaceID)
	if err != nil {
		return subscriptiondomain.View{}, err
	}
	if c.cache != nil {
		c.cache.SetView(workspaceID, view)
	}
	return view, nil
}
