// Package resolver provides the two-tier collaborator lookup the migration
// orchestrator uses: a discovery tier backed by a service registry, then a
// direct-construction tier of registered factories. The tiers are chained
// strategies; a miss in every tier is a CollaboratorUnavailable condition.
package resolver

import (
	"context"
	"sync"

	dErrors "policybridge/pkg/domain-errors"
)

// Resolver looks up a collaborator handle by service name.
type Resolver interface {
	// Resolve returns the collaborator, or a CodeUnavailable domain error
	// when the name is unknown to this tier.
	Resolve(ctx context.Context, name string) (any, error)
}

// Discovery is the first tier: a registry of already-running collaborator
// handles, registered at startup or by a control plane.
type Discovery struct {
	mu       sync.RWMutex
	services map[string]any
}

func NewDiscovery() *Discovery {
	return &Discovery{services: make(map[string]any)}
}

// Register announces a running collaborator under name. Re-registration
// replaces the previous handle.
func (d *Discovery) Register(name string, svc any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.services[name] = svc
}

// Deregister removes a collaborator; later lookups fall through to the next
// tier.
func (d *Discovery) Deregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.services, name)
}

func (d *Discovery) Resolve(_ context.Context, name string) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if svc, ok := d.services[name]; ok {
		return svc, nil
	}
	return nil, dErrors.Newf(dErrors.CodeUnavailable, "service %s not discovered", name)
}

// Factory constructs a collaborator on demand.
type Factory func(ctx context.Context) (any, error)

// Construction is the second tier: direct construction from registered
// factories, used when discovery has no live handle.
type Construction struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewConstruction() *Construction {
	return &Construction{factories: make(map[string]Factory)}
}

func (c *Construction) RegisterFactory(name string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = f
}

func (c *Construction) Resolve(ctx context.Context, name string) (any, error) {
	c.mu.RLock()
	f, ok := c.factories[name]
	c.mu.RUnlock()
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeUnavailable, "no factory for service %s", name)
	}
	svc, err := f(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "construction of "+name+" failed")
	}
	return svc, nil
}

// Chain tries each tier in order and returns the first hit. Only when every
// tier misses does the caller see CollaboratorUnavailable, and nothing has
// been committed at that point.
type Chain struct {
	tiers []Resolver
}

func NewChain(tiers ...Resolver) *Chain {
	return &Chain{tiers: tiers}
}

func (c *Chain) Resolve(ctx context.Context, name string) (any, error) {
	for _, tier := range c.tiers {
		svc, err := tier.Resolve(ctx, name)
		if err == nil {
			return svc, nil
		}
		if !dErrors.HasCode(err, dErrors.CodeUnavailable) {
			return nil, err
		}
	}
	return nil, dErrors.Newf(dErrors.CodeUnavailable, "no resolver tier produced service %s", name)
}

// ResolveAs resolves name and type-asserts the handle. A type mismatch is an
// internal wiring error, not an availability problem.
func ResolveAs[T any](ctx context.Context, r Resolver, name string) (T, error) {
	var zero T
	svc, err := r.Resolve(ctx, name)
	if err != nil {
		return zero, err
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, dErrors.Newf(dErrors.CodeInternal, "service %s has unexpected type %T", name, svc)
	}
	return typed, nil
}
