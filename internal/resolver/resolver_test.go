package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "policybridge/pkg/domain-errors"
)

type fakeParser struct{ name string }

func TestChainFallsBackToConstruction(t *testing.T) {
	ctx := context.Background()

	discovery := NewDiscovery()
	construction := NewConstruction()
	construction.RegisterFactory("file-parser", func(context.Context) (any, error) {
		return &fakeParser{name: "constructed"}, nil
	})
	chain := NewChain(discovery, construction)

	t.Run("discovery wins when registered", func(t *testing.T) {
		discovered := &fakeParser{name: "discovered"}
		discovery.Register("file-parser", discovered)
		defer discovery.Deregister("file-parser")

		svc, err := chain.Resolve(ctx, "file-parser")
		require.NoError(t, err)
		assert.Same(t, discovered, svc)
	})

	t.Run("construction serves a discovery miss", func(t *testing.T) {
		svc, err := chain.Resolve(ctx, "file-parser")
		require.NoError(t, err)
		assert.Equal(t, "constructed", svc.(*fakeParser).name)
	})

	t.Run("miss in every tier is collaborator unavailable", func(t *testing.T) {
		_, err := chain.Resolve(ctx, "routing-engine")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func TestResolveAs(t *testing.T) {
	ctx := context.Background()
	discovery := NewDiscovery()
	discovery.Register("file-parser", &fakeParser{})

	t.Run("matching type", func(t *testing.T) {
		p, err := ResolveAs[*fakeParser](ctx, discovery, "file-parser")
		require.NoError(t, err)
		assert.NotNil(t, p)
	})

	t.Run("wrong type is internal, not unavailable", func(t *testing.T) {
		_, err := ResolveAs[string](ctx, discovery, "file-parser")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
		assert.False(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func TestConstructionFactoryError(t *testing.T) {
	ctx := context.Background()
	construction := NewConstruction()
	construction.RegisterFactory("doc-store", func(context.Context) (any, error) {
		return nil, assert.AnError
	})

	_, err := construction.Resolve(ctx, "doc-store")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}
