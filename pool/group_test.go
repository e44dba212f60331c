package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangrove/catalog/catalogtest"
	"mangrove/config"
	apperrors "mangrove/errors"
	"mangrove/executor"
)

func TestGroupFromDocument(t *testing.T) {
	ctx := context.Background()
	doc, err := config.ParseDocument([]byte(`
x:
  regions: ["*"]
  default_region: eu-west-1
ec2:
  regions: [us-west-2, us-east-1]
`))
	require.NoError(t, err)

	g, err := NewGroup(ctx, newCatalog(), doc)
	require.NoError(t, err)
	defer g.Close()

	assert.Equal(t, []string{"ec2", "x"}, g.Services())

	x, err := g.Service("x")
	require.NoError(t, err)
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, x.Regions())
	assert.Equal(t, "eu-west-1", x.DefaultRegion())

	ec2, err := g.Service("ec2")
	require.NoError(t, err)
	assert.Equal(t, []string{"us-west-2", "us-east-1"}, ec2.Regions())
	assert.Equal(t, "", ec2.DefaultRegion())
}

func TestGroupValidationPrecedesConstruction(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		target error
	}{
		{name: "default without regions", doc: "x:\n  default_region: us-east-1\n", target: apperrors.ErrInvalidConfiguration},
		{name: "non-wildcard string", doc: "x:\n  regions: us-east-1\n", target: apperrors.ErrInvalidConfiguration},
		{name: "wrong type", doc: "x:\n  regions: 3\n", target: apperrors.ErrInvalidConfiguration},
		{name: "default not listed", doc: "x:\n  regions: [us-east-1]\n  default_region: eu-west-1\n", target: apperrors.ErrRegionNotDeclared},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := newCatalog()
			doc, err := config.ParseDocument([]byte(tt.doc + "ec2:\n  regions: \"*\"\n"))
			require.NoError(t, err)

			g, err := NewGroup(context.Background(), cat, doc, WithConnect(true))
			require.Error(t, err)
			assert.Nil(t, g)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
			assert.Contains(t, err.Error(), `"x"`)
			// No pool was built, so nothing dialed and no catalog regions were queried.
			assert.Equal(t, 0, cat.TotalDials())
			assert.Equal(t, 0, cat.RegionQueries())
		})
	}
}

func TestGroupUnknownService(t *testing.T) {
	doc := config.Document{"ec3": {Regions: config.AllRegions()}}

	_, err := NewGroup(context.Background(), newCatalog(), doc)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownService))
}

func TestGroupAbsentRegionsSelectsAll(t *testing.T) {
	doc := config.Document{"x": {}}

	g, err := NewGroup(context.Background(), newCatalog(), doc)
	require.NoError(t, err)
	defer g.Close()

	x, err := g.Service("x")
	require.NoError(t, err)
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, x.Regions())
}

func TestGroupConnectDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	cat := catalogtest.New().
		AddService("a", "r1", "r2", "r3", "r4", "r5").
		AddService("b", "r1")
	cat.SetLatency(150 * time.Millisecond)

	doc := config.Document{
		"a": {Regions: config.AllRegions()},
		"b": {Regions: config.RegionList("r1")},
	}
	g, err := NewGroup(ctx, cat, doc)
	require.NoError(t, err)
	defer g.Close()

	start := time.Now()
	require.NoError(t, g.Connect(ctx))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	conns := 0
	for _, service := range g.Services() {
		p, err := g.Service(service)
		require.NoError(t, err)
		for _, region := range p.Regions() {
			conn, err := g.Region(service, region)
			require.NoError(t, err)
			require.NotNil(t, conn)
			conns++
		}
	}
	assert.Equal(t, 6, conns)
	assert.Equal(t, 6, cat.TotalDials())

	// Reading again never dials again.
	_, err = g.Region("a", "r3")
	require.NoError(t, err)
	assert.Equal(t, 6, cat.TotalDials())
}

func TestGroupConnectCombinesFailures(t *testing.T) {
	ctx := context.Background()
	g, err := NewGroup(ctx, newCatalog(), config.Document{
		"x":   {Regions: config.AllRegions()},
		"ec2": {Regions: config.RegionList("us-east-1")},
	})
	require.NoError(t, err)
	defer g.Close()

	ec2, err := g.Service("ec2")
	require.NoError(t, err)
	require.NoError(t, ec2.Close())

	err = g.Connect(ctx)
	require.Error(t, err)

	// The closed pool did not stop the other one.
	_, err = g.Region("x", "us-east-1")
	assert.NoError(t, err)
}

func TestGroupAddService(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog()
	g, err := NewGroup(ctx, cat, config.Document{})
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, g.AddService(ctx, "x", nil, "eu-west-1"))
	x, err := g.Service("x")
	require.NoError(t, err)
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, x.Regions())
	assert.True(t, g.Declaration()["x"].Regions.IsWildcard())

	t.Run("re-adding replaces", func(t *testing.T) {
		require.NoError(t, x.Connect(ctx))
		old, err := x.Region("us-east-1")
		require.NoError(t, err)

		require.NoError(t, g.AddService(ctx, "x", []string{"us-east-1"}, ""))
		assert.Equal(t, []string{"x"}, g.Services())
		assert.Equal(t, []string{"us-east-1"}, g.Declaration()["x"].Regions.Regions())

		replaced, err := g.Service("x")
		require.NoError(t, err)
		assert.NotSame(t, x, replaced)
		assert.Equal(t, []string{"us-east-1"}, replaced.Regions())
		assert.True(t, old.(*catalogtest.Conn).Closed())
	})

	t.Run("invalid declaration keeps previous pool", func(t *testing.T) {
		before, err := g.Service("x")
		require.NoError(t, err)

		err = g.AddService(ctx, "x", []string{"us-east-1"}, "eu-west-1")
		assert.True(t, errors.Is(err, apperrors.ErrRegionNotDeclared))

		after, err := g.Service("x")
		require.NoError(t, err)
		assert.Same(t, before, after)
	})

	t.Run("unknown service", func(t *testing.T) {
		err := g.AddService(ctx, "ec3", nil, "")
		assert.True(t, errors.Is(err, apperrors.ErrUnknownService))
		_, err = g.Service("ec3")
		assert.True(t, errors.Is(err, apperrors.ErrUnknownService))
	})
}

func TestGroupDeclarationIsPerInstance(t *testing.T) {
	ctx := context.Background()
	doc := config.Document{"x": {Regions: config.RegionList("us-east-1")}}

	first, err := NewGroup(ctx, newCatalog(), doc)
	require.NoError(t, err)
	defer first.Close()
	second, err := NewGroup(ctx, newCatalog(), doc)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.AddService(ctx, "ec2", nil, ""))
	decl := first.Declaration()
	decl["x"].Regions.List[0] = "mutated"

	assert.Contains(t, first.Declaration(), "ec2")
	assert.NotContains(t, second.Declaration(), "ec2")
	assert.NotContains(t, doc, "ec2")
	assert.Equal(t, []string{"us-east-1"}, first.Declaration()["x"].Regions.List)
}

func TestGroupSharesExecutor(t *testing.T) {
	ctx := context.Background()
	exec := executor.New(2)
	cat := newCatalog()

	g, err := NewGroup(ctx, cat, config.Document{
		"x":   {Regions: config.AllRegions()},
		"ec2": {Regions: config.AllRegions()},
	}, WithExecutor(exec), WithConnect(true))
	require.NoError(t, err)

	exec.Wait()
	assert.Equal(t, 7, cat.TotalDials())
	require.NoError(t, g.Close())
}
