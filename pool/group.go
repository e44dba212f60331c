package pool

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"mangrove/catalog"
	"mangrove/config"
	apperrors "mangrove/errors"
	"mangrove/executor"
)

// Group owns one Pool per declared service. Its declaration document is a
// private copy: adding services never touches the document it was built from.
type Group struct {
	catalog  catalog.Catalog
	opts     []Option
	exec     *executor.Executor
	ownsExec bool
	logger   *zap.Logger
	pools    map[string]*Pool
	decl     config.Document
}

// NewGroup validates doc and builds a pool for each of its services, in
// sorted name order. Nothing is built when validation fails. opts apply to
// every pool; all pools share one executor.
func NewGroup(ctx context.Context, cat catalog.Catalog, doc config.Document, opts ...Option) (*Group, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	g := &Group{
		catalog:  cat,
		opts:     opts,
		exec:     o.executor,
		ownsExec: o.executor == nil,
		logger:   o.logger,
		pools:    make(map[string]*Pool),
		decl:     config.Document{},
	}
	if g.ownsExec {
		g.exec = executor.New(0)
	}

	for _, name := range doc.Names() {
		if err := g.add(ctx, name, doc[name]); err != nil {
			_ = g.Close()
			return nil, err
		}
	}
	return g, nil
}

// AddService builds a pool for name and records its declaration. Nil regions
// declare the wildcard. Adding a name that already exists replaces its pool,
// which is closed, and its declaration.
func (g *Group) AddService(ctx context.Context, name string, regions []string, defaultRegion string, opts ...Option) error {
	sc := config.ServiceConfig{
		Regions:       config.AllRegions(),
		DefaultRegion: defaultRegion,
	}
	if regions != nil {
		sc.Regions = config.RegionList(regions...)
	}
	if err := sc.Validate(name); err != nil {
		return err
	}
	return g.add(ctx, name, sc, opts...)
}

func (g *Group) add(ctx context.Context, name string, sc config.ServiceConfig, extra ...Option) error {
	opts := make([]Option, 0, len(g.opts)+len(extra)+3)
	opts = append(opts, g.opts...)
	opts = append(opts, WithExecutor(g.exec), declared(sc), WithDefaultRegion(sc.DefaultRegion))
	opts = append(opts, extra...)

	p, err := New(ctx, g.catalog, name, opts...)
	if err != nil {
		return err
	}

	if old, ok := g.pools[name]; ok {
		if err := old.Close(); err != nil {
			g.logger.Warn("close replaced pool", zap.String("service", name), zap.Error(err))
		}
	}
	g.pools[name] = p
	g.decl[name] = sc.Clone()
	g.logger.Debug("service added", zap.String("service", name), zap.Strings("regions", p.Regions()))
	return nil
}

// declared turns a region declaration into the matching pool option. An
// absent declaration selects every region.
func declared(sc config.ServiceConfig) Option {
	if sc.Regions.Kind == config.RegionsAbsent || sc.Regions.IsWildcard() {
		return WithAllRegions()
	}
	return WithRegions(sc.Regions.Regions()...)
}

// Connect submits the dial-outs of every pool. A failing pool does not stop
// the others; failures are combined.
func (g *Group) Connect(ctx context.Context) error {
	var err error
	for _, name := range g.Services() {
		err = multierr.Append(err, g.pools[name].Connect(ctx))
	}
	return err
}

// Service returns the pool of name.
func (g *Group) Service(name string) (*Pool, error) {
	p, ok := g.pools[name]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeUnknownService,
			fmt.Sprintf("service %q is not part of the group", name),
			map[string]string{"service": name})
	}
	return p, nil
}

// Services returns the service names in sorted order.
func (g *Group) Services() []string {
	names := make([]string, 0, len(g.pools))
	for name := range g.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Region returns the connection of region in the pool of service.
func (g *Group) Region(service, region string) (catalog.Conn, error) {
	p, err := g.Service(service)
	if err != nil {
		return nil, err
	}
	return p.Region(region)
}

// Declaration returns a copy of the group's declaration document.
func (g *Group) Declaration() config.Document {
	return g.decl.Clone()
}

// Close closes every pool and combines their errors.
func (g *Group) Close() error {
	var err error
	for _, name := range g.Services() {
		err = multierr.Append(err, g.pools[name].Close())
	}
	if g.ownsExec {
		g.exec.Wait()
	}
	return err
}
