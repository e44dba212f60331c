// Package pool keeps per-region connections to named services.
//
// A Pool binds one service descriptor to one connection map. Connect submits a
// dial-out per region and returns at once; each region is resolved the first
// time it is read:
//
//	p, _ := pool.New(ctx, cat, "ec2", pool.WithAllRegions(), pool.WithDefaultRegion("eu-west-1"))
//	_ = p.Connect(ctx)          // never waits on a dial-out
//	conn, err := p.Region("us-east-1") // waits for that region only
//
// A Group owns one Pool per service of a declaration document.
package pool

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"mangrove/catalog"
	"mangrove/connmap"
	"mangrove/descriptor"
	apperrors "mangrove/errors"
	"mangrove/executor"
	"mangrove/middleware"
)

// Pool holds the connections to every declared region of one service.
//
// Configuration methods (Connect, AddRegion, Close) belong to the owning
// goroutine; Region and Default may be called from any goroutine.
type Pool struct {
	desc     *descriptor.Descriptor
	conns    *connmap.Map
	exec     *executor.Executor
	ownsExec bool
	creds    catalog.Credentials
	dial     middleware.DialFunc
	logger   *zap.Logger
	closed   bool
}

// New builds a pool for service. It fails fast on an unknown service or an
// invalid region declaration and does not dial out unless WithConnect(true)
// is given.
func New(ctx context.Context, cat catalog.Catalog, service string, opts ...Option) (*Pool, error) {
	o := buildOptions(opts)

	desc := descriptor.New(cat)
	if err := desc.SetServiceName(ctx, service); err != nil {
		return nil, err
	}
	if o.allRegions {
		if err := desc.SetAllRegions(ctx); err != nil {
			return nil, err
		}
	} else if err := desc.SetRegions(ctx, o.regions); err != nil {
		return nil, err
	}
	if err := desc.SetDefaultRegion(o.defaultRegion); err != nil {
		return nil, err
	}

	exec := o.executor
	ownsExec := exec == nil
	if ownsExec {
		exec = executor.New(0)
	}

	p := &Pool{
		desc:     desc,
		conns:    connmap.New(),
		exec:     exec,
		ownsExec: ownsExec,
		creds:    o.credentials,
		dial:     middleware.Chain(o.middleware...)(middleware.ServiceDialFunc(desc.Service())),
		logger:   o.logger.With(zap.String("service", service)),
	}

	if o.connect {
		if err := p.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Connect submits one dial-out per region with the pool's credentials.
func (p *Pool) Connect(ctx context.Context) error {
	return p.ConnectWith(ctx, p.creds)
}

// ConnectWith submits one dial-out per region with creds and aliases the
// default region. It returns as soon as everything is submitted. Connections
// from an earlier Connect are replaced and closed in the background.
func (p *Pool) ConnectWith(ctx context.Context, creds catalog.Credentials) error {
	if p.closed {
		return apperrors.Newf(apperrors.CodeNotConnected, "pool for %q is closed", p.ServiceName())
	}
	p.creds = creds

	regions := p.desc.Regions()
	next := connmap.New()
	for _, region := range regions {
		next.SetPending(region, executor.Submit(p.exec, ctx, p.dialTask(region, creds)))
	}
	if err := next.SetDefault(p.desc.DefaultRegion()); err != nil {
		p.closeInBackground(next)
		return err
	}

	if stale := p.conns.Replace(next); stale.Len() > 0 {
		p.closeInBackground(stale)
	}
	p.logger.Debug("dial-outs submitted", zap.Strings("regions", regions))
	return nil
}

func (p *Pool) closeInBackground(m *connmap.Map) {
	go func() {
		if err := m.Close(); err != nil {
			p.logger.Warn("close replaced connections", zap.Error(err))
		}
	}()
}

// dialTask dials region through the middleware chain. Failures not already
// reported as connectivity failures are wrapped as one.
func (p *Pool) dialTask(region string, creds catalog.Credentials) func(context.Context) (catalog.Conn, error) {
	req := middleware.Request{
		Service:     p.ServiceName(),
		Region:      region,
		Credentials: creds,
	}
	return func(ctx context.Context) (catalog.Conn, error) {
		conn, err := p.dial(ctx, req)
		if err == nil {
			return conn, nil
		}
		if apperrors.CodeOf(err) == apperrors.CodeConnectivityFailure {
			return nil, err
		}
		return nil, middleware.DialFailure(req, fmt.Sprintf("dial %s/%s", req.Service, req.Region), err)
	}
}

// Region returns the connection of name, waiting for its dial-out if needed.
func (p *Pool) Region(name string) (catalog.Conn, error) {
	return p.conns.Get(name)
}

// Default returns the connection of the default region.
func (p *Pool) Default() (catalog.Conn, error) {
	return p.conns.Default()
}

// AddRegion dials name synchronously, stores the connection and adds name to
// the regions. name must be a catalog region of the service. A failed dial-out
// changes nothing. A region that already resolves to a connection is left
// alone; one whose earlier dial-out failed is dialed again.
func (p *Pool) AddRegion(ctx context.Context, name string) error {
	if p.closed {
		return apperrors.Newf(apperrors.CodeNotConnected, "pool for %q is closed", p.ServiceName())
	}
	if p.desc.HasRegion(name) && p.conns.Has(name) {
		if _, err := p.conns.Get(name); err == nil {
			return nil
		}
	}

	known, err := p.desc.Service().Regions(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(known, name) {
		return apperrors.WithMetadata(apperrors.CodeRegionNotDeclared,
			fmt.Sprintf("region %q is not a catalog region of %q", name, p.ServiceName()),
			map[string]string{"service": p.ServiceName(), "region": name})
	}

	conn, err := p.dialTask(name, p.creds)(ctx)
	if err != nil {
		return err
	}
	p.conns.Set(name, conn)
	p.desc.AppendRegion(name)
	p.logger.Debug("region added", zap.String("region", name))
	return nil
}

// ServiceName returns the service the pool is bound to.
func (p *Pool) ServiceName() string {
	return p.desc.ServiceName()
}

// Regions returns the declared regions.
func (p *Pool) Regions() []string {
	return p.desc.Regions()
}

// DefaultRegion returns the default region, or "".
func (p *Pool) DefaultRegion() string {
	return p.desc.DefaultRegion()
}

// Connected reports whether any region has been submitted for dial-out.
func (p *Pool) Connected() bool {
	return p.conns.Len() > 0
}

// Connections returns the regions holding a connection entry, pending or
// resolved, in submission order.
func (p *Pool) Connections() []string {
	return p.conns.Keys()
}

// Close closes every connection, waiting for pending dial-outs first. A pool
// with its own executor also waits for background work to finish.
func (p *Pool) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	err := p.conns.Close()
	if p.ownsExec {
		p.exec.Wait()
	}
	if err != nil {
		return fmt.Errorf("close pool %q: %w", p.ServiceName(), err)
	}
	return nil
}
