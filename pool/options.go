package pool

import (
	"go.uber.org/zap"

	"mangrove/catalog"
	"mangrove/executor"
	"mangrove/middleware"
)

type options struct {
	regions       []string
	allRegions    bool
	defaultRegion string
	credentials   catalog.Credentials
	connect       bool
	executor      *executor.Executor
	logger        *zap.Logger
	middleware    []middleware.Middleware
}

// Option configures a Pool. Options given to NewGroup apply to every pool of
// the group; the declaration document decides regions and default region.
type Option func(*options)

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// WithRegions declares an explicit region list. "*" as the only element
// selects every catalog region; nil or empty declares none.
func WithRegions(regions ...string) Option {
	return func(o *options) {
		o.regions = regions
		o.allRegions = false
	}
}

// WithAllRegions selects every region the catalog knows for the service.
func WithAllRegions() Option {
	return func(o *options) {
		o.regions = nil
		o.allRegions = true
	}
}

// WithDefaultRegion picks the default region; it must be one of the regions.
func WithDefaultRegion(region string) Option {
	return func(o *options) {
		o.defaultRegion = region
	}
}

// WithCredentials sets the credentials used by Connect and AddRegion.
func WithCredentials(creds catalog.Credentials) Option {
	return func(o *options) {
		o.credentials = creds
	}
}

// WithConnect makes construction submit the dial-outs right away.
func WithConnect(connect bool) Option {
	return func(o *options) {
		o.connect = connect
	}
}

// WithExecutor runs dial-outs on e instead of a private executor. The caller
// keeps ownership of e.
func WithExecutor(e *executor.Executor) Option {
	return func(o *options) {
		o.executor = e
	}
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMiddleware wraps every dial-out, first middleware outermost. Repeated
// calls append.
func WithMiddleware(mw ...middleware.Middleware) Option {
	return func(o *options) {
		o.middleware = append(o.middleware, mw...)
	}
}
