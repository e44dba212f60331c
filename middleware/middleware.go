// Package middleware wraps dial-outs with cross-cutting behaviour.
//
// A pool hands every region dial-out to a DialFunc; middlewares decorate it the
// same way HTTP handlers are decorated:
//
//	dial := Chain(LoggingMiddleware(log), TimeOutMiddleware(5*time.Second))(base)
package middleware

import (
	"context"
	"fmt"

	"mangrove/catalog"
	apperrors "mangrove/errors"
)

// Request identifies one dial-out.
type Request struct {
	Service     string
	Region      string
	Credentials catalog.Credentials
}

type DialFunc func(ctx context.Context, req Request) (catalog.Conn, error)

type Middleware func(next DialFunc) DialFunc

// Chain combines middlewares into one; the first one given runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next DialFunc) DialFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// ServiceDialFunc dials through the catalog handle of a service. Failures come
// back as connectivity failures naming the service and region.
func ServiceDialFunc(svc catalog.Service) DialFunc {
	return func(ctx context.Context, req Request) (catalog.Conn, error) {
		conn, err := svc.Dial(ctx, req.Region, req.Credentials)
		if err != nil {
			return nil, DialFailure(req, fmt.Sprintf("dial %s/%s", req.Service, req.Region), err)
		}
		return conn, nil
	}
}

// DialFailure wraps err as a connectivity failure of req.
func DialFailure(req Request, message string, err error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeConnectivityFailure, message,
		map[string]string{"service": req.Service, "region": req.Region}, err)
}
