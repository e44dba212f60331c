package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"mangrove/catalog"
)

// RateLimitMiddleware spaces dial-outs with a token bucket. Dial-outs wait
// for a token instead of failing; only a done context aborts the wait.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next DialFunc) DialFunc {
		return func(ctx context.Context, req Request) (catalog.Conn, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, DialFailure(req, fmt.Sprintf("rate limit %s/%s", req.Service, req.Region), err)
			}
			return next(ctx, req)
		}
	}
}
