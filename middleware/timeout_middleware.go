package middleware

import (
	"context"
	"fmt"
	"time"

	"mangrove/catalog"
)

type dialResult struct {
	conn catalog.Conn
	err  error
}

// TimeOutMiddleware bounds a dial-out. A connection that arrives after the
// deadline is closed.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next DialFunc) DialFunc {
		return func(ctx context.Context, req Request) (catalog.Conn, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan dialResult, 1)
			go func() {
				conn, err := next(ctx, req)
				done <- dialResult{conn: conn, err: err}
			}()

			select {
			case res := <-done:
				return res.conn, res.err
			case <-ctx.Done():
				go func() {
					if res := <-done; res.conn != nil {
						_ = res.conn.Close()
					}
				}()
				return nil, DialFailure(req, fmt.Sprintf("dial %s/%s timed out after %s", req.Service, req.Region, timeout), ctx.Err())
			}
		}
	}
}
