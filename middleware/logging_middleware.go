package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mangrove/catalog"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next DialFunc) DialFunc {
		return func(ctx context.Context, req Request) (catalog.Conn, error) {
			start := time.Now()
			conn, err := next(ctx, req)
			fields := []zap.Field{
				zap.String("service", req.Service),
				zap.String("region", req.Region),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("dial-out failed", append(fields, zap.Error(err))...)
				return nil, err
			}
			logger.Debug("dial-out succeeded", fields...)
			return conn, nil
		}
	}
}
