package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mangrove/catalog"
)

const tracerName = "mangrove/middleware"

// TracingMiddleware opens one client span per dial-out. A nil provider uses
// the global one.
func TracingMiddleware(tp trace.TracerProvider) Middleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(tracerName)
	return func(next DialFunc) DialFunc {
		return func(ctx context.Context, req Request) (catalog.Conn, error) {
			ctx, span := tracer.Start(ctx, "mangrove.dial",
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String("mangrove.service", req.Service),
					attribute.String("mangrove.region", req.Region),
				),
			)
			defer span.End()

			conn, err := next(ctx, req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			return conn, nil
		}
	}
}
