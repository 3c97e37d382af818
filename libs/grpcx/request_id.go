package grpcx

import (
	"context"

	"github.com/agendave/agendave/libs/httpx"
)

// RequestIDMetadataKey is the metadata key used for request id propagation over gRPC.
const RequestIDMetadataKey = "x-request-id"

// RequestIDFromContext shares the request id slot with the HTTP middleware so
// logs carry the same key regardless of transport.
func RequestIDFromContext(ctx context.Context) string {
	return httpx.RequestIDFromContext(ctx)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return httpx.ContextWithRequestID(ctx, id)
}
