package storage

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDSource hands out asset identifiers.
type IDSource interface {
	NextID() string
}

// UUIDSource issues a random UUID per call.
type UUIDSource struct{}

func (UUIDSource) NextID() string { return uuid.NewString() }

// RequestIDs issues identifiers scoped to one request: "<prefix>-01", "<prefix>-02", ...
type RequestIDs struct {
	requestID string
	prefix    string
	n         atomic.Uint32
}

// NewRequestIDs creates an ID source whose IDs are derived from requestID alone.
func NewRequestIDs(requestID string) *RequestIDs {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &RequestIDs{requestID: requestID, prefix: requestID}
}

// NewRunIDs creates an ID source for one run of requestID. Callers may reuse a request ID,
// so every run gets its own random suffix: "<request>-<8 hex>-01".
func NewRunIDs(requestID string) *RequestIDs {
	if requestID == "" {
		return NewRequestIDs("")
	}
	return &RequestIDs{requestID: requestID, prefix: requestID + "-" + uuid.NewString()[:8]}
}

// RequestID is the request the IDs belong to.
func (r *RequestIDs) RequestID() string { return r.requestID }

func (r *RequestIDs) NextID() string {
	return fmt.Sprintf("%s-%02d", r.prefix, r.n.Add(1))
}

type idSourceKey struct{}

// WithIDSource attaches an ID source to the context.
func WithIDSource(ctx context.Context, src IDSource) context.Context {
	return context.WithValue(ctx, idSourceKey{}, src)
}

// IDSourceFromContext returns the context's ID source, or a UUID source.
func IDSourceFromContext(ctx context.Context) IDSource {
	if src, ok := ctx.Value(idSourceKey{}).(IDSource); ok && src != nil {
		return src
	}
	return UUIDSource{}
}

// RequestIDFromContext returns the request ID of a request-scoped source, or "".
func RequestIDFromContext(ctx context.Context) string {
	if src, ok := ctx.Value(idSourceKey{}).(*RequestIDs); ok && src != nil {
		return src.RequestID()
	}
	return ""
}
