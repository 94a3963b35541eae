// Package store defines the domain entities and the persistence contract
// for sessions, endpoints, and captured requests.
package store

import (
	"context"
	"errors"
	"time"
)

// Pagination limits for captured-request reads.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	// ErrNotFound indicates the requested row does not exist (or, for
	// sessions, has expired).
	ErrNotFound = errors.New("not found")

	// ErrInvalidLimit is returned when a page size is outside 1..MaxPageSize.
	ErrInvalidLimit = errors.New("limit must be between 1 and 100")
)

type Session struct {
	ID              string    `json:"id"`
	Slug            string    `json:"slug"`
	SharePin        string    `json:"share_pin"`
	IsPendingDelete bool      `json:"is_pending_delete"`
	ExpiresAt       time.Time `json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
}

type Endpoint struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}

// EndpointWithCount is an endpoint plus its current number of stored requests.
type EndpointWithCount struct {
	Endpoint
	RequestCount int `json:"requestCount"`
}

// CapturedRequest is one persisted inbound request. QueryParams, Headers,
// and Body hold ciphertext (iv:tag:ct hex) when non-empty; everything else
// is plaintext.
type CapturedRequest struct {
	ID            string    `json:"id"`
	EndpointID    string    `json:"endpointId"`
	Method        string    `json:"method"`
	Pathname      string    `json:"pathname"`
	IP            string    `json:"ip"`
	StatusCode    int       `json:"statusCode"`
	ContentType   string    `json:"contentType,omitempty"`
	ContentLength int64     `json:"contentLength"`
	QueryParams   string    `json:"queryParams,omitempty"`
	Headers       string    `json:"headers"`
	Body          string    `json:"body,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RequestSnapshot is the capture-path input: everything about an inbound
// request except the identity and timestamp the store assigns.
type RequestSnapshot struct {
	Method        string
	Pathname      string
	IP            string
	StatusCode    int
	ContentType   string
	ContentLength int64
	QueryParams   string
	Headers       string
	Body          string
}

// RequestSummary is the projection used by list views. It carries no
// payload fields, so list reads never touch ciphertext.
type RequestSummary struct {
	ID        string    `json:"id"`
	Method    string    `json:"method"`
	Pathname  string    `json:"pathname"`
	CreatedAt time.Time `json:"createdAt"`
}

// RequestFilter scopes a list read to one endpoint or to every endpoint
// owned by a session. Exactly one field must be set.
type RequestFilter struct {
	EndpointID string
	SessionID  string
}

type Store interface {
	CreateSession(ctx context.Context, slug, sharePin string, ttl time.Duration) (*Session, error)
	GetSessionBySlug(ctx context.Context, slug string) (*Session, error)
	GetSessionByID(ctx context.Context, id string) (*Session, error)
	DeleteExpiredSessions(ctx context.Context) (int64, error)

	CreateEndpoint(ctx context.Context, sessionID, slug string) (*Endpoint, error)
	GetEndpointBySlug(ctx context.Context, slug string) (*Endpoint, error)
	GetEndpointByID(ctx context.Context, id string) (*Endpoint, error)
	ListEndpoints(ctx context.Context, sessionID string) ([]*EndpointWithCount, error)
	DeleteEndpoint(ctx context.Context, id, sessionID string) error

	// Capture atomically evicts the oldest surplus rows for the endpoint
	// and inserts the new record, so the per-endpoint retention cap holds
	// at every observable point. It returns the stored record and the
	// number of rows evicted.
	Capture(ctx context.Context, endpointID string, snap *RequestSnapshot) (*CapturedRequest, int, error)

	// ListRequests returns up to limit summaries, most recent first, that
	// are strictly older than cursor (when non-empty). The returned cursor
	// is empty when there are no further pages.
	ListRequests(ctx context.Context, f RequestFilter, limit int, cursor string) ([]*RequestSummary, string, error)
	GetRequest(ctx context.Context, id string) (*CapturedRequest, error)

	Close() error
}
