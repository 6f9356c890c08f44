package httpclient

import (
	"context"
	"io"
)

// Requester is the transport surface the API client depends on.
type Requester interface {
	// BuildURL resolves a path against the API root.
	BuildURL(path string) string

	// DoRequest makes a request and returns the buffered response.
	// Non-2xx responses are returned as *HTTPError.
	DoRequest(ctx context.Context, opts RequestOptions) (*Response, error)

	// StreamRequest makes a request and returns the open response body.
	// The caller is responsible for closing the returned reader.
	StreamRequest(ctx context.Context, opts RequestOptions) (io.ReadCloser, error)
}

var _ Requester = &HTTPClient{}
