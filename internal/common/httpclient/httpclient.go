// Package httpclient issues authenticated requests against the AmigoCloud REST API.
// It resolves relative API paths against the configured base URL, appends the API
// token as a query parameter, encodes JSON, raw or multipart bodies, and maps any
// non-2xx response to an *HTTPError carrying the offending status and body.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/amigocloud/amigocloud-go/internal/common/logtrace"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIPrefix is appended to the base URL to form the API root.
const APIPrefix = "/api/v1"

// TokenParam is the query parameter carrying the API token.
const TokenParam = "token"

// Configurator supplies the server location and the current API token.
type Configurator interface {
	GetBaseURL() string
	GetToken() string
}

// HTTPError represents a non-2xx response from the server.
type HTTPError struct {
	StatusCode int    // HTTP status code of the response
	Status     string // status line, e.g. "400 Bad Request"
	Method     string // request method
	URL        string // request URL with the token redacted
	Body       []byte // response body
}

// Error implements the error interface for HTTPError. The response body, when
// present, follows the summary line.
func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
	if len(e.Body) > 0 {
		return msg + "\n" + string(e.Body)
	}
	return msg
}

// HTTPClient makes requests to the AmigoCloud API.
type HTTPClient struct {
	config     Configurator
	httpClient *http.Client
	logger     zerolog.Logger
}

// ClientOptions contains options for configuring the HTTP client.
type ClientOptions struct {
	DisableCertValidation bool              // skips TLS certificate validation
	Timeout               time.Duration     // per-request timeout, 0 means none
	Transport             http.RoundTripper // overrides the default transport
	Logger                *zerolog.Logger   // defaults to the global logger
}

// NewClient creates a new HTTP client using the provided configuration.
func NewClient(config Configurator, opts ...ClientOptions) *HTTPClient {
	var o ClientOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	transport := o.Transport
	if transport == nil && o.DisableCertValidation {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		}
	}

	logger := log.Logger
	if o.Logger != nil {
		logger = *o.Logger
	}

	return &HTTPClient{
		config: config,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   o.Timeout,
		},
		logger: logtrace.Component(logger, "httpclient"),
	}
}

// FilePart is a file field of a multipart request.
type FilePart struct {
	Field       string    // form field name
	Filename    string    // file name sent in the Content-Disposition header
	ContentType string    // defaults to application/octet-stream
	Reader      io.Reader // file content
}

// RequestOptions describes a single API request.
//
// The body is chosen as follows: Files present means a multipart body made of Form
// and Files; otherwise a non-nil Body is sent as is with ContentType; otherwise
// GET and HEAD requests carry no body and every other request carries JSON (an
// empty object when JSON is nil).
type RequestOptions struct {
	Method      string            // HTTP method
	Path        string            // absolute URL or path relative to the API root
	QueryParams map[string]string // appended unless already present in Path
	Headers     map[string]string // extra request headers
	JSON        any               // JSON body
	Body        []byte            // raw body
	ContentType string            // content type of a raw body
	Form        map[string]string // form fields of a multipart body
	Files       []FilePart        // file fields of a multipart body
}

// Response is a successful API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// BuildURL resolves path against the API root. Absolute http(s) URLs are returned
// unchanged.
func (c *HTTPClient) BuildURL(path string) string {
	return BuildURL(c.config.GetBaseURL(), path)
}

// BuildURL resolves path against baseURL + APIPrefix.
func BuildURL(baseURL, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	apiURL := strings.TrimRight(baseURL, "/") + APIPrefix
	if strings.HasPrefix(path, "/") {
		return apiURL + path
	}
	return apiURL + "/" + path
}

// DoRequest makes an HTTP request with the given options and returns the full
// response body. Non-2xx responses are returned as *HTTPError.
func (c *HTTPClient) DoRequest(ctx context.Context, opts RequestOptions) (*Response, error) {
	req, err := c.newRequest(ctx, opts)
	if err != nil {
		return nil, err
	}

	l := logtrace.Ctx(ctx, c.logger)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: request failed: %w", req.Method, redact(req.URL), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response body: %w", req.Method, redact(req.URL), err)
	}

	l.Debug().
		Str("method", req.Method).
		Str("url", redact(req.URL)).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Method:     req.Method,
			URL:        redact(req.URL),
			Body:       body,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// StreamRequest makes an HTTP request and returns the open response body.
// The caller is responsible for closing the returned reader.
func (c *HTTPClient) StreamRequest(ctx context.Context, opts RequestOptions) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, opts)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: request failed: %w", req.Method, redact(req.URL), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Method:     req.Method,
			URL:        redact(req.URL),
			Body:       body,
		}
	}

	return resp.Body, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, opts RequestOptions) (*http.Request, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	u, err := url.Parse(c.BuildURL(opts.Path))
	if err != nil {
		return nil, fmt.Errorf("invalid request URL %q: %w", opts.Path, err)
	}
	params := make(map[string]string, len(opts.QueryParams)+1)
	for k, v := range opts.QueryParams {
		params[k] = v
	}
	if token := c.config.GetToken(); token != "" {
		if _, ok := params[TokenParam]; !ok {
			params[TokenParam] = token
		}
	}
	addQueryParams(u, params)

	body, contentType, err := encodeBody(method, opts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// addQueryParams appends params to the query of u, skipping keys the query already
// carries. The existing query string is preserved byte for byte.
func addQueryParams(u *url.URL, params map[string]string) {
	if len(params) == 0 {
		return
	}
	existing := u.Query()
	keys := make([]string, 0, len(params))
	for k := range params {
		if !existing.Has(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(u.RawQuery)
	for _, k := range keys {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	u.RawQuery = b.String()
}

func encodeBody(method string, opts RequestOptions) (io.Reader, string, error) {
	switch {
	case len(opts.Files) > 0:
		return encodeMultipart(opts.Form, opts.Files)
	case opts.Body != nil:
		return bytes.NewReader(opts.Body), opts.ContentType, nil
	case method == http.MethodGet || method == http.MethodHead:
		return nil, "", nil
	}

	data := opts.JSON
	if data == nil {
		data = map[string]any{}
	}
	if raw, ok := data.([]byte); ok {
		return bytes.NewReader(raw), "application/json", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode JSON body: %w", err)
	}
	return bytes.NewReader(b), "application/json", nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(form map[string]string, files []FilePart) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, form[k]); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %q: %w", k, err)
		}
	}

	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.Filename)))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part %q: %w", f.Field, err)
		}
		if f.Reader != nil {
			if _, err := io.Copy(part, f.Reader); err != nil {
				return nil, "", fmt.Errorf("failed to write file part %q: %w", f.Field, err)
			}
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// redact returns u as a string with the token query parameter masked.
func redact(u *url.URL) string {
	q := u.Query()
	if !q.Has(TokenParam) {
		return u.String()
	}
	cp := *u
	q.Set(TokenParam, "xxxxx")
	cp.RawQuery = q.Encode()
	return cp.String()
}
