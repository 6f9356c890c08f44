package amigocloud

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const goodToken = "good-token"

// handlerTransport serves requests in-process with an http.Handler.
type handlerTransport struct {
	handler http.Handler
}

func (t *handlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	rr := httptest.NewRecorder()
	t.handler.ServeHTTP(rr, req)
	resp := rr.Result()
	resp.Request = req
	return resp, nil
}

type chunkCall struct {
	contentRange string
	uploadID     string
	form         map[string]string
	filename     string
	data         []byte
}

type simpleCall struct {
	form        map[string]string
	filename    string
	contentType string
	data        []byte
}

// fakeAPI records upload traffic and serves /me and websocket sessions.
type fakeAPI struct {
	t *testing.T

	mu        sync.Mutex
	order     []string
	chunks    []chunkCall
	simple    []simpleCall
	completes []gjson.Result

	uploadID     string // raw JSON value of the issued upload_id
	omitUploadID bool
	failChunk    int // index of the chunk answered with 500, -1 for none
}

func newFakeAPI(t *testing.T) (*fakeAPI, chi.Router) {
	f := &fakeAPI{t: t, uploadID: `"u-123"`, failChunk: -1}
	r := chi.NewRouter()
	r.Get("/api/v1/me", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != goodToken {
			http.Error(w, `{"detail":"Invalid token."}`, http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id": 7, "username": "ana", "email": "ana@example.com",
			"first_name": "Ana", "last_name": "Lima", "organization": "acme"}`))
	})
	r.Post("/api/v1/simple", f.handleSimple)
	r.Post("/api/v1/chunked", f.handleChunk)
	r.Post("/api/v1/chunked/complete", f.handleComplete)
	r.Post("/api/v1/users/{owner}/projects/{project}/datasets/upload", f.handleSimple)
	r.Post("/api/v1/users/{owner}/projects/{project}/datasets/chunked_upload", f.handleChunk)
	r.Post("/api/v1/users/{owner}/projects/{project}/datasets/chunked_upload/complete", f.handleComplete)
	return f, r
}

func (f *fakeAPI) handleSimple(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file, hdr, err := r.FormFile("datafile")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	f.mu.Lock()
	f.order = append(f.order, "simple")
	f.simple = append(f.simple, simpleCall{
		form:        flatForm(r),
		filename:    hdr.Filename,
		contentType: hdr.Header.Get("Content-Type"),
		data:        data,
	})
	f.mu.Unlock()
	w.Write([]byte(`{"status": "ok", "mode": "simple"}`))
}

func (f *fakeAPI) handleChunk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file, hdr, err := r.FormFile("datafile")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	f.mu.Lock()
	idx := len(f.chunks)
	f.order = append(f.order, "chunk")
	f.chunks = append(f.chunks, chunkCall{
		contentRange: r.Header.Get("Content-Range"),
		uploadID:     r.FormValue("upload_id"),
		form:         flatForm(r),
		filename:     hdr.Filename,
		data:         data,
	})
	fail, omit, id := f.failChunk == idx, f.omitUploadID, f.uploadID
	f.mu.Unlock()

	if fail {
		http.Error(w, `{"detail":"chunk store unavailable"}`, http.StatusInternalServerError)
		return
	}
	if omit {
		w.Write([]byte(`{"offset": 0}`))
		return
	}
	// later chunks answer with a different id, which the client must ignore
	if idx > 0 {
		id = `"ignored"`
	}
	fmt.Fprintf(w, `{"upload_id": %s, "offset": %d}`, id, idx)
}

func (f *fakeAPI) handleComplete(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.order = append(f.order, "complete")
	f.completes = append(f.completes, gjson.ParseBytes(body))
	f.mu.Unlock()
	w.Write([]byte(`{"status": "complete", "dataset": 99}`))
}

func flatForm(r *http.Request) map[string]string {
	out := map[string]string{}
	if r.MultipartForm == nil {
		return out
	}
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// newTestClient starts h on a local server and returns a client pointed at it.
func newTestClient(t *testing.T, h http.Handler, mutate ...func(*Config)) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := &Config{BaseURL: srv.URL, Token: goodToken}
	for _, m := range mutate {
		m(cfg)
	}
	c, err := New(cfg, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, srv
}
