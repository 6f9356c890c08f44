package amigocloud

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(&Config{BaseURL: "https://example.com", ChunkSize: -5})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&Config{BaseURL: "https://example.com", Timeout: "soon"})
	require.ErrorIs(t, err, ErrInvalidConfig)

	c, err := New(nil, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	assert.Equal(t, "https://www.amigocloud.com", c.BaseURL())
	assert.Equal(t, "https://www.amigocloud.com/api/v1/me", c.BuildURL("/me"))
	assert.Empty(t, c.Token())
}

func TestBaseURLIsPerClient(t *testing.T) {
	a, err := New(&Config{BaseURL: "https://a.example.com/"})
	require.NoError(t, err)
	b, err := New(&Config{BaseURL: "b.example.com"})
	require.NoError(t, err)

	assert.Equal(t, "https://a.example.com/api/v1/projects", a.BuildURL("projects"))
	assert.Equal(t, "https://b.example.com/api/v1/projects", b.BuildURL("/projects"))
	assert.Equal(t, "https://cdn.example.com/x", b.BuildURL("https://cdn.example.com/x"))
}

func TestDefaultConfigIsFresh(t *testing.T) {
	a := DefaultConfig()
	a.ChunkSize = 1
	a.Token = "mutated"
	b := DefaultConfig()
	assert.Equal(t, int64(100000), b.ChunkSize)
	assert.Empty(t, b.Token)
}

func TestAuthenticate(t *testing.T) {
	_, r := newFakeAPI(t)
	c, _ := newTestClient(t, r, func(cfg *Config) { cfg.Token = "" })
	ctx := context.Background()

	assert.Zero(t, c.UserID())
	u, err := c.Authenticate(ctx, goodToken)
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, "ana", u.Username)
	assert.Equal(t, "Ana", u.FirstName)
	assert.Equal(t, "Lima", u.LastName)
	assert.Equal(t, "acme", u.Extra["organization"])
	assert.Equal(t, int64(7), c.UserID())
	assert.Equal(t, goodToken, c.Token())

	c.Logout()
	assert.Zero(t, c.UserID())
	assert.Empty(t, c.Token())
}

func TestAuthenticateFailureLogsOut(t *testing.T) {
	_, r := newFakeAPI(t)
	c, _ := newTestClient(t, r)
	ctx := context.Background()

	_, err := c.Authenticate(ctx, goodToken)
	require.NoError(t, err)

	_, err = c.Authenticate(ctx, "bad-token")
	require.ErrorIs(t, err, ErrRequestFailed)
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusUnauthorized, respErr.StatusCode)
	assert.NotContains(t, err.Error(), "bad-token")
	assert.Contains(t, err.Error(), "Invalid token.")

	assert.Empty(t, c.Token())
	assert.Zero(t, c.UserID())
	assert.Nil(t, c.User())
}

func TestVerbs(t *testing.T) {
	type seen struct {
		method, query, body, contentType string
	}
	var got []seen
	record := func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = append(got, seen{r.Method, r.URL.RawQuery, string(b), r.Header.Get("Content-Type")})
		w.Write([]byte(`{"id": 5, "name": "roads"}`))
	}
	r := chi.NewRouter()
	r.Get("/api/v1/projects/5", record)
	r.Post("/api/v1/projects/5", record)
	r.Put("/api/v1/projects/5", record)
	r.Patch("/api/v1/projects/5", record)
	r.Delete("/api/v1/projects/5", record)
	c, _ := newTestClient(t, r)
	ctx := context.Background()

	resp, err := c.Get(ctx, "projects/5", map[string]string{"format": "json"})
	require.NoError(t, err)
	assert.Equal(t, "roads", resp.Get("name").String())
	var decoded struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, resp.Decode(&decoded))
	assert.Equal(t, 5, decoded.ID)

	_, err = c.Post(ctx, "/projects/5", map[string]any{"name": "roads"})
	require.NoError(t, err)
	_, err = c.Put(ctx, "/projects/5", nil)
	require.NoError(t, err)
	_, err = c.Patch(ctx, "/projects/5", map[string]any{"description": "x"})
	require.NoError(t, err)
	_, err = c.Delete(ctx, "/projects/5", nil)
	require.NoError(t, err)
	_, err = c.Do(ctx, Request{Method: http.MethodPost, Path: "/projects/5", Body: []byte("a,b"), ContentType: "text/csv"})
	require.NoError(t, err)

	require.Len(t, got, 6)
	assert.Equal(t, "format=json&token="+goodToken, got[0].query)
	assert.Empty(t, got[0].body)
	assert.JSONEq(t, `{"name":"roads"}`, got[1].body)
	assert.Equal(t, "{}", got[2].body)
	assert.JSONEq(t, `{"description":"x"}`, got[3].body)
	assert.Equal(t, http.MethodDelete, got[4].method)
	assert.Equal(t, "{}", got[4].body)
	assert.Equal(t, "application/json", got[4].contentType)
	assert.Equal(t, "text/csv", got[5].contentType)
	assert.Equal(t, "a,b", got[5].body)
}

func TestStream(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/export.geojson", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":"FeatureCollection"}`))
	})
	r.Get("/api/v1/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	c, _ := newTestClient(t, r)
	ctx := context.Background()

	rc, err := c.Stream(ctx, Request{Path: "export.geojson"})
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.JSONEq(t, `{"type":"FeatureCollection"}`, string(b))

	_, err = c.Stream(ctx, Request{Path: "gone"})
	require.ErrorIs(t, err, ErrRequestFailed)
}

func TestRequestErrorCarriesResponse(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"name":["This field is required."]}`, http.StatusBadRequest)
	})
	c, _ := newTestClient(t, r)

	_, err := c.Post(context.Background(), "projects", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.ErrorIs(t, err, ErrAmigoCloud)
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusBadRequest, respErr.StatusCode)
	assert.Contains(t, err.Error(), "400 Bad Request")
	assert.Contains(t, err.Error(), "This field is required.")
	assert.NotContains(t, err.Error(), goodToken)
}

func TestTransportErrorIsRequestFailed(t *testing.T) {
	c, err := New(&Config{BaseURL: "http://127.0.0.1:1"}, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "/me", nil)
	require.ErrorIs(t, err, ErrRequestFailed)
	var respErr *ResponseError
	assert.False(t, errors.As(err, &respErr))
}

func TestWithTransport(t *testing.T) {
	_, r := newFakeAPI(t)
	c, err := New(&Config{BaseURL: "https://api.example.invalid"},
		WithLogger(zerolog.Nop()),
		WithTransport(&handlerTransport{handler: r}))
	require.NoError(t, err)

	u, err := c.Authenticate(context.Background(), goodToken)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
}

func TestMeRejectsMalformedPayloads(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/me", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"email": "nobody@example.com"}`))
	})
	c, _ := newTestClient(t, r)
	_, err := c.Me(context.Background())
	require.ErrorIs(t, err, ErrUnexpectedResponse)
}
