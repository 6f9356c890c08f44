package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/amigocloud/amigocloud-go/internal/config"
)

const testToken = "good-token"

// fakeServer is a minimal AmigoCloud API for command tests.
type fakeServer struct {
	mu      sync.Mutex
	posts   []string
	uploads []string
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	f := &fakeServer{}
	var base string
	r := chi.NewRouter()
	r.Get("/api/v1/me", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != testToken {
			http.Error(w, `{"detail":"Invalid token."}`, http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id": 7, "username": "ana", "email": "ana@example.com", "first_name": "Ana", "last_name": "Lima"}`))
	})
	r.Get("/api/v1/me/projects", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "2" {
			w.Write([]byte(`{"count": 3, "next": null, "results": [{"id": 3, "name": "rivers"}]}`))
			return
		}
		fmt.Fprintf(w, `{"count": 3, "next": "%s/api/v1/me/projects?offset=2",
			"results": [{"id": 1, "name": "roads"}, {"id": 2, "name": "parcels"}]}`, base)
	})
	r.Get("/api/v1/me/export", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("id,name\n1,roads\n"))
	})
	r.Post("/api/v1/users/{owner}/projects", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.posts = append(f.posts, string(body))
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		w.Write(body)
	})
	r.Delete("/api/v1/users/{owner}/projects/{project}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/api/v1/users/{owner}/projects/{project}/datasets/upload", func(w http.ResponseWriter, r *http.Request) {
		file, hdr, err := r.FormFile("datafile")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		f.mu.Lock()
		f.uploads = append(f.uploads, chi.URLParam(r, "owner")+"/"+chi.URLParam(r, "project")+":"+hdr.Filename+":"+string(data))
		f.mu.Unlock()
		w.Write([]byte(`{"job": "j-1"}`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	base = srv.URL
	return f, srv
}

// writeTestConfig writes a config file pointing at baseURL and returns its path.
func writeTestConfig(t *testing.T, baseURL, token string, websockets bool) string {
	t.Helper()
	cfg := config.Default()
	cfg.BaseURL = baseURL
	cfg.Token = token
	cfg.UseWebsockets = websockets
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.Write(path))
	return path
}

// runCLI executes the root command with the given config file and returns what it printed.
func runCLI(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	jsonOutput = false
	configFile, envFile, logLevel = "", "", ""
	current = nil
	listLimit, listFields = 0, nil
	uploadChunkSize, uploadForceChunked, uploadQuiet = 0, false, false
	listenDataset, listenEvents, listenSeconds = "", nil, 0
	for _, k := range []string{config.EnvToken, config.EnvLegacyToken, config.EnvBaseURL, config.EnvLogLevel} {
		t.Setenv(k, "")
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{
		"--config", cfgPath,
		"--env-file", filepath.Join(filepath.Dir(cfgPath), "none.env"),
		"--log-level", "disabled",
	}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	cfgPath := writeTestConfig(t, "https://www.amigocloud.com", "", false)
	out, err := runCLI(t, cfgPath, "version", "-j")
	require.NoError(t, err)
	assert.Equal(t, getCLIVersion(), gjson.Get(out, "version").String())
	assert.Equal(t, cfgPath, gjson.Get(out, "config_file").String())
}

func TestLoginStoresToken(t *testing.T) {
	_, srv := newFakeServer(t)
	cfgPath := writeTestConfig(t, srv.URL, "", false)

	out, err := runCLI(t, cfgPath, "login", "--token", testToken)
	require.NoError(t, err)
	assert.Contains(t, out, "Login successful")
	assert.Contains(t, out, "Ana Lima (id 7)")

	saved, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, testToken, saved.Token)
	assert.Equal(t, srv.URL, saved.BaseURL)

	out, err = runCLI(t, cfgPath, "me", "-j")
	require.NoError(t, err)
	assert.Equal(t, int64(7), gjson.Get(out, "id").Int())
	assert.Equal(t, "ana", gjson.Get(out, "username").String())

	_, err = runCLI(t, cfgPath, "logout")
	require.NoError(t, err)
	saved, err = config.Load(cfgPath)
	require.NoError(t, err)
	assert.Empty(t, saved.Token)
}

func TestLoginRejectsBadToken(t *testing.T) {
	_, srv := newFakeServer(t)
	cfgPath := writeTestConfig(t, srv.URL, "", false)

	_, err := runCLI(t, cfgPath, "login", "--token", "bad-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login failed")

	saved, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Empty(t, saved.Token)
}

func TestMeRequiresToken(t *testing.T) {
	_, srv := newFakeServer(t)
	cfgPath := writeTestConfig(t, srv.URL, "", false)

	_, err := runCLI(t, cfgPath, "me")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestGetCommand(t *testing.T) {
	_, srv := newFakeServer(t)
	cfgPath := writeTestConfig(t, srv.URL, testToken, false)

	out, err := runCLI(t, cfgPath, "get", "/me", "--output=")
	require.NoError(t, err)
	assert.Contains(t, out, "username: ana")

	out, err = runCLI(t, cfgPath, "get", "/me", "--output=", "-j")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", gjson.Get(out, "email").String())

	dest := filepath.Join(t.TempDir(), "export.csv")
	out, err = runCLI(t, cfgPath, "get", "me/export", "-o", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved 16 bytes")
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,roads\n", string(data))
}

func TestGetReportsHTTPErrors(t *testing.T) {
	_, srv := newFakeServer(t)
	cfgPath := writeTestConfig(t, srv.URL, "bad-token", false)

	_, err := runCLI(t, cfgPath, "get", "/me", "--output=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestPostSendsEachDocument(t *testing.T) {
	f, srv := newFakeServer(t)
	cfgPath := writeTestConfig(t, srv.URL, testToken, false)

	t.Setenv("AMIGO_TEST_PROJECT", "rivers")
	body := filepath.Join(t.TempDir(), "projects.yaml")
	require.NoError(t, os.WriteFile(body, []byte(`name: roads
description: main roads
---
name: {{ .ENV.AMIGO_TEST_PROJECT }}
`), 0644))

	_, err := runCLI(t, cfgPath, "post", "users/7/projects", "-f", body)
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.posts, 2)
	assert.JSONEq(t, `{"name": "roads", "description": "main roads"}`, f.posts[0])
	assert.JSONEq(t, `{"name": "rivers"}`, f.posts[1])
}

func TestDeleteWithEmptyResponse(t *testing.T) {
	_, srv := newFakeServer(t)
	cfgPath := writeTestConfig(t, srv.URL, testToken, false)

	out, err := runCLI(t, cfgPath, "delete", "users/7/projects/9")
	require.NoError(t, err)
	assert.Contains(t, out, "204")
}

func TestListFollowsPages(t *testing.T) {
	_, srv := newFakeServer(t)
	cfgPath := writeTestConfig(t, srv.URL, testToken, false)

	out, err := runCLI(t, cfgPath, "list", "/me/projects", "--fields", "name", "-j")
	require.NoError(t, err)
	assert.Equal(t, int64(3), gjson.Get(out, "count").Int())
	assert.Equal(t, `["roads","parcels","rivers"]`, gjson.Get(out, "items.#.name").Raw)
	assert.False(t, gjson.Get(out, "items.0.id").Exists())

	out, err = runCLI(t, cfgPath, "list", "/me/projects", "--limit", "2", "-j")
	require.NoError(t, err)
	assert.Equal(t, int64(2), gjson.Get(out, "items.#").Int())
	assert.Equal(t, int64(2), gjson.Get(out, "items.1.id").Int())
}

func TestUploadCommand(t *testing.T) {
	f, srv := newFakeServer(t)
	cfgPath := writeTestConfig(t, srv.URL, testToken, false)

	path := filepath.Join(t.TempDir(), "roads.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,main\n"), 0644))

	out, err := runCLI(t, cfgPath, "upload", "7", "9", path, "-j")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gjson.Get(out, "result").Int())
	assert.Equal(t, "j-1", gjson.Get(out, "response.job").String())

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{"7/9:roads.csv:id,name\n1,main\n"}, f.uploads)
}

func TestUploadMissingFile(t *testing.T) {
	cfgPath := writeTestConfig(t, "https://www.amigocloud.com", testToken, false)
	_, err := runCLI(t, cfgPath, "upload", "7", "9", filepath.Join(t.TempDir(), "missing.zip"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to read")
}

func TestListenPreconditions(t *testing.T) {
	cfgPath := writeTestConfig(t, "https://www.amigocloud.com", testToken, false)
	_, err := runCLI(t, cfgPath, "listen")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "websockets are disabled")

	cfgPath = writeTestConfig(t, "https://www.amigocloud.com", "", true)
	_, err = runCLI(t, cfgPath, "listen")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestConfigCommand(t *testing.T) {
	cfgPath := writeTestConfig(t, "https://www.amigocloud.com", testToken, false)

	_, err := runCLI(t, cfgPath, "config", "--server", "app.example.com", "--chunk-size", "500000", "--websockets", "on")
	require.NoError(t, err)

	saved, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", saved.BaseURL)
	assert.Equal(t, int64(500000), saved.ChunkSize)
	assert.True(t, saved.UseWebsockets)
	assert.Equal(t, testToken, saved.Token)

	out, err := runCLI(t, cfgPath, "config", "show", "-j")
	require.NoError(t, err)
	assert.Equal(t, "xxxxx", gjson.Get(out, "token").String())
	assert.Equal(t, "https://app.example.com", gjson.Get(out, "base_url").String())

	_, err = runCLI(t, cfgPath, "config", "clear")
	require.NoError(t, err)
	saved, err = config.Load(cfgPath)
	require.NoError(t, err)
	assert.Empty(t, saved.Token)
}

func TestEventPrinter(t *testing.T) {
	color.NoColor = true
	jsonOutput = false
	var buf bytes.Buffer
	p := newEventPrinter(&buf)
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ticks := []time.Time{start, start.Add(1500 * time.Millisecond), start.Add(62 * time.Second)}
	p.now = func() time.Time {
		next := ticks[0]
		ticks = ticks[1:]
		return next
	}

	p.Print("dataset:creation_succeeded", []json.RawMessage{json.RawMessage(`"roads"`)})
	p.Print("dataset:creation_failed", []json.RawMessage{json.RawMessage(`{"id": 9}`)})
	p.Print("realtime", []json.RawMessage{json.RawMessage(`{"state": "failed"}`), json.RawMessage(`"x"`)})

	out := buf.String()
	assert.Contains(t, out, "Listening since")
	assert.Contains(t, out, "[00:00.000] dataset:creation_succeeded ▶ roads")
	assert.Contains(t, out, "[00:01.500] dataset:creation_failed ❗ {\"id\": 9}")
	assert.Contains(t, out, "[01:02.000] realtime ❗ {\"state\": \"failed\"} x")
}

func TestEventPrinterJSON(t *testing.T) {
	jsonOutput = true
	defer func() { jsonOutput = false }()
	var buf bytes.Buffer
	p := newEventPrinter(&buf)
	p.now = func() time.Time { return time.UnixMilli(1700000000000) }

	p.Print("realtime", []json.RawMessage{json.RawMessage(`{"id":1}`)})
	line := buf.String()
	assert.Equal(t, "realtime", gjson.Get(line, "event").String())
	assert.Equal(t, int64(1700000000000), gjson.Get(line, "time").Int())
	assert.Equal(t, int64(1), gjson.Get(line, "args.0.id").Int())
}

func TestSelectFields(t *testing.T) {
	item := gjson.Parse(`{"id": 1, "name": "roads", "owner": {"id": 7}}`)
	assert.Equal(t, map[string]any{"name": "roads", "owner.id": float64(7)}, selectFields(item, []string{"name", "owner.id", "missing"}))
	assert.Equal(t, "plain", selectFields(gjson.Parse(`"plain"`), []string{"name"}))
	all := selectFields(item, nil).(map[string]any)
	assert.Len(t, all, 3)
}
