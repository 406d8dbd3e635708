package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/ReviewHub/internal/adapters/blob"
	"github.com/dkeye/ReviewHub/internal/adapters/storage"
	"github.com/dkeye/ReviewHub/internal/app"
	"github.com/dkeye/ReviewHub/internal/app/auth"
	"github.com/dkeye/ReviewHub/internal/app/orch"
	"github.com/dkeye/ReviewHub/internal/app/portfolio"
	"github.com/dkeye/ReviewHub/internal/app/projects"
	"github.com/dkeye/ReviewHub/internal/config"
	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/dkeye/ReviewHub/internal/metrics"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/spf13/afero"
)

type testEnv struct {
	srv   *httptest.Server
	store *storage.BadgerStore
	orch  *orch.Orchestrator
}

type brokenPinger struct{}

func (brokenPinger) Ping(context.Context) error { return errors.New("disk gone") }

func testConfig() *config.Config {
	return &config.Config{
		Mode:       "test",
		Port:       8080,
		StaticPath: "./web",
		Secret:     strings.Repeat("s", 32),
		Projects:   config.ProjectsConfig{DefaultExpiry: 72 * time.Hour, SweepInterval: time.Minute, MaxUploadMB: 1},
		Auth:       config.AuthConfig{ViewTokenTTL: time.Hour},
	}
}

func newEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	return newEnvConfig(t, testConfig(), mutate)
}

func newEnvConfig(t *testing.T, cfg *config.Config, mutate func(*Deps)) *testEnv {
	t.Helper()
	st, err := storage.NewBadgerStore("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	blobs := blob.NewStore(afero.NewMemMapFs())
	tokens, err := auth.NewViewTokens(cfg.Secret, cfg.Auth.ViewTokenTTL)
	if err != nil {
		t.Fatal(err)
	}
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    core.NewRoomManager(),
		Policy:   app.DropPolicy{},
	}
	d := Deps{
		Orch:      o,
		Users:     auth.NewUsers(st),
		Projects:  projects.NewService(st, blobs, tokens, o, projects.Options{DefaultExpiry: cfg.Projects.DefaultExpiry, MaxUploadBytes: cfg.Projects.MaxUploadMB << 20}),
		Portfolio: portfolio.NewService(st, st, st, blobs),
		Records:   st,
		Blobs:     blobs,
	}
	if mutate != nil {
		mutate(&d)
	}
	srv := httptest.NewServer(SetupRouter(context.Background(), cfg, d))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: st, orch: o}
}

func (e *testEnv) client(t *testing.T) *nethttp.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &nethttp.Client{Jar: jar, Timeout: 5 * time.Second}
}

func doJSON(t *testing.T, c *nethttp.Client, method, url string, body any) (*nethttp.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, _ := nethttp.NewRequest(method, url, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return send(t, c, req)
}

func send(t *testing.T, c *nethttp.Client, req *nethttp.Request) (*nethttp.Response, map[string]any) {
	t.Helper()
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var m map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp, m
}

func multipartRequest(t *testing.T, url string, fields map[string]string, fileName, content string) *nethttp.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	if fileName != "" {
		fw, err := w.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = io.WriteString(fw, content)
	}
	_ = w.Close()
	req, _ := nethttp.NewRequest(nethttp.MethodPost, url, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func (e *testEnv) signup(t *testing.T, c *nethttp.Client, name string) {
	t.Helper()
	resp, _ := doJSON(t, c, "POST", e.srv.URL+"/api/auth/register", map[string]string{
		"email": name + "@example.com", "username": name, "password": "password-" + name,
	})
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	e.login(t, c, name)
}

func (e *testEnv) login(t *testing.T, c *nethttp.Client, name string) {
	t.Helper()
	resp, _ := doJSON(t, c, "POST", e.srv.URL+"/api/auth/login", map[string]string{
		"email": name + "@example.com", "password": "password-" + name,
	})
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
}

func TestAuthFlow(t *testing.T) {
	e := newEnv(t, nil)
	c := e.client(t)

	resp, _ := doJSON(t, c, "GET", e.srv.URL+"/api/auth/me", nil)
	if resp.StatusCode != nethttp.StatusUnauthorized {
		t.Fatalf("me before login = %d", resp.StatusCode)
	}

	e.signup(t, c, "nora")
	resp, me := doJSON(t, c, "GET", e.srv.URL+"/api/auth/me", nil)
	if resp.StatusCode != nethttp.StatusOK || me["username"] != "nora" || me["tier"] != "free" {
		t.Fatalf("me = %d %v", resp.StatusCode, me)
	}
	if _, ok := me["PasswordHash"]; ok {
		t.Error("password hash leaked")
	}

	resp, body := doJSON(t, c, "POST", e.srv.URL+"/api/auth/register", map[string]string{
		"email": "nora@example.com", "username": "nora2", "password": "password-x",
	})
	if resp.StatusCode != nethttp.StatusConflict || body["error"] != "conflict" {
		t.Errorf("duplicate register = %d %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, c, "POST", e.srv.URL+"/api/auth/logout", nil)
	if resp.StatusCode != nethttp.StatusNoContent {
		t.Errorf("logout = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, c, "GET", e.srv.URL+"/api/auth/me", nil)
	if resp.StatusCode != nethttp.StatusUnauthorized {
		t.Errorf("me after logout = %d", resp.StatusCode)
	}

	resp, body = doJSON(t, c, "POST", e.srv.URL+"/api/auth/login", map[string]string{
		"email": "nora@example.com", "password": "nope-nope",
	})
	if resp.StatusCode != nethttp.StatusUnauthorized || body["error"] != "bad_credentials" {
		t.Errorf("bad login = %d %v", resp.StatusCode, body)
	}
}

func TestProjectLifecycle(t *testing.T) {
	e := newEnv(t, nil)
	owner := e.client(t)
	e.signup(t, owner, "olga")

	req := multipartRequest(t, e.srv.URL+"/api/projects", map[string]string{"name": "Bracket", "expires_in": "24h"}, "bracket.stl", "solid bracket")
	resp, created := send(t, owner, req)
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("upload = %d %v", resp.StatusCode, created)
	}
	id, _ := created["id"].(string)
	if id == "" || created["format"] != "stl" || created["protected"] != false {
		t.Fatalf("upload body = %v", created)
	}

	anon := e.client(t)
	resp, got := doJSON(t, anon, "GET", e.srv.URL+"/api/projects/"+id, nil)
	if resp.StatusCode != nethttp.StatusOK || got["name"] != "Bracket" {
		t.Errorf("public get = %d %v", resp.StatusCode, got)
	}

	dl, err := anon.Get(e.srv.URL + "/api/projects/" + id + "/file")
	if err != nil {
		t.Fatal(err)
	}
	model, _ := io.ReadAll(dl.Body)
	dl.Body.Close()
	if dl.StatusCode != nethttp.StatusOK || string(model) != "solid bracket" || dl.Header.Get("Content-Type") != "model/stl" {
		t.Errorf("download = %d %q %s", dl.StatusCode, model, dl.Header.Get("Content-Type"))
	}

	resp, list := doJSON(t, owner, "GET", e.srv.URL+"/api/projects", nil)
	if items, _ := list["projects"].([]any); resp.StatusCode != nethttp.StatusOK || len(items) != 1 {
		t.Errorf("list = %d %v", resp.StatusCode, list)
	}

	resp, body := doJSON(t, owner, "PATCH", e.srv.URL+"/api/projects/"+id+"/share", map[string]any{"password": "password1"})
	if resp.StatusCode != nethttp.StatusForbidden {
		t.Errorf("free tier password = %d %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, anon, "DELETE", e.srv.URL+"/api/projects/"+id, nil)
	if resp.StatusCode != nethttp.StatusUnauthorized {
		t.Errorf("anonymous delete = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, owner, "DELETE", e.srv.URL+"/api/projects/"+id, nil)
	if resp.StatusCode != nethttp.StatusNoContent {
		t.Errorf("delete = %d", resp.StatusCode)
	}
	resp, body = doJSON(t, anon, "GET", e.srv.URL+"/api/projects/"+id, nil)
	if resp.StatusCode != nethttp.StatusNotFound || body["error"] != "not_found" {
		t.Errorf("get after delete = %d %v", resp.StatusCode, body)
	}
}

func TestUploadRejections(t *testing.T) {
	e := newEnv(t, nil)
	c := e.client(t)
	e.signup(t, c, "uma")

	tests := []struct {
		name   string
		fields map[string]string
		file   string
		body   string
		want   int
	}{
		{"no file", nil, "", "", nethttp.StatusBadRequest},
		{"bad format", nil, "scene.blend", "x", nethttp.StatusUnsupportedMediaType},
		{"bad expiry", map[string]string{"expires_in": "soon"}, "a.stl", "x", nethttp.StatusBadRequest},
		{"too large", nil, "a.obj", strings.Repeat("v", 1<<20+10), nethttp.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := send(t, c, multipartRequest(t, e.srv.URL+"/api/projects", tt.fields, tt.file, tt.body))
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d %v, want %d", resp.StatusCode, body, tt.want)
			}
		})
	}
}

func TestUploadWithoutGlobalCapUsesTierLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Projects.MaxUploadMB = 0
	e := newEnvConfig(t, cfg, nil)
	c := e.client(t)
	e.signup(t, c, "vic")

	resp, body := send(t, c, multipartRequest(t, e.srv.URL+"/api/projects", nil, "a.stl", strings.Repeat("s", 2<<20)))
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("2 MiB upload = %d %v, want 201", resp.StatusCode, body)
	}
}

func TestProtectedProjectOverHTTP(t *testing.T) {
	e := newEnv(t, nil)
	hash, err := auth.HashPassword("password-pia")
	if err != nil {
		t.Fatal(err)
	}
	u, _ := domain.NewUser("pia@example.com", "pia")
	u.PasswordHash = hash
	u.Tier = domain.TierPro
	if err := e.store.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	owner := e.client(t)
	e.login(t, owner, "pia")

	resp, created := send(t, owner, multipartRequest(t, e.srv.URL+"/api/projects", map[string]string{"password": "letmein99"}, "part.glb", "glTF"))
	if resp.StatusCode != nethttp.StatusCreated || created["protected"] != true {
		t.Fatalf("upload = %d %v", resp.StatusCode, created)
	}
	id := created["id"].(string)
	fileURL := e.srv.URL + "/api/projects/" + id + "/file"

	anon := e.client(t)
	resp, body := doJSON(t, anon, "GET", fileURL, nil)
	if resp.StatusCode != nethttp.StatusUnauthorized || body["error"] != "password_required" {
		t.Errorf("download without token = %d %v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, anon, "POST", e.srv.URL+"/api/projects/"+id+"/unlock", map[string]string{"password": "wrong"})
	if resp.StatusCode != nethttp.StatusUnauthorized {
		t.Errorf("unlock wrong = %d", resp.StatusCode)
	}
	resp, body = doJSON(t, anon, "POST", e.srv.URL+"/api/projects/"+id+"/unlock", map[string]string{"password": "letmein99"})
	tok, _ := body["token"].(string)
	if resp.StatusCode != nethttp.StatusOK || tok == "" {
		t.Fatalf("unlock = %d %v", resp.StatusCode, body)
	}

	req, _ := nethttp.NewRequest("GET", fileURL, nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	if resp, _ := send(t, anon, req); resp.StatusCode != nethttp.StatusOK {
		t.Errorf("download with bearer = %d", resp.StatusCode)
	}
	if resp, _ := doJSON(t, anon, "GET", fileURL+"?token="+tok, nil); resp.StatusCode != nethttp.StatusOK {
		t.Errorf("download with query token = %d", resp.StatusCode)
	}
	if resp, _ := doJSON(t, owner, "GET", fileURL, nil); resp.StatusCode != nethttp.StatusOK {
		t.Errorf("owner download = %d", resp.StatusCode)
	}
}

func TestPortfolioAndGallery(t *testing.T) {
	e := newEnv(t, nil)
	c := e.client(t)
	e.signup(t, c, "gia")

	resp, it := send(t, c, multipartRequest(t, e.srv.URL+"/api/portfolio", map[string]string{"title": "Turntable", "description": "final"}, "spin.mp4", "mp4data"))
	if resp.StatusCode != nethttp.StatusCreated || it["media_type"] != "video" {
		t.Fatalf("add = %d %v", resp.StatusCode, it)
	}
	id := it["id"].(string)

	anon := e.client(t)
	resp, g := doJSON(t, anon, "GET", e.srv.URL+"/api/gallery/gia", nil)
	if items, _ := g["items"].([]any); resp.StatusCode != nethttp.StatusOK || len(items) != 1 {
		t.Errorf("gallery = %d %v", resp.StatusCode, g)
	}
	media, err := anon.Get(e.srv.URL + "/api/gallery/gia/" + id + "/media")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(media.Body)
	media.Body.Close()
	if media.StatusCode != nethttp.StatusOK || string(data) != "mp4data" {
		t.Errorf("media = %d %q", media.StatusCode, data)
	}
	if resp, _ := doJSON(t, anon, "GET", e.srv.URL+"/api/gallery/nobody", nil); resp.StatusCode != nethttp.StatusNotFound {
		t.Errorf("unknown gallery = %d", resp.StatusCode)
	}

	if resp, _ := doJSON(t, c, "DELETE", e.srv.URL+"/api/portfolio/"+id, nil); resp.StatusCode != nethttp.StatusNoContent {
		t.Errorf("delete = %d", resp.StatusCode)
	}
	resp, list := doJSON(t, c, "GET", e.srv.URL+"/api/portfolio", nil)
	if items, _ := list["items"].([]any); resp.StatusCode != nethttp.StatusOK || items == nil || len(items) != 0 {
		t.Errorf("list after delete = %d %v", resp.StatusCode, list)
	}
}

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func TestOperationalEndpoints(t *testing.T) {
	e := newEnv(t, nil)
	c := e.client(t)

	resp, body := doJSON(t, c, "GET", e.srv.URL+"/healthz", nil)
	if resp.StatusCode != nethttp.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", resp.StatusCode, body)
	}

	e.orch.Connect(context.Background(), "c1", domain.NewMember("c1", "", ""), nopConn{})
	if err := e.orch.Join(context.Background(), "c1", "proj-7", ""); err != nil {
		t.Fatal(err)
	}
	resp, body = doJSON(t, c, "GET", e.srv.URL+"/api/rooms", nil)
	rooms, _ := body["rooms"].([]any)
	if resp.StatusCode != nethttp.StatusOK || len(rooms) != 1 {
		t.Fatalf("rooms = %d %v", resp.StatusCode, body)
	}
	room := rooms[0].(map[string]any)
	if room["project_id"] != "proj-7" || room["member_count"] != float64(1) {
		t.Errorf("room = %v", room)
	}

	m, err := c.Get(e.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	text, _ := io.ReadAll(m.Body)
	m.Body.Close()
	if !strings.Contains(string(text), "reviewhub_http_requests_total") {
		t.Error("metrics output lacks http counter")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestHealthzUnavailable(t *testing.T) {
	e := newEnv(t, func(d *Deps) { d.Blobs = brokenPinger{} })
	resp, body := doJSON(t, e.client(t), "GET", e.srv.URL+"/healthz", nil)
	if resp.StatusCode != nethttp.StatusServiceUnavailable {
		t.Errorf("healthz = %d %v", resp.StatusCode, body)
	}
}

func TestLoginRateLimited(t *testing.T) {
	e := newEnv(t, func(d *Deps) { d.Limiter = NewLocalLimiter(2, time.Minute) })
	c := e.client(t)
	before := testutil.ToFloat64(metrics.RateLimitHits.WithLabelValues("login"))

	var last *nethttp.Response
	for i := 0; i < 3; i++ {
		last, _ = doJSON(t, c, "POST", e.srv.URL+"/api/auth/login", map[string]string{"email": "x@example.com", "password": "whatever1"})
	}
	if last.StatusCode != nethttp.StatusTooManyRequests || last.Header.Get("Retry-After") != "60" {
		t.Errorf("third login = %d retry-after=%q", last.StatusCode, last.Header.Get("Retry-After"))
	}
	if got := testutil.ToFloat64(metrics.RateLimitHits.WithLabelValues("login")) - before; got != 1 {
		t.Errorf("rate limit hits = %v, want 1", got)
	}
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	e := newEnv(t, func(d *Deps) { d.Limiter = NewLocalLimiter(2, time.Minute) })
	c := e.client(t)

	limited := 0
	for i := 0; i < 10; i++ {
		b, _ := json.Marshal(map[string]string{"email": "x@example.com", "password": "whatever1"})
		req, _ := nethttp.NewRequest("POST", e.srv.URL+"/api/auth/login", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i+1))
		if resp, _ := send(t, c, req); resp.StatusCode == nethttp.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 8 {
		t.Errorf("429 responses = %d, want 8", limited)
	}
}

func TestTrustedProxyForwardedFor(t *testing.T) {
	cfg := testConfig()
	cfg.TrustedProxies = []string{"127.0.0.1", "::1"}
	e := newEnvConfig(t, cfg, func(d *Deps) { d.Limiter = NewLocalLimiter(1, time.Minute) })
	c := e.client(t)

	for i := 0; i < 3; i++ {
		b, _ := json.Marshal(map[string]string{"email": "x@example.com", "password": "whatever1"})
		req, _ := nethttp.NewRequest("POST", e.srv.URL+"/api/auth/login", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		if resp, _ := send(t, c, req); resp.StatusCode == nethttp.StatusTooManyRequests {
			t.Fatalf("request %d from distinct client behind proxy was limited", i)
		}
	}
}

func TestLocalLimiterKeys(t *testing.T) {
	l := NewLocalLimiter(1, time.Minute)
	ctx := context.Background()
	if ok, _ := l.Allow(ctx, "a"); !ok {
		t.Fatal("first request denied")
	}
	if ok, _ := l.Allow(ctx, "a"); ok {
		t.Error("second request on same key allowed")
	}
	if ok, _ := l.Allow(ctx, "b"); !ok {
		t.Error("other key denied")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, nethttp.StatusNotFound},
		{fmt.Errorf("wrapped: %w", domain.ErrExpired), nethttp.StatusGone},
		{auth.ErrInvalidToken, nethttp.StatusForbidden},
		{domain.ErrLimitReached, nethttp.StatusForbidden},
		{domain.ErrPasswordShort, nethttp.StatusBadRequest},
		{gobreaker.ErrOpenState, nethttp.StatusServiceUnavailable},
		{&nethttp.MaxBytesError{Limit: 1}, nethttp.StatusRequestEntityTooLarge},
		{errors.New("boom"), nethttp.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestCORS(t *testing.T) {
	h := WithCORS(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.WriteHeader(nethttp.StatusOK)
	}), []string{"https://viewer.example.com"})

	req := httptest.NewRequest("OPTIONS", "/api/projects", nil)
	req.Header.Set("Origin", "https://viewer.example.com")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://viewer.example.com" {
		t.Errorf("allow-origin = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("credentials not allowed")
	}

	req = httptest.NewRequest("GET", "/api/projects", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign allow-origin = %q", got)
	}
}
