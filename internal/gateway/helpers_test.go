package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bouncerbot/bouncer/internal/verify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLinker is a test double for the OAuth linker. The zero value succeeds
// with canned results; set the funcs to script behavior.
type fakeLinker struct {
	startFunc    func(ctx context.Context, telegramID int64) (string, error)
	callbackFunc func(ctx context.Context, code, state string) (string, error)

	mu          sync.Mutex
	gotTelegram int64
	gotCode     string
	gotState    string
}

func (f *fakeLinker) Start(ctx context.Context, telegramID int64) (string, error) {
	f.mu.Lock()
	f.gotTelegram = telegramID
	f.mu.Unlock()
	if f.startFunc != nil {
		return f.startFunc(ctx, telegramID)
	}
	return "https://discord.example/oauth2/authorize?state=test-state", nil
}

func (f *fakeLinker) Callback(ctx context.Context, code, state string) (string, error) {
	f.mu.Lock()
	f.gotCode = code
	f.gotState = state
	f.mu.Unlock()
	if f.callbackFunc != nil {
		return f.callbackFunc(ctx, code, state)
	}
	return "gamer", nil
}

// fakeVerifier is a test double for the verify cycle runner.
type fakeVerifier struct {
	stats verify.Stats
	err   error

	mu    sync.Mutex
	calls int
}

func (f *fakeVerifier) RunCycle(context.Context) (verify.Stats, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.stats, f.err
}

func (f *fakeVerifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// newTestGateway builds an unstarted gateway with default config and the
// given auth. Callers wire their own collaborators.
func newTestGateway(auth AuthConfig) *Gateway {
	g := &Gateway{logger: discardLogger(), startedAt: time.Now()}
	g.config.defaults()
	g.config.Auth = auth
	return g
}

// serve runs the gateway's router on an httptest server.
func serve(t *testing.T, g *Gateway) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(g.buildRouter())
	t.Cleanup(srv.Close)
	return srv
}

// doReq performs an HTTP request against a test server. An empty bearer
// sends no Authorization header.
func doReq(t *testing.T, method, url, bearer, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// readBody drains and returns the response body.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
