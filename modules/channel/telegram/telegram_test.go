package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bouncerbot/bouncer/internal/actions"
	"github.com/bouncerbot/bouncer/internal/core"
	"github.com/bouncerbot/bouncer/internal/security"
	"gopkg.in/yaml.v3"
)

func TestModuleInfo(t *testing.T) {
	tg := &Telegram{}
	info := tg.ModuleInfo()
	if info.ID != "channel.telegram" {
		t.Errorf("ID = %q, want %q", info.ID, "channel.telegram")
	}
	if _, ok := info.New().(*Telegram); !ok {
		t.Error("New() did not return a *Telegram")
	}
}

func TestConfigure(t *testing.T) {
	raw := `
token: "123456:ABC-def"
link_base_url: "https://bouncer.example.com/"
`
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &node); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}

	tg := &Telegram{}
	if err := tg.Configure(&node); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}
	if tg.config.Token != "123456:ABC-def" {
		t.Errorf("Token = %q, want %q", tg.config.Token, "123456:ABC-def")
	}
	if tg.config.LinkBaseURL != "https://bouncer.example.com" {
		t.Errorf("LinkBaseURL = %q, want trailing slash trimmed", tg.config.LinkBaseURL)
	}
	if tg.config.PollingTimeout != 30 {
		t.Errorf("PollingTimeout = %d, want default 30", tg.config.PollingTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid",
			cfg:  Config{Token: "123456:ABC", LinkBaseURL: "https://b.example.com"},
		},
		{
			name:    "missing token",
			cfg:     Config{LinkBaseURL: "https://b.example.com"},
			wantErr: true,
		},
		{
			name:    "missing link base url",
			cfg:     Config{Token: "123456:ABC"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg := &Telegram{config: tt.cfg}
			tg.config.defaults()
			err := tg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProvisionRegistersPerformer(t *testing.T) {
	tg := &Telegram{config: Config{Token: "123456:ABC"}}
	tg.config.defaults()

	ctx := core.NewAppContext(discardLogger(), t.TempDir())
	if err := tg.Provision(ctx); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}

	svc, ok := ctx.Service("telegram.actions")
	if !ok {
		t.Fatal("service telegram.actions not registered")
	}
	if _, ok := svc.(actions.Performer); !ok {
		t.Errorf("service telegram.actions has type %T, want actions.Performer", svc)
	}
}

func TestProvisionRedactsToken(t *testing.T) {
	redactor := security.NewRedactor()

	ctx := core.NewAppContext(discardLogger(), t.TempDir())
	ctx.RegisterService("security.redactor", redactor)

	tg := &Telegram{config: Config{Token: "99999:VERY-SECRET"}}
	tg.config.defaults()
	if err := tg.Provision(ctx); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}

	got := redactor.Redact("request to 99999:VERY-SECRET failed")
	if strings.Contains(got, "VERY-SECRET") {
		t.Errorf("token not redacted: %q", got)
	}
}

func TestStartAuthenticatesAndPolls(t *testing.T) {
	polled := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			writeJSON(t, w, APIResponse[User]{
				OK:     true,
				Result: User{ID: 1, IsBot: true, Username: "bouncer_bot"},
			})
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			select {
			case polled <- struct{}{}:
			default:
			}
			writeJSON(t, w, APIResponse[[]Update]{OK: true, Result: []Update{}})
		}
	}))
	defer srv.Close()

	tg := &Telegram{config: Config{
		Token:       "123456:ABC",
		APIURL:      srv.URL,
		LinkBaseURL: "https://b.example.com",
	}}
	tg.config.defaults()

	ctx := core.NewAppContext(discardLogger(), t.TempDir())
	if err := tg.Provision(ctx); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	if err := tg.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer func() {
		if err := tg.Stop(context.Background()); err != nil {
			t.Errorf("Stop() error: %v", err)
		}
	}()

	if tg.botUser == nil || tg.botUser.Username != "bouncer_bot" {
		t.Errorf("botUser = %+v, want username bouncer_bot", tg.botUser)
	}

	select {
	case <-polled:
	case <-time.After(5 * time.Second):
		t.Fatal("poller never called getUpdates")
	}
}

func TestStartFailsOnBadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(t, w, APIResponse[User]{OK: false, ErrorCode: 401, Description: "Unauthorized"})
	}))
	defer srv.Close()

	tg := &Telegram{config: Config{Token: "123456:BAD", APIURL: srv.URL}}
	tg.config.defaults()

	ctx := core.NewAppContext(discardLogger(), t.TempDir())
	if err := tg.Provision(ctx); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	if err := tg.Start(); err == nil {
		t.Error("Start() succeeded with a rejected token")
		_ = tg.Stop(context.Background())
	}
}
