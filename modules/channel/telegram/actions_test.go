package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// callRecorder tracks Bot API method calls in order.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (c *callRecorder) record(method string) {
	c.mu.Lock()
	c.calls = append(c.calls, method)
	c.mu.Unlock()
}

func (c *callRecorder) order() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func newTestPerformer(apiURL string) *Telegram {
	return &Telegram{
		client: NewClient("TOKEN", apiURL),
		logger: discardLogger(),
	}
}

func TestInvite(t *testing.T) {
	rec := &callRecorder{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/createChatInviteLink"):
			rec.record("createChatInviteLink")
			var req CreateChatInviteLinkRequest
			decodeJSONBody(t, r, &req)
			if req.ChatID != -100500 {
				t.Errorf("invite ChatID = %d, want -100500", req.ChatID)
			}
			if req.MemberLimit != 1 {
				t.Errorf("MemberLimit = %d, want 1", req.MemberLimit)
			}
			writeJSON(t, w, APIResponse[ChatInviteLink]{
				OK:     true,
				Result: ChatInviteLink{InviteLink: "https://t.me/+single-use", MemberLimit: 1},
			})

		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			rec.record("sendMessage")
			var req SendMessageRequest
			decodeJSONBody(t, r, &req)
			if req.ChatID != 777 {
				t.Errorf("DM ChatID = %d, want 777", req.ChatID)
			}
			if !strings.Contains(req.Text, "https://t.me/+single-use") {
				t.Errorf("DM does not contain invite link:\n%s", req.Text)
			}
			writeJSON(t, w, APIResponse[Message]{OK: true, Result: Message{MessageID: 1}})

		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	tg := newTestPerformer(srv.URL)
	if err := tg.Invite(context.Background(), -100500, 777); err != nil {
		t.Fatalf("Invite() error: %v", err)
	}

	want := []string{"createChatInviteLink", "sendMessage"}
	got := rec.order()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestInviteLinkCreationFails(t *testing.T) {
	var sentDM bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/createChatInviteLink"):
			writeJSON(t, w, APIResponse[json.RawMessage]{
				OK:          false,
				ErrorCode:   403,
				Description: "Forbidden: bot is not a member of the supergroup chat",
			})
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			sentDM = true
			writeJSON(t, w, APIResponse[Message]{OK: true, Result: Message{}})
		}
	}))
	defer srv.Close()

	tg := newTestPerformer(srv.URL)
	err := tg.Invite(context.Background(), -100500, 777)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if sentDM {
		t.Error("DM sent even though invite link creation failed")
	}
}

func TestInviteDMFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/createChatInviteLink"):
			writeJSON(t, w, APIResponse[ChatInviteLink]{
				OK:     true,
				Result: ChatInviteLink{InviteLink: "https://t.me/+x"},
			})
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			writeJSON(t, w, APIResponse[json.RawMessage]{
				OK:          false,
				ErrorCode:   403,
				Description: "Forbidden: bot was blocked by the user",
			})
		}
	}))
	defer srv.Close()

	tg := newTestPerformer(srv.URL)
	if err := tg.Invite(context.Background(), -100500, 777); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestKick(t *testing.T) {
	rec := &callRecorder{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/banChatMember"):
			rec.record("banChatMember")
			var req BanChatMemberRequest
			decodeJSONBody(t, r, &req)
			if req.ChatID != -100500 {
				t.Errorf("ban ChatID = %d, want -100500", req.ChatID)
			}
			if req.UserID != 777 {
				t.Errorf("ban UserID = %d, want 777", req.UserID)
			}
			writeJSON(t, w, APIResponse[bool]{OK: true, Result: true})

		case strings.HasSuffix(r.URL.Path, "/unbanChatMember"):
			rec.record("unbanChatMember")
			var req UnbanChatMemberRequest
			decodeJSONBody(t, r, &req)
			if !req.OnlyIfBanned {
				t.Error("unban OnlyIfBanned = false, want true")
			}
			writeJSON(t, w, APIResponse[bool]{OK: true, Result: true})

		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	tg := newTestPerformer(srv.URL)
	if err := tg.Kick(context.Background(), -100500, 777); err != nil {
		t.Fatalf("Kick() error: %v", err)
	}

	want := []string{"banChatMember", "unbanChatMember"}
	got := rec.order()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestKickBanFails(t *testing.T) {
	var unbanned bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/banChatMember"):
			writeJSON(t, w, APIResponse[json.RawMessage]{
				OK:          false,
				ErrorCode:   400,
				Description: "Bad Request: user not found",
			})
		case strings.HasSuffix(r.URL.Path, "/unbanChatMember"):
			unbanned = true
			writeJSON(t, w, APIResponse[bool]{OK: true, Result: true})
		}
	}))
	defer srv.Close()

	tg := newTestPerformer(srv.URL)
	if err := tg.Kick(context.Background(), -100500, 777); err == nil {
		t.Fatal("expected error, got nil")
	}
	if unbanned {
		t.Error("unban called even though ban failed")
	}
}
