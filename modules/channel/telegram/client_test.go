package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestGetMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTEST_TOKEN/getMe" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}

		writeJSON(t, w, APIResponse[User]{
			OK: true,
			Result: User{
				ID:        123,
				IsBot:     true,
				FirstName: "TestBot",
				Username:  "test_bot",
			},
		})
	}))
	defer srv.Close()

	client := NewClient("TEST_TOKEN", srv.URL)
	user, err := client.GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe() error: %v", err)
	}
	if user.ID != 123 {
		t.Errorf("ID = %d, want 123", user.ID)
	}
	if !user.IsBot {
		t.Error("IsBot = false, want true")
	}
	if user.Username != "test_bot" {
		t.Errorf("Username = %q, want %q", user.Username, "test_bot")
	}
}

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		body, _ := io.ReadAll(r.Body)
		var req SendMessageRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		if req.ChatID != 42 {
			t.Errorf("ChatID = %d, want 42", req.ChatID)
		}
		if req.Text != "hello" {
			t.Errorf("Text = %q, want %q", req.Text, "hello")
		}
		if req.ParseMode != "HTML" {
			t.Errorf("ParseMode = %q, want %q", req.ParseMode, "HTML")
		}

		writeJSON(t, w, APIResponse[Message]{
			OK: true,
			Result: Message{
				MessageID: 99,
				Chat:      Chat{ID: 42, Type: "private"},
				Text:      "hello",
			},
		})
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	msg, err := client.SendMessage(context.Background(), SendMessageRequest{
		ChatID:    42,
		Text:      "hello",
		ParseMode: "HTML",
	})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg.MessageID != 99 {
		t.Errorf("MessageID = %d, want 99", msg.MessageID)
	}
}

func TestGetUpdates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/getUpdates" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		body, _ := io.ReadAll(r.Body)
		var req GetUpdatesRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		if req.Offset != 100 {
			t.Errorf("Offset = %d, want 100", req.Offset)
		}
		if req.Timeout != 30 {
			t.Errorf("Timeout = %d, want 30", req.Timeout)
		}

		writeJSON(t, w, APIResponse[[]Update]{
			OK: true,
			Result: []Update{
				{
					UpdateID: 100,
					Message: &Message{
						MessageID: 1,
						Text:      "test",
						Chat:      Chat{ID: 42, Type: "private"},
					},
				},
				{
					UpdateID: 101,
					Message: &Message{
						MessageID: 2,
						Text:      "test2",
						Chat:      Chat{ID: 42, Type: "private"},
					},
				},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	updates, err := client.GetUpdates(context.Background(), GetUpdatesRequest{
		Offset:  100,
		Timeout: 30,
	})
	if err != nil {
		t.Fatalf("GetUpdates() error: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("len(updates) = %d, want 2", len(updates))
	}
	if updates[0].UpdateID != 100 {
		t.Errorf("updates[0].UpdateID = %d, want 100", updates[0].UpdateID)
	}
	if updates[1].Message.Text != "test2" {
		t.Errorf("updates[1].Message.Text = %q, want %q", updates[1].Message.Text, "test2")
	}
}

func TestCreateChatInviteLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/createChatInviteLink" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		body, _ := io.ReadAll(r.Body)
		var req CreateChatInviteLinkRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		if req.ChatID != -100123 {
			t.Errorf("ChatID = %d, want -100123", req.ChatID)
		}
		if req.MemberLimit != 1 {
			t.Errorf("MemberLimit = %d, want 1", req.MemberLimit)
		}

		writeJSON(t, w, APIResponse[ChatInviteLink]{
			OK: true,
			Result: ChatInviteLink{
				InviteLink:  "https://t.me/+abc123",
				MemberLimit: 1,
			},
		})
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	invite, err := client.CreateChatInviteLink(context.Background(), CreateChatInviteLinkRequest{
		ChatID:      -100123,
		MemberLimit: 1,
	})
	if err != nil {
		t.Fatalf("CreateChatInviteLink() error: %v", err)
	}
	if invite.InviteLink != "https://t.me/+abc123" {
		t.Errorf("InviteLink = %q, want %q", invite.InviteLink, "https://t.me/+abc123")
	}
}

func TestBanChatMember(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/banChatMember" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		body, _ := io.ReadAll(r.Body)
		var req BanChatMemberRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		if req.ChatID != -100123 {
			t.Errorf("ChatID = %d, want -100123", req.ChatID)
		}
		if req.UserID != 42 {
			t.Errorf("UserID = %d, want 42", req.UserID)
		}

		writeJSON(t, w, APIResponse[bool]{OK: true, Result: true})
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	err := client.BanChatMember(context.Background(), BanChatMemberRequest{
		ChatID: -100123,
		UserID: 42,
	})
	if err != nil {
		t.Fatalf("BanChatMember() error: %v", err)
	}
}

func TestUnbanChatMember(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/unbanChatMember" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		body, _ := io.ReadAll(r.Body)
		var req UnbanChatMemberRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		if !req.OnlyIfBanned {
			t.Error("OnlyIfBanned = false, want true")
		}

		writeJSON(t, w, APIResponse[bool]{OK: true, Result: true})
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	err := client.UnbanChatMember(context.Background(), UnbanChatMemberRequest{
		ChatID:       -100123,
		UserID:       42,
		OnlyIfBanned: true,
	})
	if err != nil {
		t.Fatalf("UnbanChatMember() error: %v", err)
	}
}

func TestRateLimitRetry(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			// First call: 429 with retry_after.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			writeJSON(t, w, APIResponse[json.RawMessage]{
				OK:          false,
				ErrorCode:   429,
				Description: "Too Many Requests: retry after 1",
				Parameters:  &ResponseParameters{RetryAfter: 1},
			})
			return
		}
		// Second call: success.
		writeJSON(t, w, APIResponse[User]{
			OK: true,
			Result: User{
				ID:        456,
				IsBot:     true,
				FirstName: "RetryBot",
			},
		})
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	user, err := client.GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe() error after retry: %v", err)
	}
	if user.ID != 456 {
		t.Errorf("ID = %d, want 456", user.ID)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, APIResponse[json.RawMessage]{
			OK:          false,
			ErrorCode:   400,
			Description: "Bad Request: chat not found",
		})
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	_, err := client.SendMessage(context.Background(), SendMessageRequest{
		ChatID: 999,
		Text:   "hello",
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != 400 {
		t.Errorf("Code = %d, want 400", apiErr.Code)
	}
	if apiErr.Description != "Bad Request: chat not found" {
		t.Errorf("Description = %q, want %q", apiErr.Description, "Bad Request: chat not found")
	}
}

func TestErrorDoesNotLeakToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	srv.Close() // force a transport error that would embed the request URL

	client := NewClient("SECRET_TOKEN_VALUE", srv.URL)
	_, err := client.GetMe(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if strings.Contains(err.Error(), "SECRET_TOKEN_VALUE") {
		t.Errorf("error message leaks bot token: %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.defaults()

	if cfg.PollingTimeout != 30 {
		t.Errorf("PollingTimeout = %d, want 30", cfg.PollingTimeout)
	}
	if len(cfg.AllowedUpdates) != 1 || cfg.AllowedUpdates[0] != "message" {
		t.Errorf("AllowedUpdates = %v, want [message]", cfg.AllowedUpdates)
	}
	if cfg.APIURL != "https://api.telegram.org" {
		t.Errorf("APIURL = %q, want %q", cfg.APIURL, "https://api.telegram.org")
	}
}

func TestConfigDefaultsTrimsLinkBaseURL(t *testing.T) {
	cfg := Config{LinkBaseURL: "https://bouncer.example.com/"}
	cfg.defaults()

	if cfg.LinkBaseURL != "https://bouncer.example.com" {
		t.Errorf("LinkBaseURL = %q, want trailing slash trimmed", cfg.LinkBaseURL)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid",
			cfg: Config{
				Token:          "123456:ABC-def_ghi",
				APIURL:         "https://api.telegram.org",
				PollingTimeout: 30,
				LinkBaseURL:    "https://bouncer.example.com",
			},
		},
		{
			name: "bad token format",
			cfg: Config{
				Token: "not-a-token",
			},
			wantErr: true,
		},
		{
			name: "bad api url",
			cfg: Config{
				Token:  "123456:ABC",
				APIURL: "ftp://example.com",
			},
			wantErr: true,
		},
		{
			name: "polling timeout out of range",
			cfg: Config{
				Token:          "123456:ABC",
				PollingTimeout: 51,
			},
			wantErr: true,
		},
		{
			name: "bad link base url",
			cfg: Config{
				Token:       "123456:ABC",
				LinkBaseURL: "not a url at all ://",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Code: 429, Description: "Too Many Requests", RetryAfter: 5}
	want := "telegram: 429 Too Many Requests (retry after 5s)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	err2 := &APIError{Code: 400, Description: "Bad Request"}
	want2 := "telegram: 400 Bad Request"
	if got := err2.Error(); got != want2 {
		t.Errorf("Error() = %q, want %q", got, want2)
	}
}
