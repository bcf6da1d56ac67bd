package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bouncerbot/bouncer/internal/link"
	"github.com/bouncerbot/bouncer/internal/link/linktest"
	"github.com/bouncerbot/bouncer/internal/verify"
)

const testBearer = "test-token"

// newAdminServer builds a gateway with bearer auth and a fresh mock store.
func newAdminServer(t *testing.T) (*httptest.Server, *linktest.MockStore, *fakeVerifier) {
	t.Helper()
	store := linktest.NewMockStore()
	fv := &fakeVerifier{}
	g := newTestGateway(AuthConfig{BearerToken: testBearer})
	g.Wire(&fakeLinker{}, fv, store)
	return serve(t, g), store, fv
}

func seedLink(t *testing.T, store *linktest.MockStore, discordID, telegramID, guildID int64) link.UserLink {
	t.Helper()
	l := link.UserLink{DiscordID: discordID, TelegramID: telegramID, GuildID: guildID}
	if err := store.CreateLink(t.Context(), &l); err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	return l
}

func TestAdmin_RequiresAuth(t *testing.T) {
	t.Parallel()

	srv, _, _ := newAdminServer(t)

	for _, tt := range []struct {
		method, path, bearer string
	}{
		{http.MethodGet, "/api/links", ""},
		{http.MethodGet, "/api/links", "wrong-token"},
		{http.MethodPost, "/api/verify", ""},
		{http.MethodGet, "/status", ""},
		{http.MethodPost, "/api/guilds", "wrong-token"},
	} {
		resp := doReq(t, tt.method, srv.URL+tt.path, tt.bearer, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s bearer=%q: status = %d, want %d",
				tt.method, tt.path, tt.bearer, resp.StatusCode, http.StatusUnauthorized)
		}
	}
}

func TestAdmin_RunVerify(t *testing.T) {
	t.Parallel()

	srv, _, fv := newAdminServer(t)
	fv.stats = verify.Stats{Checked: 3, Removed: 1}

	resp := doReq(t, http.MethodPost, srv.URL+"/api/verify", testBearer, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var stats verify.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats != fv.stats {
		t.Errorf("stats = %+v, want %+v", stats, fv.stats)
	}
	if fv.callCount() != 1 {
		t.Errorf("RunCycle calls = %d, want 1", fv.callCount())
	}
}

func TestAdmin_RunVerifyFailure(t *testing.T) {
	t.Parallel()

	srv, _, fv := newAdminServer(t)
	fv.err = errors.New("store exploded")

	resp := doReq(t, http.MethodPost, srv.URL+"/api/verify", testBearer, "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	if body := readBody(t, resp); strings.Contains(body, "exploded") {
		t.Errorf("internal detail leaked: %q", body)
	}
}

func TestAdmin_ListLinks(t *testing.T) {
	t.Parallel()

	srv, store, _ := newAdminServer(t)
	seedLink(t, store, 42, 100, 1)
	seedLink(t, store, 43, 101, 1)

	resp := doReq(t, http.MethodGet, srv.URL+"/api/links", testBearer, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var links []linkJSON
	if err := json.NewDecoder(resp.Body).Decode(&links); err != nil {
		t.Fatalf("decode links: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2", len(links))
	}
	if links[0].DiscordID != 42 || links[0].TelegramID != 100 || links[0].GuildID != 1 {
		t.Errorf("links[0] = %+v", links[0])
	}
	if links[0].CreatedAt == "" {
		t.Error("created_at not serialized")
	}
}

func TestAdmin_ListLinksEmpty(t *testing.T) {
	t.Parallel()

	srv, _, _ := newAdminServer(t)

	resp := doReq(t, http.MethodGet, srv.URL+"/api/links", testBearer, "")
	if body := strings.TrimSpace(readBody(t, resp)); body != "[]" {
		t.Errorf("body = %q, want empty JSON array", body)
	}
}

func TestAdmin_DeleteLink(t *testing.T) {
	t.Parallel()

	srv, store, _ := newAdminServer(t)
	seedLink(t, store, 42, 100, 1)

	resp := doReq(t, http.MethodDelete, srv.URL+"/api/links/42", testBearer, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	if _, err := store.LinkByDiscordID(t.Context(), 42); !errors.Is(err, link.ErrNotFound) {
		t.Errorf("link still present after delete: %v", err)
	}
}

func TestAdmin_DeleteLinkNotFound(t *testing.T) {
	t.Parallel()

	srv, _, _ := newAdminServer(t)

	resp := doReq(t, http.MethodDelete, srv.URL+"/api/links/42", testBearer, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestAdmin_DeleteLinkBadID(t *testing.T) {
	t.Parallel()

	srv, _, _ := newAdminServer(t)

	for _, raw := range []string{"abc", "-1", "0"} {
		resp := doReq(t, http.MethodDelete, srv.URL+"/api/links/"+raw, testBearer, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("id=%q: status = %d, want %d", raw, resp.StatusCode, http.StatusBadRequest)
		}
	}
}

func TestAdmin_UpsertGuild(t *testing.T) {
	t.Parallel()

	srv, store, _ := newAdminServer(t)

	resp := doReq(t, http.MethodPost, srv.URL+"/api/guilds", testBearer,
		`{"guild_id": 1, "telegram_group_id": -1001234}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", resp.StatusCode, http.StatusOK, readBody(t, resp))
	}

	gu, err := store.GuildByID(t.Context(), 1)
	if err != nil {
		t.Fatalf("GuildByID: %v", err)
	}
	if gu.TelegramGroupID != -1001234 {
		t.Errorf("TelegramGroupID = %d, want -1001234", gu.TelegramGroupID)
	}

	// Upsert repoints the binding.
	resp2 := doReq(t, http.MethodPost, srv.URL+"/api/guilds", testBearer,
		`{"guild_id": 1, "telegram_group_id": -1009999}`)
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("repoint status = %d", resp2.StatusCode)
	}
	gu, err = store.GuildByID(t.Context(), 1)
	if err != nil {
		t.Fatalf("GuildByID after repoint: %v", err)
	}
	if gu.TelegramGroupID != -1009999 {
		t.Errorf("TelegramGroupID after repoint = %d, want -1009999", gu.TelegramGroupID)
	}
}

func TestAdmin_UpsertGuildValidation(t *testing.T) {
	t.Parallel()

	srv, _, _ := newAdminServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing guild_id", `{"telegram_group_id": -100}`},
		{"negative guild_id", `{"guild_id": -1, "telegram_group_id": -100}`},
		{"missing group", `{"guild_id": 1}`},
		{"not json", `guild_id=1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := doReq(t, http.MethodPost, srv.URL+"/api/guilds", testBearer, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
		})
	}
}

func TestAdmin_ListGuilds(t *testing.T) {
	t.Parallel()

	srv, store, _ := newAdminServer(t)
	if err := store.UpsertGuild(t.Context(), link.Guild{GuildID: 1, TelegramGroupID: -100}); err != nil {
		t.Fatal(err)
	}

	resp := doReq(t, http.MethodGet, srv.URL+"/api/guilds", testBearer, "")
	var guilds []guildJSON
	if err := json.NewDecoder(resp.Body).Decode(&guilds); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(guilds) != 1 || guilds[0].GuildID != 1 || guilds[0].TelegramGroupID != -100 {
		t.Errorf("guilds = %+v", guilds)
	}
}

func TestAdmin_DeleteGuild(t *testing.T) {
	t.Parallel()

	srv, store, _ := newAdminServer(t)
	if err := store.UpsertGuild(t.Context(), link.Guild{GuildID: 1, TelegramGroupID: -100}); err != nil {
		t.Fatal(err)
	}

	resp := doReq(t, http.MethodDelete, srv.URL+"/api/guilds/1", testBearer, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if _, err := store.GuildByID(t.Context(), 1); !errors.Is(err, link.ErrNotFound) {
		t.Errorf("guild still present after delete: %v", err)
	}

	resp2 := doReq(t, http.MethodDelete, srv.URL+"/api/guilds/1", testBearer, "")
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", resp2.StatusCode, http.StatusNotFound)
	}
}

func TestAdmin_GuildRolesLifecycle(t *testing.T) {
	t.Parallel()

	srv, store, _ := newAdminServer(t)
	if err := store.UpsertGuild(t.Context(), link.Guild{GuildID: 1, TelegramGroupID: -100}); err != nil {
		t.Fatal(err)
	}

	resp := doReq(t, http.MethodPost, srv.URL+"/api/guilds/1/roles", testBearer, `{"role_id": 10}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("add role status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	resp2 := doReq(t, http.MethodGet, srv.URL+"/api/guilds/1/roles", testBearer, "")
	var roles guildRolesJSON
	if err := json.NewDecoder(resp2.Body).Decode(&roles); err != nil {
		t.Fatalf("decode roles: %v", err)
	}
	if roles.GuildID != 1 || len(roles.RoleIDs) != 1 || roles.RoleIDs[0] != 10 {
		t.Errorf("roles = %+v", roles)
	}

	resp3 := doReq(t, http.MethodDelete, srv.URL+"/api/guilds/1/roles/10", testBearer, "")
	if resp3.StatusCode != http.StatusNoContent {
		t.Fatalf("remove role status = %d", resp3.StatusCode)
	}

	resp4 := doReq(t, http.MethodGet, srv.URL+"/api/guilds/1/roles", testBearer, "")
	var after guildRolesJSON
	if err := json.NewDecoder(resp4.Body).Decode(&after); err != nil {
		t.Fatalf("decode roles: %v", err)
	}
	if len(after.RoleIDs) != 0 {
		t.Errorf("role_ids after removal = %v, want empty", after.RoleIDs)
	}
}

func TestAdmin_RolesUnknownGuild(t *testing.T) {
	t.Parallel()

	srv, _, _ := newAdminServer(t)

	resp := doReq(t, http.MethodGet, srv.URL+"/api/guilds/9/roles", testBearer, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("list status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	resp2 := doReq(t, http.MethodPost, srv.URL+"/api/guilds/9/roles", testBearer, `{"role_id": 10}`)
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("add status = %d, want %d", resp2.StatusCode, http.StatusNotFound)
	}
}

func TestAdmin_AddRoleValidation(t *testing.T) {
	t.Parallel()

	srv, store, _ := newAdminServer(t)
	if err := store.UpsertGuild(t.Context(), link.Guild{GuildID: 1, TelegramGroupID: -100}); err != nil {
		t.Fatal(err)
	}

	for _, body := range []string{`{"role_id": 0}`, `{"role_id": -3}`, `{}`, `nope`} {
		resp := doReq(t, http.MethodPost, srv.URL+"/api/guilds/1/roles", testBearer, body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want %d", body, resp.StatusCode, http.StatusBadRequest)
		}
	}
}
