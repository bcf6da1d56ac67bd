// Package linktest provides an in-memory link.Store test double.
package linktest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bouncerbot/bouncer/internal/link"
)

// MockStore is an in-memory implementation of link.Store. It enforces the
// same uniqueness and consume-once semantics as the SQLite store, so tests
// exercise the real error paths. All methods are safe for concurrent use.
//
// InTx does not simulate rollback; fn receives the store itself. Individual
// method error hooks cover the failure scenarios tests need.
type MockStore struct {
	mu      sync.Mutex
	pending map[string]link.PendingLink
	links   map[int64]link.UserLink
	guilds  map[int64]link.Guild
	roles   map[int64]map[int64]bool
	nextID  int64

	// Optional overrides. When set, the matching method delegates to the
	// hook instead of the in-memory implementation.
	CreatePendingFunc func(ctx context.Context, p link.PendingLink) error
	CreateLinkFunc    func(ctx context.Context, l *link.UserLink) error
	DeleteLinkFunc    func(ctx context.Context, id int64) error
	LinksByGuildFunc  func(ctx context.Context, guildID int64) ([]link.UserLink, error)
	PingFunc          func(ctx context.Context) error
}

// Compile-time interface check.
var _ link.Store = (*MockStore)(nil)

// NewMockStore returns an empty store.
func NewMockStore() *MockStore {
	return &MockStore{
		pending: make(map[string]link.PendingLink),
		links:   make(map[int64]link.UserLink),
		guilds:  make(map[int64]link.Guild),
		roles:   make(map[int64]map[int64]bool),
	}
}

// CreatePending implements link.PendingStore.
func (m *MockStore) CreatePending(ctx context.Context, p link.PendingLink) error {
	if m.CreatePendingFunc != nil {
		return m.CreatePendingFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[p.Token] = p
	return nil
}

// ConsumePending implements link.PendingStore.
func (m *MockStore) ConsumePending(_ context.Context, token string, now time.Time) (link.PendingLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[token]
	if !ok || p.Expired(now) {
		return link.PendingLink{}, link.ErrStateNotFound
	}
	delete(m.pending, token)
	return p, nil
}

// PurgeExpired implements link.PendingStore.
func (m *MockStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for token, p := range m.pending {
		if p.Expired(now) {
			delete(m.pending, token)
			n++
		}
	}
	return n, nil
}

// PendingCount returns the number of stored pending links.
func (m *MockStore) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// CreateLink implements link.LinkStore.
func (m *MockStore) CreateLink(ctx context.Context, l *link.UserLink) error {
	if m.CreateLinkFunc != nil {
		return m.CreateLinkFunc(ctx, l)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.links {
		if existing.DiscordID == l.DiscordID {
			return link.ErrConflict
		}
		if existing.TelegramID == l.TelegramID {
			return link.ErrAlreadyLinked
		}
	}

	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = now
	}

	m.nextID++
	l.ID = m.nextID
	m.links[l.ID] = *l
	return nil
}

// LinkByTelegramID implements link.LinkStore.
func (m *MockStore) LinkByTelegramID(_ context.Context, telegramID int64) (*link.UserLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.links {
		if l.TelegramID == telegramID {
			cp := l
			return &cp, nil
		}
	}
	return nil, link.ErrNotFound
}

// LinkByDiscordID implements link.LinkStore.
func (m *MockStore) LinkByDiscordID(_ context.Context, discordID int64) (*link.UserLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.links {
		if l.DiscordID == discordID {
			cp := l
			return &cp, nil
		}
	}
	return nil, link.ErrNotFound
}

// Links implements link.LinkStore.
func (m *MockStore) Links(_ context.Context) ([]link.UserLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLinks(func(link.UserLink) bool { return true }), nil
}

// LinksByGuild implements link.LinkStore.
func (m *MockStore) LinksByGuild(ctx context.Context, guildID int64) ([]link.UserLink, error) {
	if m.LinksByGuildFunc != nil {
		return m.LinksByGuildFunc(ctx, guildID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLinks(func(l link.UserLink) bool { return l.GuildID == guildID }), nil
}

func (m *MockStore) sortedLinks(keep func(link.UserLink) bool) []link.UserLink {
	var out []link.UserLink
	for _, l := range m.links {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DeleteLink implements link.LinkStore.
func (m *MockStore) DeleteLink(ctx context.Context, id int64) error {
	if m.DeleteLinkFunc != nil {
		return m.DeleteLinkFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.links[id]; !ok {
		return link.ErrNotFound
	}
	delete(m.links, id)
	return nil
}

// TouchLastCheck implements link.LinkStore.
func (m *MockStore) TouchLastCheck(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.links[id]
	if !ok {
		return link.ErrNotFound
	}
	l.LastCheck = &at
	l.UpdatedAt = at
	m.links[id] = l
	return nil
}

// MarkAddedToGroup implements link.LinkStore.
func (m *MockStore) MarkAddedToGroup(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.links[id]
	if !ok {
		return link.ErrNotFound
	}
	l.AddedToGroupAt = &at
	l.UpdatedAt = at
	m.links[id] = l
	return nil
}

// Guilds implements link.GuildStore.
func (m *MockStore) Guilds(_ context.Context) ([]link.Guild, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]link.Guild, 0, len(m.guilds))
	for _, g := range m.guilds {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out, nil
}

// GuildByID implements link.GuildStore.
func (m *MockStore) GuildByID(_ context.Context, guildID int64) (*link.Guild, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.guilds[guildID]
	if !ok {
		return nil, link.ErrNotFound
	}
	cp := g
	return &cp, nil
}

// UpsertGuild implements link.GuildStore.
func (m *MockStore) UpsertGuild(_ context.Context, g link.Guild) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.guilds[g.GuildID]; ok {
		existing.TelegramGroupID = g.TelegramGroupID
		m.guilds[g.GuildID] = existing
		return nil
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	m.guilds[g.GuildID] = g
	return nil
}

// DeleteGuild implements link.GuildStore.
func (m *MockStore) DeleteGuild(_ context.Context, guildID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.guilds[guildID]; !ok {
		return link.ErrNotFound
	}
	delete(m.guilds, guildID)
	delete(m.roles, guildID)
	return nil
}

// GuildRoles implements link.GuildStore.
func (m *MockStore) GuildRoles(_ context.Context, guildID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.roles[guildID]
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// AddGuildRole implements link.GuildStore.
func (m *MockStore) AddGuildRole(_ context.Context, guildID, roleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.roles[guildID] == nil {
		m.roles[guildID] = make(map[int64]bool)
	}
	m.roles[guildID][roleID] = true
	return nil
}

// RemoveGuildRole implements link.GuildStore.
func (m *MockStore) RemoveGuildRole(_ context.Context, guildID, roleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.roles[guildID], roleID)
	return nil
}

// InTx implements link.Store.
func (m *MockStore) InTx(_ context.Context, fn func(tx link.Store) error) error {
	return fn(m)
}

// Ping implements link.Store.
func (m *MockStore) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}
