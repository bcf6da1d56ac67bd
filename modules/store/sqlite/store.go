package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bouncerbot/bouncer/internal/link"

	sqlite3 "modernc.org/sqlite"
)

// timeLayout is RFC 3339 with fixed nanosecond precision. Fixed width keeps
// stored timestamps comparable as strings, which the expiry predicates rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// sqliteConstraintUnique is the SQLite extended result code for UNIQUE
// constraint violations (SQLITE_CONSTRAINT_UNIQUE).
const sqliteConstraintUnique = 2067

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx,
// letting every query run either directly or inside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements link.Store on a single SQLite database.
type Store struct {
	db *sql.DB // nil when the store is transaction-scoped
	q  querier
}

// NewStore wraps an open database. The schema must already be migrated.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// InTx implements link.Store. A transaction-scoped store nests by reusing
// the surrounding transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx link.Store) error) error {
	return s.inTx(ctx, func(tx *Store) error { return fn(tx) })
}

func (s *Store) inTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}

	if err := fn(&Store{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit tx: %w", err)
	}
	return nil
}

// Ping implements link.Store.
func (s *Store) Ping(ctx context.Context) error {
	if s.db != nil {
		return s.db.PingContext(ctx)
	}
	var n int
	return s.q.QueryRowContext(ctx, "SELECT 1").Scan(&n)
}

// CreatePending implements link.PendingStore.
func (s *Store) CreatePending(ctx context.Context, p link.PendingLink) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO pending_links (token, telegram_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)`,
		p.Token, p.TelegramID, fmtTime(p.CreatedAt), fmtTime(p.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create pending link: %w", err)
	}
	return nil
}

// ConsumePending implements link.PendingStore. The DELETE ... RETURNING
// form makes lookup and consumption a single atomic statement, so a token
// can never be redeemed twice.
func (s *Store) ConsumePending(ctx context.Context, token string, now time.Time) (link.PendingLink, error) {
	row := s.q.QueryRowContext(ctx, `
		DELETE FROM pending_links
		WHERE token = ? AND expires_at > ?
		RETURNING token, telegram_id, created_at, expires_at`,
		token, fmtTime(now),
	)

	var p link.PendingLink
	var created, expires string
	if err := row.Scan(&p.Token, &p.TelegramID, &created, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return link.PendingLink{}, link.ErrStateNotFound
		}
		return link.PendingLink{}, fmt.Errorf("sqlite: consume pending link: %w", err)
	}

	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return link.PendingLink{}, fmt.Errorf("sqlite: pending created_at: %w", err)
	}
	if p.ExpiresAt, err = parseTime(expires); err != nil {
		return link.PendingLink{}, fmt.Errorf("sqlite: pending expires_at: %w", err)
	}
	return p, nil
}

// PurgeExpired implements link.PendingStore.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM pending_links WHERE expires_at <= ?", fmtTime(now))
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge expired pending links: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge expired pending links: %w", err)
	}
	return n, nil
}

// CreateLink implements link.LinkStore.
func (s *Store) CreateLink(ctx context.Context, l *link.UserLink) error {
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = now
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO user_links (discord_id, telegram_id, guild_id, created_at, updated_at, added_to_group_at, last_check)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.DiscordID, l.TelegramID, l.GuildID,
		fmtTime(l.CreatedAt), fmtTime(l.UpdatedAt),
		fmtNullTime(l.AddedToGroupAt), fmtNullTime(l.LastCheck),
	)
	if err != nil {
		switch {
		case uniqueViolation(err, "user_links.discord_id"):
			return link.ErrConflict
		case uniqueViolation(err, "user_links.telegram_id"):
			return link.ErrAlreadyLinked
		}
		return fmt.Errorf("sqlite: create link: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: create link id: %w", err)
	}
	l.ID = id
	return nil
}

const linkColumns = "id, discord_id, telegram_id, guild_id, created_at, updated_at, added_to_group_at, last_check"

// LinkByTelegramID implements link.LinkStore.
func (s *Store) LinkByTelegramID(ctx context.Context, telegramID int64) (*link.UserLink, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+linkColumns+" FROM user_links WHERE telegram_id = ?", telegramID)
	return scanLink(row)
}

// LinkByDiscordID implements link.LinkStore.
func (s *Store) LinkByDiscordID(ctx context.Context, discordID int64) (*link.UserLink, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+linkColumns+" FROM user_links WHERE discord_id = ?", discordID)
	return scanLink(row)
}

// Links implements link.LinkStore.
func (s *Store) Links(ctx context.Context) ([]link.UserLink, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+linkColumns+" FROM user_links ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanLinks(rows)
}

// LinksByGuild implements link.LinkStore.
func (s *Store) LinksByGuild(ctx context.Context, guildID int64) ([]link.UserLink, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+linkColumns+" FROM user_links WHERE guild_id = ? ORDER BY created_at, id", guildID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list links by guild: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanLinks(rows)
}

// DeleteLink implements link.LinkStore.
func (s *Store) DeleteLink(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM user_links WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: delete link: %w", err)
	}
	return requireAffected(res, "delete link")
}

// TouchLastCheck implements link.LinkStore.
func (s *Store) TouchLastCheck(ctx context.Context, id int64, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE user_links SET last_check = ?, updated_at = ? WHERE id = ?",
		fmtTime(at), fmtTime(at), id)
	if err != nil {
		return fmt.Errorf("sqlite: touch last_check: %w", err)
	}
	return requireAffected(res, "touch last_check")
}

// MarkAddedToGroup implements link.LinkStore.
func (s *Store) MarkAddedToGroup(ctx context.Context, id int64, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE user_links SET added_to_group_at = ?, updated_at = ? WHERE id = ?",
		fmtTime(at), fmtTime(at), id)
	if err != nil {
		return fmt.Errorf("sqlite: mark added_to_group: %w", err)
	}
	return requireAffected(res, "mark added_to_group")
}

// Guilds implements link.GuildStore.
func (s *Store) Guilds(ctx context.Context) ([]link.Guild, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT guild_id, telegram_group_id, created_at FROM guilds ORDER BY guild_id")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list guilds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var guilds []link.Guild
	for rows.Next() {
		g, err := scanGuild(rows)
		if err != nil {
			return nil, err
		}
		guilds = append(guilds, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list guilds: %w", err)
	}
	return guilds, nil
}

// GuildByID implements link.GuildStore.
func (s *Store) GuildByID(ctx context.Context, guildID int64) (*link.Guild, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT guild_id, telegram_group_id, created_at FROM guilds WHERE guild_id = ?", guildID)

	g, err := scanGuild(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, link.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

// UpsertGuild implements link.GuildStore. An existing guild keeps its
// created_at; only the Telegram group binding is replaced.
func (s *Store) UpsertGuild(ctx context.Context, g link.Guild) error {
	createdAt := g.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO guilds (guild_id, telegram_group_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET telegram_group_id = excluded.telegram_group_id`,
		g.GuildID, g.TelegramGroupID, fmtTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert guild: %w", err)
	}
	return nil
}

// DeleteGuild implements link.GuildStore. The guild row and its role list
// are removed together.
func (s *Store) DeleteGuild(ctx context.Context, guildID int64) error {
	return s.inTx(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx, "DELETE FROM guild_roles WHERE guild_id = ?", guildID); err != nil {
			return fmt.Errorf("sqlite: delete guild roles: %w", err)
		}

		res, err := tx.q.ExecContext(ctx, "DELETE FROM guilds WHERE guild_id = ?", guildID)
		if err != nil {
			return fmt.Errorf("sqlite: delete guild: %w", err)
		}
		return requireAffected(res, "delete guild")
	})
}

// GuildRoles implements link.GuildStore.
func (s *Store) GuildRoles(ctx context.Context, guildID int64) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT role_id FROM guild_roles WHERE guild_id = ? ORDER BY role_id", guildID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list guild roles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var roles []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan guild role: %w", err)
		}
		roles = append(roles, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list guild roles: %w", err)
	}
	return roles, nil
}

// AddGuildRole implements link.GuildStore. Adding a role twice is a no-op.
func (s *Store) AddGuildRole(ctx context.Context, guildID, roleID int64) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO guild_roles (guild_id, role_id) VALUES (?, ?)", guildID, roleID)
	if err != nil {
		return fmt.Errorf("sqlite: add guild role: %w", err)
	}
	return nil
}

// RemoveGuildRole implements link.GuildStore. Removing an absent role is a
// no-op.
func (s *Store) RemoveGuildRole(ctx context.Context, guildID, roleID int64) error {
	_, err := s.q.ExecContext(ctx,
		"DELETE FROM guild_roles WHERE guild_id = ? AND role_id = ?", guildID, roleID)
	if err != nil {
		return fmt.Errorf("sqlite: remove guild role: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(sc scanner) (*link.UserLink, error) {
	var l link.UserLink
	var created, updated string
	var added, checked sql.NullString
	err := sc.Scan(&l.ID, &l.DiscordID, &l.TelegramID, &l.GuildID,
		&created, &updated, &added, &checked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, link.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: scan link: %w", err)
	}

	if l.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("sqlite: link created_at: %w", err)
	}
	if l.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("sqlite: link updated_at: %w", err)
	}
	if l.AddedToGroupAt, err = parseNullTime(added); err != nil {
		return nil, fmt.Errorf("sqlite: link added_to_group_at: %w", err)
	}
	if l.LastCheck, err = parseNullTime(checked); err != nil {
		return nil, fmt.Errorf("sqlite: link last_check: %w", err)
	}
	return &l, nil
}

func scanLinks(rows *sql.Rows) ([]link.UserLink, error) {
	var links []link.UserLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate links: %w", err)
	}
	return links, nil
}

func scanGuild(sc scanner) (link.Guild, error) {
	var g link.Guild
	var created string
	if err := sc.Scan(&g.GuildID, &g.TelegramGroupID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return link.Guild{}, err
		}
		return link.Guild{}, fmt.Errorf("sqlite: scan guild: %w", err)
	}

	var err error
	if g.CreatedAt, err = parseTime(created); err != nil {
		return link.Guild{}, fmt.Errorf("sqlite: guild created_at: %w", err)
	}
	return g, nil
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: %s: %w", op, err)
	}
	if n == 0 {
		return link.ErrNotFound
	}
	return nil
}

// uniqueViolation reports whether err is a UNIQUE constraint failure on the
// given column. SQLite names the violated column in the error message.
func uniqueViolation(err error, column string) bool {
	var serr *sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code() == sqliteConstraintUnique && strings.Contains(serr.Error(), column)
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func fmtNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
