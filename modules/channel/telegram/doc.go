// Package telegram implements the Telegram side of bouncer.
//
// It provides:
//
//   - A thin Bot API client (raw net/http + encoding/json, no external
//     Telegram library) with 429-aware retries
//   - A long-polling responder that answers /start in private chats with
//     the user's personal account-link URL
//   - Group membership actions: single-use invite links delivered by DM,
//     and ban/unban kicks that leave the user free to rejoin later
//
// The module registers itself as "channel.telegram" via init() and
// implements the full module lifecycle: Configure -> Provision ->
// Validate -> Start -> Stop. The membership actions are exposed to the
// action queue as the "telegram.actions" service.
package telegram
