// Package actions provides the fire-and-forget action queue that decouples
// the OAuth linker and the role verifier from chat-platform side effects.
// Delivery is at-most-once and strictly in submission order; the durable
// intent lives in the link store, not in the queue.
package actions

import (
	"context"
	"errors"
)

// Kind identifies the chat-platform side effect an Action requests.
type Kind string

const (
	// KindInvite delivers a fresh single-use group invite link to the user
	// via direct message.
	KindInvite Kind = "invite"

	// KindRemove kicks the user from the group: ban immediately followed
	// by unban, so the user can re-enter later with a new invite.
	KindRemove Kind = "remove"
)

// Action is one queued side effect.
type Action struct {
	Kind       Kind
	TelegramID int64
	GroupID    int64
}

// Invite builds an invite action for the given user and group.
func Invite(telegramID, groupID int64) Action {
	return Action{Kind: KindInvite, TelegramID: telegramID, GroupID: groupID}
}

// Remove builds a remove action for the given user and group.
func Remove(telegramID, groupID int64) Action {
	return Action{Kind: KindRemove, TelegramID: telegramID, GroupID: groupID}
}

// Enqueuer is the producer side of the queue. Enqueue never blocks.
type Enqueuer interface {
	Enqueue(a Action) error
}

// Performer executes actions against the chat platform. The Telegram
// channel module implements it.
type Performer interface {
	// Invite creates a single-use invite link for the group and sends it
	// to the user in a direct message.
	Invite(ctx context.Context, groupID, telegramID int64) error

	// Kick removes the user from the group without a permanent ban.
	Kick(ctx context.Context, groupID, telegramID int64) error
}

// ErrQueueClosed is returned by Enqueue after the queue has been stopped.
var ErrQueueClosed = errors.New("actions: queue closed")

// errNoPerformer indicates Start was called before a performer was bound.
var errNoPerformer = errors.New("actions: no performer bound")
