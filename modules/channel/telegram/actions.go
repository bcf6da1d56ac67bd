package telegram

import (
	"context"
	"fmt"
)

// Invite creates a single-use invite link for the group and sends it to the
// user in a direct message. The link is limited to one member so it cannot
// be shared.
func (t *Telegram) Invite(ctx context.Context, groupID, telegramID int64) error {
	invite, err := t.client.CreateChatInviteLink(ctx, CreateChatInviteLinkRequest{
		ChatID:      groupID,
		Name:        "bouncer invite",
		MemberLimit: 1,
	})
	if err != nil {
		return fmt.Errorf("creating invite link: %w", err)
	}

	if _, err := t.client.SendMessage(ctx, SendMessageRequest{
		ChatID:                telegramID,
		Text:                  inviteMessage(invite.InviteLink),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}); err != nil {
		return fmt.Errorf("sending invite link: %w", err)
	}

	t.logger.Info("sent group invite",
		"group_id", groupID,
		"telegram_id", telegramID,
	)
	return nil
}

// Kick removes the user from the group. The ban is lifted immediately so the
// user can rejoin later after verifying again.
func (t *Telegram) Kick(ctx context.Context, groupID, telegramID int64) error {
	if err := t.client.BanChatMember(ctx, BanChatMemberRequest{
		ChatID: groupID,
		UserID: telegramID,
	}); err != nil {
		return fmt.Errorf("banning member: %w", err)
	}

	if err := t.client.UnbanChatMember(ctx, UnbanChatMemberRequest{
		ChatID:       groupID,
		UserID:       telegramID,
		OnlyIfBanned: true,
	}); err != nil {
		return fmt.Errorf("unbanning member: %w", err)
	}

	t.logger.Info("removed member from group",
		"group_id", groupID,
		"telegram_id", telegramID,
	)
	return nil
}
