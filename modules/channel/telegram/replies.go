package telegram

import (
	"fmt"
	"html"
)

// startReply is the answer to /start in a private chat, pointing the user
// at their personal account-link URL. Sent with HTML parse mode, so the
// user-controlled name must be escaped.
func startReply(firstName, linkURL string) string {
	name := html.EscapeString(firstName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(
		"Hi <b>%s</b>! To join the group you need to verify your Discord account.\n\n"+
			"Open this link and authorize with Discord:\n%s",
		name, linkURL,
	)
}

// inviteMessage delivers a fresh single-use invite link after a successful
// account link.
func inviteMessage(inviteLink string) string {
	return fmt.Sprintf(
		"Your Discord account is verified. Here is your personal invite link:\n%s\n\n"+
			"It can be used exactly once, so don't share it.",
		inviteLink,
	)
}
