package gateway

import (
	"fmt"
	"html"
	"net/http"
)

// Minimal self-contained pages. The user lands here from Telegram's
// in-app browser, so no assets, no redirects, just a verdict.
const pageShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>
body { font-family: system-ui, sans-serif; display: flex; min-height: 100vh;
       align-items: center; justify-content: center; margin: 0; background: #1a1b1e; color: #e4e5e8; }
main { max-width: 26rem; padding: 2rem; text-align: center; }
h1 { font-size: 1.4rem; }
p { line-height: 1.5; color: #b0b2b8; }
</style>
</head>
<body>
<main>
<h1>%s</h1>
<p>%s</p>
</main>
%s</body>
</html>
`

const closeScript = `<script>setTimeout(() => window.close(), 3000);</script>
`

// renderSuccess writes the confirmation page shown after a completed link.
func (g *Gateway) renderSuccess(w http.ResponseWriter, username string) {
	body := fmt.Sprintf(
		"Discord account <b>%s</b> is now linked. Check Telegram for your invite link. This window closes itself in a moment.",
		html.EscapeString(username),
	)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, pageShell, "Account Linked", "Account Linked", body, closeScript)
}

// renderError writes an error page with the given status and user-safe
// message.
func (g *Gateway) renderError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, pageShell, "Linking Failed", "Linking Failed", html.EscapeString(message), "")
}
