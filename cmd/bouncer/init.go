package main

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively generate a configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, _ := cmd.Flags().GetString("output")
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				if _, err := os.Stat(out); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", out)
				}
			}

			answers, err := runWizard()
			if errors.Is(err, huh.ErrUserAborted) {
				return errors.New("aborted")
			}
			if err != nil {
				return err
			}

			// The file holds bot tokens, keep it owner-only.
			if err := os.WriteFile(out, []byte(renderConfig(*answers)), 0o600); err != nil {
				return err
			}

			fmt.Printf("Wrote %s.\n\nNext steps:\n", out)
			fmt.Printf("  1. Review the file.\n")
			fmt.Printf("  2. Run \"bouncer config check %s\".\n", out)
			fmt.Printf("  3. Run \"bouncer start --config %s\".\n", out)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "bouncer.yaml", "Where to write the configuration")
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

// wizardAnswers collects everything the generated config needs. GuildID
// stays a string: it is validated as digits and rendered as a YAML integer.
type wizardAnswers struct {
	TelegramToken string
	BaseURL       string
	ClientID      string
	ClientSecret  string
	BotToken      string
	GuildID       string
	EnableEvents  bool
	Bind          string
	BearerToken   string
}

func runWizard() (*wizardAnswers, error) {
	a := wizardAnswers{EnableEvents: true, Bind: "127.0.0.1:8080"}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram bot token").
				Description("From @BotFather. The bot must be an admin of the group it guards.").
				EchoMode(huh.EchoModePassword).
				Validate(validTelegramToken).
				Value(&a.TelegramToken),
			huh.NewInput().
				Title("Public base URL").
				Description("Where users reach the link endpoints, e.g. https://bouncer.example.org").
				Placeholder("https://bouncer.example.org").
				Validate(validHTTPURL).
				Value(&a.BaseURL),
		).Title("Telegram"),

		huh.NewGroup(
			huh.NewInput().
				Title("Application client ID").
				Description("From the Discord developer portal, OAuth2 section.").
				Validate(validDigits("client ID")).
				Value(&a.ClientID),
			huh.NewInput().
				Title("Application client secret").
				EchoMode(huh.EchoModePassword).
				Validate(notEmpty("client secret")).
				Value(&a.ClientSecret),
			huh.NewInput().
				Title("Bot token").
				Description("The bot needs the Server Members intent to read roles.").
				EchoMode(huh.EchoModePassword).
				Validate(notEmpty("bot token")).
				Value(&a.BotToken),
			huh.NewInput().
				Title("Guild (server) ID").
				Validate(validDigits("guild ID")).
				Value(&a.GuildID),
			huh.NewConfirm().
				Title("Listen for member events?").
				Description("Reacts to role changes immediately instead of waiting for the nightly cycle.").
				Value(&a.EnableEvents),
		).Title("Discord"),

		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Description("Put a TLS-terminating proxy in front when exposing it publicly.").
				Validate(validBind).
				Value(&a.Bind),
			huh.NewInput().
				Title("Admin API bearer token").
				Description("Optional. Leave empty to keep the admin endpoints unmounted.").
				EchoMode(huh.EchoModePassword).
				Validate(optionalMinLen(8)).
				Value(&a.BearerToken),
		).Title("HTTP gateway"),
	)

	if err := form.Run(); err != nil {
		return nil, err
	}
	return &a, nil
}

// renderConfig produces the YAML for the collected answers. All strings were
// validated by the wizard, so %q quoting is always YAML-safe.
func renderConfig(a wizardAnswers) string {
	base := strings.TrimSuffix(a.BaseURL, "/")

	var b strings.Builder
	b.WriteString("# bouncer configuration, generated by \"bouncer init\".\n")
	b.WriteString("# Values may reference environment variables as ${VAR} or ${VAR:-default}.\n")
	b.WriteString("version: \"1\"\n\n")
	b.WriteString("log:\n  level: info\n  format: text\n\n")
	b.WriteString("modules:\n")
	b.WriteString("  store.sqlite: {}\n\n")
	fmt.Fprintf(&b, "  channel.telegram:\n    token: %q\n    link_base_url: %q\n\n", a.TelegramToken, base)
	fmt.Fprintf(&b, "  discord.api:\n    client_id: %q\n    client_secret: %q\n    bot_token: %q\n    redirect_url: %q\n\n",
		a.ClientID, a.ClientSecret, a.BotToken, base+"/oauth/callback")
	if a.EnableEvents {
		fmt.Fprintf(&b, "  discord.events:\n    bot_token: %q\n\n", a.BotToken)
	}
	fmt.Fprintf(&b, "  linker:\n    guild_id: %s\n\n", a.GuildID)
	b.WriteString("  verifier:\n    schedule: \"0 4 * * *\"\n\n")
	b.WriteString("  actions: {}\n\n")
	fmt.Fprintf(&b, "  gateway.http:\n    bind: %q\n", a.Bind)
	if a.BearerToken != "" {
		fmt.Fprintf(&b, "    auth:\n      bearer_token: %q\n", a.BearerToken)
	}
	return b.String()
}

var telegramTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

func validTelegramToken(s string) error {
	if !telegramTokenPattern.MatchString(s) {
		return errors.New("expected <bot_id>:<hash>")
	}
	return nil
}

func validHTTPURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

func validBind(s string) error {
	if _, err := net.ResolveTCPAddr("tcp", s); err != nil {
		return errors.New("must be host:port")
	}
	return nil
}

func validDigits(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", field)
		}
		for _, r := range s {
			if r < '0' || r > '9' {
				return fmt.Errorf("%s must be numeric", field)
			}
		}
		return nil
	}
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func optionalMinLen(n int) func(string) error {
	return func(s string) error {
		if s != "" && len(s) < n {
			return fmt.Errorf("use at least %d characters", n)
		}
		return nil
	}
}
