package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/service/slack"
	"github.com/urfave/cli/v3"
)

type Slack struct {
	botToken      string
	channelID     string
	signingSecret string
}

func (x *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack Bot User OAuth Token (for posting approval messages)",
			Category:    "Slack",
			Destination: &x.botToken,
			Sources:     cli.EnvVars("MUSUBI_SLACK_BOT_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "slack-channel-id",
			Usage:       "Slack channel that receives approval messages",
			Category:    "Slack",
			Destination: &x.channelID,
			Sources:     cli.EnvVars("MUSUBI_SLACK_CHANNEL_ID"),
		},
		&cli.StringFlag{
			Name:        "slack-signing-secret",
			Usage:       "Slack Signing Secret (for interaction verification)",
			Category:    "Slack",
			Destination: &x.signingSecret,
			Sources:     cli.EnvVars("MUSUBI_SLACK_SIGNING_SECRET"),
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bot-token.len", len(x.botToken)),
		slog.String("channel-id", x.channelID),
		slog.Int("signing-secret.len", len(x.signingSecret)),
	)
}

// IsConfigured reports whether approval messages can be posted
func (x *Slack) IsConfigured() bool {
	return x.botToken != "" && x.channelID != ""
}

// IsInteractionConfigured reports whether button callbacks can be verified
func (x *Slack) IsInteractionConfigured() bool {
	return x.signingSecret != ""
}

// ChannelID returns the approval channel
func (x *Slack) ChannelID() string {
	return x.channelID
}

// SigningSecret returns the Slack signing secret
func (x *Slack) SigningSecret() string {
	return x.signingSecret
}

// Validate rejects half-configured Slack settings
func (x *Slack) Validate() error {
	if (x.botToken == "") != (x.channelID == "") {
		return goerr.Wrap(ErrMissingOption, "--slack-bot-token and --slack-channel-id must be set together")
	}
	if x.signingSecret != "" && !x.IsConfigured() {
		return goerr.Wrap(ErrMissingOption, "--slack-signing-secret requires --slack-bot-token and --slack-channel-id")
	}
	return nil
}

// Configure returns the Slack service, or nil when Slack is not configured
func (x *Slack) Configure() (slack.Service, error) {
	if err := x.Validate(); err != nil {
		return nil, err
	}
	if !x.IsConfigured() {
		return nil, nil
	}

	svc, err := slack.New(x.botToken)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize slack service")
	}
	return svc, nil
}
