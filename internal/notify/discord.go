package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/webhook"
	"github.com/disgoorg/snowflake/v2"
)

// discordPurple is Twitch's brand color as an embed color.
const discordPurple = 0x9146FF

// DiscordPacing is the delay disgo applies between webhook requests.
const DiscordPacing = 2 * time.Second

// Discord posts notifications as embeds to a channel webhook.
type Discord struct {
	client webhook.Client
	logger *slog.Logger
}

// NewDiscord parses a webhook URL of the form
// https://discord.com/api/webhooks/<id>/<token>. An empty URL returns nil, nil.
func NewDiscord(webhookURL string, logger *slog.Logger) (*Discord, error) {
	if webhookURL == "" {
		return nil, nil
	}
	client, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	return &Discord{client: client, logger: logger}, nil
}

func parseWebhookURL(raw string) (webhook.Client, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse discord webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 {
		return nil, fmt.Errorf("discord webhook url %q has no id/token", raw)
	}
	id, err := snowflake.Parse(parts[len(parts)-2])
	if err != nil {
		return nil, fmt.Errorf("parse discord webhook id: %w", err)
	}
	return webhook.New(id, parts[len(parts)-1]), nil
}

// Notify posts one embed linking to the channel.
func (d *Discord) Notify(ctx context.Context, n Notification) error {
	embed := discord.Embed{
		Title:       n.Title,
		Description: n.Body,
		URL:         n.URL,
		Type:        discord.EmbedTypeRich,
		Color:       discordPurple,
	}
	if n.IconURL != "" {
		embed.Thumbnail = &discord.EmbedResource{URL: n.IconURL}
	}

	_, err := d.client.CreateMessage(discord.NewWebhookMessageCreateBuilder().
		SetEmbeds(embed).
		SetUsername(desktopAppName).
		Build(),
		rest.WithCtx(ctx),
		rest.WithDelay(DiscordPacing),
	)
	if err != nil {
		d.logger.Error("error sending discord notification", slog.String("entity_id", n.EntityID), slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Shutdown releases the webhook client.
func (d *Discord) Shutdown() error {
	d.client.Close(context.Background())
	return nil
}
