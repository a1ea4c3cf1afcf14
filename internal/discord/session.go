package discord

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/Andromedov/DiscordVerificator/internal/config"
)

const confirmCommandName = "confirm"

// Dialer establishes real Discord sessions for the supervisor.
type Dialer struct {
	cfg          config.DiscordConfig
	logger       *slog.Logger
	interactions *Interactions
}

// NewDialer creates the production session dialer.
func NewDialer(log *slog.Logger, cfg config.DiscordConfig, interactions *Interactions) *Dialer {
	if log == nil {
		log = slog.Default()
	}
	return &Dialer{
		cfg:          cfg,
		logger:       log.With(slog.String("component", "discord")),
		interactions: interactions,
	}
}

// Dial creates a session, attaches the event and interaction handlers, and
// completes the gateway handshake.
func (d *Dialer) Dial(events SessionEvents) (Conn, error) {
	token := strings.TrimSpace(d.cfg.Token)
	if token == "" || strings.Contains(token, "DISCORD_BOT_TOKEN") {
		return nil, errors.New("discord bot token is not configured")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		d.logger.Info("discord session ready", slog.String("user", r.User.Username))
		d.registerCommands(s)
		events.OnReady()
	})
	session.AddHandler(func(s *discordgo.Session, _ *discordgo.Disconnect) {
		events.OnDisconnect()
	})
	session.AddHandler(d.interactions.Handle)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return &liveConn{session: session}, nil
}

func (d *Dialer) registerCommands(s *discordgo.Session) {
	cmd := &discordgo.ApplicationCommand{
		Name:        confirmCommandName,
		Description: "Confirm your connection address with a verification code",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "code",
				Description: "The code shown on the connection screen",
				Required:    true,
			},
		},
	}
	if _, err := s.ApplicationCommandCreate(s.State.User.ID, d.cfg.GuildID, cmd); err != nil {
		d.logger.Error("register confirm command failed", slog.Any("error", err))
	}
}

type liveConn struct {
	session *discordgo.Session
}

func (c *liveConn) Close() error {
	return c.session.Close()
}

func (c *liveConn) SendMessage(channelID string, msg *discordgo.MessageSend) error {
	_, err := c.session.ChannelMessageSendComplex(channelID, msg)
	return err
}
