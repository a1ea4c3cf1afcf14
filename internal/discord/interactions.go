package discord

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Andromedov/DiscordVerificator/internal/accounts"
	"github.com/Andromedov/DiscordVerificator/internal/codes"
	"github.com/Andromedov/DiscordVerificator/internal/messages"
)

// accountStore is the subset of the account store the bot commands need.
type accountStore interface {
	LookupExternalID(ctx context.Context, player string) (string, error)
	SetAddress(ctx context.Context, externalID, address string) error
	SetBlocked(ctx context.Context, externalID string, blocked bool) error
	SetSharedAddressAllowed(ctx context.Context, externalID string, allowed bool) error
}

// codeRedeemer consumes outstanding confirmation codes.
type codeRedeemer interface {
	Redeem(code string) (codes.Grant, bool)
}

// Interactions handles the bot's slash command and alert button clicks.
type Interactions struct {
	logger  *slog.Logger
	store   accountStore
	codes   codeRedeemer
	catalog *messages.Catalog
}

// NewInteractions creates the interaction handler.
func NewInteractions(log *slog.Logger, store accountStore, redeemer codeRedeemer, catalog *messages.Catalog) *Interactions {
	if log == nil {
		log = slog.Default()
	}
	return &Interactions{
		logger:  log.With(slog.String("component", "discord")),
		store:   store,
		codes:   redeemer,
		catalog: catalog,
	}
}

// Handle routes an interaction event to the confirm command or a decision
// button, replying ephemerally.
func (b *Interactions) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		if data.Name != confirmCommandName || len(data.Options) == 0 {
			return
		}
		reply := b.Confirm(ctx, interactionUserID(i), data.Options[0].StringValue())
		b.respond(s, i, reply)

	case discordgo.InteractionMessageComponent:
		reply, handled := b.Decide(ctx, i.MessageComponentData().CustomID)
		if handled {
			b.respond(s, i, reply)
		}
	}
}

// Confirm redeems a confirmation code on behalf of the invoking Discord
// user and, when it checks out, trusts the code's source address. The code
// is consumed either way; a wrong invoker burns it, and the player simply
// reconnects for a fresh one.
func (b *Interactions) Confirm(ctx context.Context, invokerID, code string) string {
	grant, ok := b.codes.Redeem(code)
	if !ok {
		return b.catalog.Get(messages.KeyInvalidCode)
	}

	externalID, err := b.store.LookupExternalID(ctx, grant.Player)
	if errors.Is(err, accounts.ErrNotFound) {
		// Unlinked since the code was issued.
		return b.catalog.Get(messages.KeyInvalidCode)
	}
	if err != nil {
		b.logger.Error("confirm lookup failed", slog.String("player", grant.Player), slog.Any("error", err))
		return b.catalog.Get(messages.KeyGenericFailure)
	}

	if externalID != invokerID {
		b.logger.Warn("code redeemed by unlinked user",
			slog.String("player", grant.Player), slog.String("invoker", invokerID))
		return b.catalog.Get(messages.KeyCodeWrongUser)
	}

	if err := b.store.SetAddress(ctx, externalID, grant.Address); err != nil {
		b.logger.Error("confirm set address failed", slog.String("player", grant.Player), slog.Any("error", err))
		return b.catalog.Get(messages.KeyGenericFailure)
	}

	return b.catalog.Format(messages.KeyCodeConfirmed, grant.Player)
}

// Decide applies an operator alert button. Operators see only a generic
// success or failure acknowledgment.
func (b *Interactions) Decide(ctx context.Context, customID string) (string, bool) {
	var err error
	switch {
	case strings.HasPrefix(customID, decisionAllowPrefix):
		err = b.store.SetSharedAddressAllowed(ctx, strings.TrimPrefix(customID, decisionAllowPrefix), true)
	case strings.HasPrefix(customID, decisionBlockPrefix):
		err = b.store.SetBlocked(ctx, strings.TrimPrefix(customID, decisionBlockPrefix), true)
	default:
		return "", false
	}

	if err != nil {
		b.logger.Error("operator decision failed", slog.String("custom_id", customID), slog.Any("error", err))
		return b.catalog.Get(messages.KeyActionFailed), true
	}
	return b.catalog.Get(messages.KeyActionSuccess), true
}

func (b *Interactions) respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Error("interaction respond failed", slog.Any("error", err))
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
