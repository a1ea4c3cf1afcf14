package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/Andromedov/DiscordVerificator/internal/authorize"
	"github.com/Andromedov/DiscordVerificator/internal/messages"
)

// Component custom-id prefixes routing operator button clicks.
const (
	decisionAllowPrefix = "decision:allow:"
	decisionBlockPrefix = "decision:block:"
)

// buildAlertMessage renders an operator alert with its action buttons. Both
// alert kinds carry actionable responses, bound to the connecting account's
// external id.
func buildAlertMessage(catalog *messages.Catalog, alert authorize.Alert) *discordgo.MessageSend {
	switch alert.Kind {
	case authorize.AlertBlockedAssociation:
		return &discordgo.MessageSend{
			Content: catalog.Format(messages.KeyAlertBlockedAssoc, alert.Player, alert.BlockedNeighbor),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						blockButton(catalog, alert.ExternalID),
					},
				},
			},
		}
	default:
		return &discordgo.MessageSend{
			Content: catalog.Format(messages.KeyAlertShared,
				alert.Player, alert.Address, strings.Join(alert.Neighbors, ", ")),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Label:    catalog.Get(messages.KeyButtonAllow),
							Style:    discordgo.SuccessButton,
							CustomID: decisionAllowPrefix + alert.ExternalID,
						},
						blockButton(catalog, alert.ExternalID),
					},
				},
			},
		}
	}
}

func blockButton(catalog *messages.Catalog, externalID string) discordgo.Button {
	return discordgo.Button{
		Label:    catalog.Get(messages.KeyButtonBlock),
		Style:    discordgo.DangerButton,
		CustomID: decisionBlockPrefix + externalID,
	}
}
