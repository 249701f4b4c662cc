package solar

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// DiscordInteractionReceiveMethod is how an interaction reached the bot
type DiscordInteractionReceiveMethod string

const (
	discordInteractionReceiveMethodGateway DiscordInteractionReceiveMethod = "gateway"
	discordInteractionReceiveMethodWebhook DiscordInteractionReceiveMethod = "webhook"
)

// InteractionHandler responds to a single Discord interaction. Commands
// run the same way regardless of whether the interaction arrived over
// the gateway or via webhook; only the initial response differs.
type InteractionHandler interface {
	// Respond sends the first reply, usually a deferred ephemeral ack
	Respond(ctx context.Context, i *discordgo.InteractionResponse) error

	// Edit replaces the content of the deferred reply
	Edit(
		ctx context.Context,
		e *discordgo.WebhookEdit,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	GetInteraction() *discordgo.InteractionCreate

	InteractionReceiveMethod() DiscordInteractionReceiveMethod

	// Logger is scoped to the interaction and its user
	Logger() *slog.Logger
}

// GatewayHandler answers interactions delivered over the websocket gateway,
// replying through the REST API
type GatewayHandler struct {
	session     DiscordSessionHandler
	interaction *discordgo.InteractionCreate
	logger      *slog.Logger
}

func (GatewayHandler) InteractionReceiveMethod() DiscordInteractionReceiveMethod {
	return discordInteractionReceiveMethodGateway
}

func (g GatewayHandler) Respond(
	ctx context.Context,
	response *discordgo.InteractionResponse,
) error {
	err := g.session.InteractionRespond(g.interaction.Interaction, response)
	if err != nil {
		g.logger.ErrorContext(ctx, "interaction response failed", tint.Err(err))
	} else {
		g.logger.DebugContext(ctx, "interaction acknowledged")
	}
	return err
}

func (g GatewayHandler) GetInteraction() *discordgo.InteractionCreate {
	return g.interaction
}

func (g GatewayHandler) Edit(
	ctx context.Context,
	wh *discordgo.WebhookEdit,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := g.session.InteractionResponseEdit(
		g.interaction.Interaction,
		wh,
		opts...,
	)
	if err != nil {
		g.logger.ErrorContext(ctx, "interaction edit failed", tint.Err(err))
	} else {
		g.logger.DebugContext(ctx, "interaction response updated")
	}
	return msg, err
}

func (g GatewayHandler) Logger() *slog.Logger {
	return g.logger
}
