package solar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	DiscordSlashCommandLeft     = "left"
	DiscordSlashCommandReturned = "returned"
	DiscordSlashCommandPrayer   = "prayer"
	DiscordSlashCommandInquire  = "inquire"

	inquireQuestionOption = "question"
)

// Command replies
const (
	msgTimeLeftRow      = "⏱️ Time left logged in row %d"
	msgTimeLeftNewRow   = "⏱️ Time left logged in new row"
	msgAlreadyLeft      = "❌ Already left to eat today!"
	msgTimeReturnedRow  = "✅ Time returned logged in row %d"
	msgNoLeftTime       = "❌ No left time found for today!"
	msgErrorLoggingTime = "❌ Error logging time"
	msgErrorLoggingRet  = "❌ Error logging return"
	msgErrorPrayer      = "❌ Error generating prayer"
	msgErrorInquire     = "❌ Error inquiring with Solar"
	msgUnknownCommand   = "❌ Unknown command"
)

// handleInteraction acknowledges the interaction, then runs the command
// and edits the acknowledgement with the result.
func (b *Bot) handleInteraction(ctx context.Context, handler InteractionHandler) {
	command, ok := b.acknowledgeInteraction(ctx, handler)
	if !ok {
		return
	}
	b.executeCommand(ctx, handler, command)
}

// acknowledgeInteraction sends the initial response to an interaction.
// It returns the command name and true if a command should be executed.
func (b *Bot) acknowledgeInteraction(
	ctx context.Context,
	handler InteractionHandler,
) (string, bool) {
	i := handler.GetInteraction()
	logger := handler.Logger()

	switch i.Type {
	case discordgo.InteractionPing:
		_ = handler.Respond(
			ctx, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponsePong,
			},
		)
		return "", false
	case discordgo.InteractionApplicationCommand:
	default:
		logger.WarnContext(ctx, "unhandled interaction type", "type", i.Type.String())
		return "", false
	}

	discordUser := getDiscordUser(i)
	if discordUser == nil {
		logger.ErrorContext(
			ctx,
			"no user found in interaction",
			"interaction", structToSlogValue(i),
		)
		return "", false
	}
	logger.InfoContext(
		ctx,
		"received new interaction",
		slog.Group("user", userLogAttrs(discordUser)...),
		"method", handler.InteractionReceiveMethod(),
	)

	if discordUser.Bot {
		logger.WarnContext(ctx, "user is bot, ignoring")
		return "", false
	}

	command := i.ApplicationCommandData().Name
	if err := handler.Respond(ctx, b.discord.ackResponse(command)); err != nil {
		return "", false
	}
	return command, true
}

// executeCommand runs the named command and replaces the deferred
// acknowledgement with the command's reply
func (b *Bot) executeCommand(
	ctx context.Context,
	handler InteractionHandler,
	command string,
) {
	logger := handler.Logger()
	ctx = WithLogger(ctx, logger)

	var content string
	switch command {
	case DiscordSlashCommandLeft:
		content = b.leftReply(ctx)
	case DiscordSlashCommandReturned:
		content = b.returnedReply(ctx)
	case DiscordSlashCommandPrayer:
		content = b.prayerReply(ctx)
	case DiscordSlashCommandInquire:
		opts := discordInteractionOptions(handler.GetInteraction())
		var question string
		if opt, ok := opts[inquireQuestionOption]; ok {
			question = opt.StringValue()
		}
		content = b.inquireReply(ctx, question)
	default:
		logger.ErrorContext(ctx, "unknown command", "command", command)
		content = msgUnknownCommand
	}

	if _, err := handler.Edit(
		ctx,
		&discordgo.WebhookEdit{Content: &content},
	); err != nil {
		logger.ErrorContext(ctx, "error sending reply", tint.Err(err))
	}
}

func (b *Bot) leftReply(ctx context.Context) string {
	entry, err := b.attendance.LogDeparture(ctx)
	switch {
	case err == nil && entry.Appended:
		return msgTimeLeftNewRow
	case err == nil:
		return fmt.Sprintf(msgTimeLeftRow, entry.Row)
	case errors.Is(err, ErrDuplicateDeparture):
		return msgAlreadyLeft
	default:
		return msgErrorLoggingTime
	}
}

func (b *Bot) returnedReply(ctx context.Context) string {
	entry, err := b.attendance.LogReturn(ctx)
	switch {
	case err == nil:
		return fmt.Sprintf(msgTimeReturnedRow, entry.Row)
	case errors.Is(err, ErrNoOpenDeparture):
		return msgNoLeftTime
	default:
		return msgErrorLoggingRet
	}
}

func (b *Bot) prayerReply(ctx context.Context) string {
	text, err := Prayer(ctx, b.completer)
	if err != nil {
		b.commandLogger(ctx).ErrorContext(ctx, "error generating prayer", tint.Err(err))
		return msgErrorPrayer
	}
	return text
}

func (b *Bot) inquireReply(ctx context.Context, question string) string {
	if question == "" {
		b.commandLogger(ctx).WarnContext(ctx, "empty question")
		return msgErrorInquire
	}
	text, err := Inquire(ctx, b.completer, question)
	if err != nil {
		b.commandLogger(ctx).ErrorContext(ctx, "error inquiring", tint.Err(err))
		return msgErrorInquire
	}
	return text
}

func (b *Bot) commandLogger(ctx context.Context) *slog.Logger {
	logger, ok := ContextLogger(ctx)
	if !ok || logger == nil {
		return b.logger
	}
	return logger
}
