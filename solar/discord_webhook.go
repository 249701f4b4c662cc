package solar

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

const apiDiscordInteractions = "/discord-interactions"

// DiscordWebhookServer receives Discord interactions via HTTP, as an
// alternative to the gateway.
// See: https://discord.com/developers/docs/interactions/overview#configuring-an-interactions-endpoint-url
//
//nolint:lll // can't split link
type DiscordWebhookServer struct {
	*ginServer
	publicKey ed25519.PublicKey
}

func newWebhookServer(
	ctx context.Context,
	b *Bot,
	config DiscordWebhookServerConfig,
) (*DiscordWebhookServer, error) {
	srv, err := newGinServer("discord_webhook", config.HTTPServerConfig, b.config.Development)
	if err != nil {
		return nil, err
	}
	w := &DiscordWebhookServer{ginServer: srv, publicKey: b.discord.publicKey}

	srv.engine.POST(
		apiDiscordInteractions,
		discordRequestAuthenticationMiddleware(w.publicKey, srv.logger),
		webhookReceiveHandler(ctx, b, srv.logger),
	)
	return w, nil
}

// WebhookHandler is a handler for Discord interactions received via webhook.
// The initial response is written as the HTTP response body, while later
// edits go through the REST API like any other interaction.
// See: https://discord.com/developers/docs/interactions/overview#setting-up-an-endpoint-validating-security-request-headers
//
//nolint:lll  // can't split link
type WebhookHandler struct {
	ginContext *gin.Context
	InteractionHandler
}

func (WebhookHandler) InteractionReceiveMethod() DiscordInteractionReceiveMethod {
	return discordInteractionReceiveMethodWebhook
}

// Respond writes the response as the HTTP response body and flushes it,
// so it's on the wire before any edit is sent through the REST API
func (w WebhookHandler) Respond(
	_ context.Context,
	response *discordgo.InteractionResponse,
) error {
	data, err := json.Marshal(response)
	if err != nil {
		w.ginContext.JSON(
			http.StatusInternalServerError,
			httpError{Error: "error encoding response"},
		)
		return err
	}
	w.ginContext.Header("Content-Length", strconv.Itoa(len(data)))
	w.ginContext.Data(http.StatusOK, "application/json; charset=utf-8", data)
	w.ginContext.Writer.Flush()
	return nil
}

// webhookReceiveHandler returns a [gin.HandlerFunc] for handling Discord
// webhook interactions. Commands are acknowledged synchronously and run
// in the background, so Discord gets its response right away.
func webhookReceiveHandler(
	ctx context.Context,
	b *Bot,
	base *slog.Logger,
) gin.HandlerFunc {
	cmdCtx := context.WithoutCancel(ctx)
	return func(c *gin.Context) {
		logger := ginContextLogger(c, base)
		runCtx := WithLogger(cmdCtx, logger)

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			logger.ErrorContext(runCtx, "error getting raw data", tint.Err(err))
			c.JSON(http.StatusInternalServerError, httpError{Error: "error getting raw data"})
			return
		}

		var interaction discordgo.InteractionCreate
		if e := json.Unmarshal(body, &interaction); e != nil {
			logger.ErrorContext(runCtx, "error unmarshalling body", tint.Err(e))
			c.JSON(http.StatusBadRequest, httpError{Error: "error unmarshalling body"})
			return
		}
		i := &interaction
		handler := WebhookHandler{
			ginContext:         c,
			InteractionHandler: b.getInteractionHandlerFunc(cmdCtx, i),
		}

		command, ok := b.acknowledgeInteraction(runCtx, handler)
		if !ok {
			if !c.Writer.Written() {
				c.Status(http.StatusNoContent)
			}
			return
		}
		// Respond has flushed the acknowledgement. Discord may still
		// process an edit that races it over the network; that ordering
		// is best-effort.
		b.interactionWG.Add(1)
		go func() {
			defer b.interactionWG.Done()
			b.executeCommand(runCtx, handler, command)
		}()
	}
}

// discordRequestAuthenticationMiddleware is a middleware for verifying Discord
// webhook requests.
// See: https://discord.com/developers/docs/interactions/overview#setting-up-an-endpoint-validating-security-request-headers
//
//nolint:lll // can't split link
func discordRequestAuthenticationMiddleware(
	publicKey ed25519.PublicKey,
	base *slog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !verifyRequest(c.Request, publicKey) {
			ginContextLogger(c, base).WarnContext(c, "invalid signature")
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: "invalid signature"})
			return
		}
		c.Next()
	}
}

// verifyRequest verifies the authenticity of a Discord webhook request.
//
// This function checks the request's signature and timestamp headers to
// validate the request. The body is read for verification, and replaced
// so later handlers can read it again.
func verifyRequest(r *http.Request, key ed25519.PublicKey) bool {
	if len(key) != ed25519.PublicKeySize {
		return false
	}

	signature := r.Header.Get("X-Signature-Ed25519")
	if signature == "" {
		return false
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	if len(sig) != ed25519.SignatureSize || sig[63]&224 != 0 {
		return false
	}

	timestamp := r.Header.Get("X-Signature-Timestamp")
	if timestamp == "" {
		return false
	}

	var msg bytes.Buffer
	msg.WriteString(timestamp)

	var body bytes.Buffer
	defer func() {
		_ = r.Body.Close()
		r.Body = io.NopCloser(&body)
	}()

	if _, err = io.Copy(&msg, io.TeeReader(r.Body, &body)); err != nil {
		return false
	}
	return ed25519.Verify(key, msg.Bytes(), sig)
}
