package solar

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLeftInteraction = `{
	"id": "test-interaction-id",
	"application_id": "test-app-id",
	"type": 2,
	"token": "test-interaction-token",
	"guild_id": "test-guild-id",
	"channel_id": "test-channel-id",
	"member": {"user": {"id": "test-user-id", "username": "hamster"}},
	"data": {"id": "left-id", "name": "left", "type": 1}
}`

type webhookTestServer struct {
	bot        *Bot
	store      *memTableStore
	server     *DiscordWebhookServer
	privateKey ed25519.PrivateKey
	handlers   chan stubInteractionHandler
}

func newWebhookTestServer(t testing.TB, rows ...[]string) *webhookTestServer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	cfg := newTestConfig(t)
	cfg.Discord.WebhookServer.Enabled = true
	cfg.Discord.WebhookServer.Listen = "127.0.0.1:0"
	cfg.Discord.WebhookServer.PublicKey = hex.EncodeToString(pub)

	b, store, _, _ := newTestBot(t, cfg, rows...)

	// edits are sent to a stub, while the initial response is still
	// written by the webhook handler
	handlers := make(chan stubInteractionHandler, 10)
	b.getInteractionHandlerFunc = func(
		_ context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler {
		h := newStubInteractionHandler(t, i)
		handlers <- h
		return h
	}

	srv, err := newWebhookServer(context.Background(), b, cfg.Discord.WebhookServer)
	require.NoError(t, err)

	return &webhookTestServer{
		bot:        b,
		store:      store,
		server:     srv,
		privateKey: priv,
		handlers:   handlers,
	}
}

func (w *webhookTestServer) signedRequest(t testing.TB, body string) *http.Request {
	t.Helper()
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig := ed25519.Sign(w.privateKey, []byte(timestamp+body))

	req := httptest.NewRequest(http.MethodPost, apiDiscordInteractions, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(sig))
	req.Header.Set("X-Signature-Timestamp", timestamp)
	return req
}

func (w *webhookTestServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	w.server.engine.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_Command(t *testing.T) {
	w := newWebhookTestServer(t, testHeader, []string{"", "", "", "", ""})

	rec := w.do(w.signedRequest(t, testLeftInteraction))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(xRequestIDHeader))
	assert.True(t, rec.Flushed, "ack should be flushed before the command runs")
	assert.Equal(t, strconv.Itoa(rec.Body.Len()), rec.Header().Get("Content-Length"))

	var ack discordgo.InteractionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, ack.Type)
	require.NotNil(t, ack.Data)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, ack.Data.Flags)

	var handler stubInteractionHandler
	select {
	case handler = <-w.handlers:
	default:
		t.Fatal("no interaction handler created")
	}
	assert.Equal(t, "⏱️ Time left logged in row 2", waitForEdit(t, handler))
	assert.Empty(t, handler.callRespond, "ack should be written by the webhook handler")

	w.bot.interactionWG.Wait()
	assert.Equal(t, "09:15:00", w.store.snapshot()[1][ColumnTimeLeft])
}

func TestWebhook_Ping(t *testing.T) {
	w := newWebhookTestServer(t)

	rec := w.do(w.signedRequest(t, `{"id": "ping-id", "type": 1}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp discordgo.InteractionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, discordgo.InteractionResponsePong, resp.Type)
}

func TestWebhook_Ignored(t *testing.T) {
	w := newWebhookTestServer(t, testHeader)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(testLeftInteraction), &body))
	body["member"].(map[string]any)["user"].(map[string]any)["bot"] = true
	data, err := json.Marshal(body)
	require.NoError(t, err)

	rec := w.do(w.signedRequest(t, string(data)))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	w.bot.interactionWG.Wait()
	assert.Empty(t, w.store.appends)
}

func TestWebhook_BadRequests(t *testing.T) {
	w := newWebhookTestServer(t)

	t.Run(
		"unsigned", func(t *testing.T) {
			req := httptest.NewRequest(
				http.MethodPost,
				apiDiscordInteractions,
				bytes.NewBufferString(testLeftInteraction),
			)
			rec := w.do(req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		},
	)

	t.Run(
		"tampered", func(t *testing.T) {
			req := w.signedRequest(t, testLeftInteraction)
			req.Body = io.NopCloser(bytes.NewBufferString(`{"type": 1}`))
			rec := w.do(req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		},
	)

	t.Run(
		"invalid json", func(t *testing.T) {
			rec := w.do(w.signedRequest(t, `{"type": `))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		},
	)

	t.Run(
		"wrong method", func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, apiDiscordInteractions, nil)
			rec := w.do(req)
			assert.Equal(t, http.StatusNotFound, rec.Code)
		},
	)

	assert.Empty(t, w.handlers)
}

func TestVerifyRequest(t *testing.T) {
	t.Parallel()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	body := `{"type": 1}`
	timestamp := "1717248900"
	sig := hex.EncodeToString(ed25519.Sign(priv, []byte(timestamp+body)))

	newReq := func(sig string, timestamp string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
		req.Header.Set("X-Signature-Ed25519", sig)
		req.Header.Set("X-Signature-Timestamp", timestamp)
		return req
	}

	req := newReq(sig, timestamp)
	assert.True(t, verifyRequest(req, pub))
	restored, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(restored))

	assert.False(t, verifyRequest(newReq(sig, "1717248901"), pub))
	assert.False(t, verifyRequest(newReq("", timestamp), pub))
	assert.False(t, verifyRequest(newReq(sig, ""), pub))
	assert.False(t, verifyRequest(newReq("zz", timestamp), pub))
	assert.False(t, verifyRequest(newReq(sig[:64], timestamp), pub))
	assert.False(t, verifyRequest(newReq(sig, timestamp), pub[:16]))

	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	assert.False(t, verifyRequest(newReq(sig, timestamp), otherPub))
}
