package solar

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	defaultLogWriter = io.Discard
	goleak.VerifyTestMain(
		m,
		// idle keep-alive connections of the API clients' transports
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		// sqlite pools opened by gorm
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
		// started when go.opencensus.io is loaded, via google.golang.org/api
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func waitForReady(t testing.TB, b *Bot, runErr <-chan error) {
	t.Helper()
	select {
	case <-b.signalReady:
	case err := <-runErr:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for bot to start")
	}
}

func TestBot_Run(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.KeepAlive.Enabled = true
	b, _, _, session := newTestBot(t, cfg, testHeader)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ln, err := b.keepAliveServer.Listen(ctx)
	require.NoError(t, err)
	addr := ln.Addr().String()

	runErr := make(chan error, 1)
	go func() {
		runErr <- b.Run(ctx)
	}()
	waitForReady(t, b, runErr)

	session.mu.Lock()
	assert.Equal(t, 1, session.opened)
	assert.Equal(t, 4, session.handlers)
	assert.Equal(t, cfg.Discord.GatewayIntents, session.identify.Intents)
	session.mu.Unlock()

	client := &http.Client{Transport: &http.Transport{}}
	t.Cleanup(client.CloseIdleConnections)
	resp, err := client.Get("http://" + addr + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, keepAliveMessage, string(body))
	client.CloseIdleConnections()

	cancel()
	select {
	case err = <-runErr:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for shutdown")
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	assert.Equal(t, 1, session.closed)
	assert.Equal(t, 0, session.handlers)
}

func TestBot_Run_OpenError(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.KeepAlive.Enabled = true
	b, _, _, session := newTestBot(t, cfg)
	session.openErr = errors.New("authentication failed")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := b.Run(ctx)
	var startupErr *StartupError
	require.ErrorAs(t, err, &startupErr)
	assert.Equal(t, "discord", startupErr.Component)

	select {
	case <-b.signalReady:
		t.Fatal("ready signaled after failed start")
	default:
	}
}

func TestBot_Run_OpensDatabaseStore(t *testing.T) {
	cfg := newTestConfig(t)
	b, err := New(cfg)
	require.NoError(t, err)

	completer := &mockCompleter{}
	b.completer = completer
	session := &mockDiscordSession{}
	b.discord.session = session

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- b.Run(ctx)
	}()
	waitForReady(t, b, runErr)

	require.IsType(t, &DatabaseStore{}, b.store)
	rows, err := b.store.ReadAllRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Time Left", "Time Returned", "", "Date"}}, rows)

	b.attendance.now = func() time.Time { return testNow }
	handler := newStubInteractionHandler(t, newCommandInteraction(DiscordSlashCommandLeft))
	b.handleInteraction(ctx, handler)
	assert.Equal(t, msgTimeLeftNewRow, waitForEdit(t, handler))

	cancel()
	select {
	case err = <-runErr:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for shutdown")
	}
}

func TestOpenStore_UnknownStore(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Attendance.Store = "csv"
	_, err := OpenStore(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownStore)
}
