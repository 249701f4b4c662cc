package solar

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const (
	keepAliveRoot    = "/"
	keepAliveHealthz = "/healthz"

	keepAliveMessage = "I'm alive"
)

// KeepAliveServer answers uptime monitors, so hosts that idle inactive
// processes keep the bot running
type KeepAliveServer struct {
	*ginServer
}

type healthStatus struct {
	Status           string `json:"status"`
	DiscordConnected bool   `json:"discord_connected"`
	Uptime           string `json:"uptime"`
	Version          string `json:"version"`
}

func newKeepAliveServer(b *Bot, config *KeepAliveConfig) (*KeepAliveServer, error) {
	srv, err := newGinServer("keepalive", config.HTTPServerConfig, b.config.Development)
	if err != nil {
		return nil, err
	}
	srv.engine.Use(cors.New(config.CORS.GINConfig()))

	alive := func(c *gin.Context) {
		c.String(http.StatusOK, keepAliveMessage)
	}
	srv.engine.GET(keepAliveRoot, alive)
	srv.engine.HEAD(keepAliveRoot, alive)
	srv.engine.GET(
		keepAliveHealthz, func(c *gin.Context) {
			c.JSON(http.StatusOK, b.health())
		},
	)
	return &KeepAliveServer{ginServer: srv}, nil
}

func (b *Bot) health() healthStatus {
	status := healthStatus{
		Status:  "ok",
		Version: Version,
	}
	if b.discord != nil {
		status.DiscordConnected = b.discord.connected.Load()
	}
	if !b.startedAt.IsZero() {
		status.Uptime = time.Since(b.startedAt).Round(time.Second).String()
	}
	return status
}
