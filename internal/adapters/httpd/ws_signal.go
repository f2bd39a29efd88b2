package httpd

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/app"
	"github.com/calldeck/calldeck/internal/core"
)

// SignalWSController attaches consoles to the switchboard over
// /ws/signal?username=<name>. The user must be registered first.
type SignalWSController struct {
	Switchboard *app.Switchboard
	Directory   *app.Directory
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	username := c.Query("username")
	if username == "" || !ctl.Directory.Known(username) {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "register first"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws_signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "adapters.ws_signal").Str("username", username).Msg("new WS connection")

	conn := newWSConn(ws)
	ctx, cancel := context.WithCancel(ctx)

	ctl.Switchboard.Attach(username, conn)

	go conn.writePump(ctx, "adapters.ws_signal")
	go ctl.readPump(ctx, username, conn, cancel)
}

func (ctl *SignalWSController) readPump(ctx context.Context, username string, conn *wsConn, cancel context.CancelFunc) {
	defer func() {
		log.Info().Str("module", "adapters.ws_signal").Str("username", username).Msg("readPump closing")
		ctl.Switchboard.Detach(username, conn)
		cancel()
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := conn.conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := core.DecodeEnvelope(data)
			if err != nil {
				log.Error().Err(err).Str("module", "adapters.ws_signal").Msg("bad json")
				continue
			}
			ctl.Switchboard.Route(username, env)
		}
	}
}
