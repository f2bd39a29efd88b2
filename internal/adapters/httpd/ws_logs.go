package httpd

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/app"
	"github.com/calldeck/calldeck/internal/core"
)

// LogsWSController serves /ws/logs. Full snapshots are sent only when
// the client asks with the literal get_logs token; appends fan out as
// payload-free log_update triggers so slow clients fetch at their own
// pace.
type LogsWSController struct {
	Steps *app.StepLog
}

func (ctl *LogsWSController) HandleLogs(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws_logs").Msg("ws upgrade")
		return
	}
	conn := newWSConn(ws)
	ctx, cancel := context.WithCancel(ctx)

	updates, unsubscribe := ctl.Steps.Subscribe()

	go conn.writePump(ctx, "adapters.ws_logs")
	go ctl.notifyPump(ctx, conn, updates)
	go ctl.readPump(ctx, conn, func() {
		unsubscribe()
		cancel()
	})
}

func (ctl *LogsWSController) notifyPump(ctx context.Context, conn *wsConn, updates <-chan struct{}) {
	trigger, err := core.Envelope{Type: core.MsgLogUpdate}.Encode()
	if err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			_ = conn.TrySend(trigger)
		}
	}
}

func (ctl *LogsWSController) readPump(ctx context.Context, conn *wsConn, cleanup func()) {
	defer func() {
		cleanup()
		conn.Close()
		log.Info().Str("module", "adapters.ws_logs").Msg("readPump closing")
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
			if string(data) == core.LogRequestToken {
				ctl.sendSnapshot(conn)
			}
		}
	}
}

func (ctl *LogsWSController) sendSnapshot(conn *wsConn) {
	frame, err := core.Envelope{Type: core.MsgAllLogs, Logs: ctl.Steps.Snapshot()}.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws_logs").Msg("encode snapshot")
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws_logs").Msg("snapshot send failed")
	}
}
