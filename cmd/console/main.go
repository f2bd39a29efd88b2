package main

import (
	"bufio"
	"context"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/adapters/push"
	"github.com/calldeck/calldeck/internal/adapters/restc"
	"github.com/calldeck/calldeck/internal/adapters/signal"
	"github.com/calldeck/calldeck/internal/adapters/term"
	"github.com/calldeck/calldeck/internal/app/call"
	"github.com/calldeck/calldeck/internal/app/logstream"
	"github.com/calldeck/calldeck/internal/app/presence"
	"github.com/calldeck/calldeck/internal/app/visual"
	"github.com/calldeck/calldeck/internal/config"
	"github.com/calldeck/calldeck/internal/core"
)

// wsBase rewrites the HTTP origin into its websocket counterpart.
func wsBase(serverURL string) string {
	if rest, ok := strings.CutPrefix(serverURL, "https://"); ok {
		return "wss://" + rest
	}
	if rest, ok := strings.CutPrefix(serverURL, "http://"); ok {
		return "ws://" + rest
	}
	return serverURL
}

func main() {
	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	username := cfg.Username
	if len(os.Args) > 1 {
		username = os.Args[1]
	}
	if username == "" {
		log.Fatal().Msg("no username; pass one as the first argument or set it in config")
	}

	client := restc.New(cfg.ServerURL)
	render := term.NewRenderer(os.Stdout)

	loop := core.NewLoop()
	go loop.Run(ctx)

	sync := presence.NewSync(client, render)
	sync.HeartbeatEvery = cfg.HeartbeatInterval
	sync.PollEvery = cfg.RosterInterval

	if _, err := sync.Register(ctx, username); err != nil {
		log.Fatal().Err(err).Msg("registration failed")
	}
	sync.RefreshRoster(ctx)

	adapter := signal.New(wsBase(cfg.ServerURL), username)
	var ctrl *call.Controller
	viz := visual.NewVisualizer(render, func() bool { return ctrl.SessionAlive() })
	viz.FrameEvery = cfg.FrameInterval
	ctrl = call.NewController(adapter, render, render, render, viz)

	adapter.OnEvent(func(ev core.AdapterEvent) {
		loop.Post(func() { ctrl.HandleEvent(ev) })
	})
	if err := adapter.Start(ctx); err != nil {
		log.Error().Err(err).Msg("signaling connect failed")
	}

	logsURL := wsBase(cfg.ServerURL) + "/ws/logs"
	stream := logstream.NewStream(client, func(ctx context.Context) (logstream.PushChannel, error) {
		return push.Dial(ctx, logsURL)
	}, render, sync.Registered)
	stream.PollEvery = cfg.LogPollInterval
	stream.ReconnectDelay = cfg.ReconnectDelay
	stream.Start()

	go readCommands(ctx, cancel, loop, ctrl, sync, client)

	<-ctx.Done()
	ctrl.Hangup()
	adapter.Stop()
	sync.Logout()
	stream.Stop()
	log.Info().Msg("console exited")
}

func readCommands(ctx context.Context, cancel context.CancelFunc, loop *core.Loop, ctrl *call.Controller, sync *presence.Sync, client *restc.Client) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "call":
			if len(fields) < 2 {
				log.Warn().Msg("usage: call <username>")
				continue
			}
			target := fields[1]
			loop.Post(func() {
				if err := ctrl.PlaceCall(target); err != nil {
					log.Warn().Err(err).Msg("place call")
				}
			})
		case "a", "accept":
			loop.Post(func() {
				if err := ctrl.Accept(); err != nil {
					log.Warn().Err(err).Msg("accept")
				}
			})
		case "r", "reject":
			loop.Post(func() {
				if err := ctrl.Reject(); err != nil {
					log.Warn().Err(err).Msg("reject")
				}
			})
		case "h", "hangup":
			loop.Post(ctrl.Hangup)
		case "users":
			reqCtx, reqCancel := context.WithTimeout(ctx, 5*time.Second)
			sync.RefreshRoster(reqCtx)
			reqCancel()
		case "clear":
			reqCtx, reqCancel := context.WithTimeout(ctx, 5*time.Second)
			if err := client.ClearLogs(reqCtx); err != nil {
				log.Warn().Err(err).Msg("clear logs")
			}
			reqCancel()
		case "q", "quit":
			cancel()
			return
		default:
			log.Warn().Str("cmd", fields[0]).Msg("unknown command (call/accept/reject/hangup/users/clear/quit)")
		}
	}
	cancel()
}
