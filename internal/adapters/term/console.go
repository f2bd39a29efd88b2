// Package term is the operator-facing rendering surface: a thin
// projection of view-model state onto the terminal. No orchestration
// logic lives here.
package term

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

var bars = []rune(" ▁▂▃▄▅▆▇█")

// Renderer implements every view sink the orchestration layer consumes.
type Renderer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

func (r *Renderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *Renderer) SetStatus(text string) {
	r.printf("== %s ==\n", text)
}

func (r *Renderer) ShowIncoming(peer string) {
	r.printf(">> incoming call from %s  [a]ccept / [r]eject\n", peer)
}

func (r *Renderer) ShowActive(peer string) {
	r.printf(">> call: %s\n", peer)
}

func (r *Renderer) SetCallStatus(text string) {
	r.printf(">> %s\n", text)
}

func (r *Renderer) SetElapsed(text string) {
	r.printf("\r   %s ", text)
}

func (r *Renderer) Clear() {
	r.printf("\n>> call over\n")
}

func (r *Renderer) RenderRoster(users []domain.User) {
	if len(users) == 0 {
		r.printf("-- no other users online --\n")
		return
	}
	var b strings.Builder
	for _, u := range users {
		fmt.Fprintf(&b, "  %-16s %s:%d\n", u.Username, u.InternalIP, u.SIPPort)
	}
	r.printf("-- users --\n%s", b.String())
}

func (r *Renderer) RenderLogs(entries []domain.LogEntry) {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "  [%s] %s", e.Timestamp.Format("15:04:05"), e.Step)
		for k, v := range e.Details {
			fmt.Fprintf(&b, " %s=%s", k, v)
		}
		b.WriteByte('\n')
	}
	r.printf("-- logs (%d) --\n%s", len(entries), b.String())
}

func (r *Renderer) SetChannelState(state domain.ConnectionState) {
	r.printf("-- push channel: %s --\n", state)
}

// RenderFrame draws one amplitude frame as a bar strip.
func (r *Renderer) RenderFrame(levels []byte) {
	var b strings.Builder
	for _, v := range levels {
		b.WriteRune(bars[int(v)*(len(bars)-1)/255])
	}
	r.printf("\r%s", b.String())
}

// Bind is the playback stub: the console has no audio device wiring,
// so inbound media is acknowledged rather than played.
func (r *Renderer) Bind(src core.MediaSource) {
	log.Info().Str("module", "adapters.term").Msg("audio playback bound")
}

func (r *Renderer) Unbind() {
	log.Info().Str("module", "adapters.term").Msg("audio playback unbound")
}
