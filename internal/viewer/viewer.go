// Package viewer replays an orientation track to the browser over a
// websocket at capture pace.
package viewer

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/formcheck/formcheck/internal/correlate"
	"github.com/formcheck/formcheck/internal/httputil"
	"github.com/formcheck/formcheck/internal/monitoring"
	"github.com/formcheck/formcheck/internal/orientation"
	"github.com/formcheck/formcheck/internal/timeutil"
	"github.com/formcheck/formcheck/internal/units"
)

//go:embed static
var staticFiles embed.FS

// DefaultWindow is the rolling IQR window in frames.
const DefaultWindow = 100

// maxGap caps the pause between two frames so a capture gap does not stall
// the replay.
const maxGap = 2 * time.Second

// Frame is one replayed estimate. The IQR fields are absent until the
// rolling window has filled.
type Frame struct {
	Index    int      `json:"i"`
	Epoch    int64    `json:"t"`
	Roll     float64  `json:"roll"`
	Pitch    float64  `json:"pitch"`
	Yaw      float64  `json:"yaw"`
	RollIQR  *float64 `json:"roll_iqr,omitempty"`
	PitchIQR *float64 `json:"pitch_iqr,omitempty"`
}

// Summary describes the loaded track.
type Summary struct {
	Name     string    `json:"name"`
	Frames   int       `json:"frames"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration string    `json:"duration"`
	Window   int       `json:"window"`
	Speed    float64   `json:"speed"`
}

// Options tunes playback.
type Options struct {
	Clock  timeutil.Clock
	Speed  float64 // playback multiplier, 1 = real time
	Window int     // rolling IQR window in frames
	// Timezone is the reference zone the summary reports start and end
	// in. Empty keeps the track's own location.
	Timezone string
}

// Server serves the viewer page and the replay stream.
type Server struct {
	name   string
	frames []Frame
	est    []orientation.Estimate
	clock  timeutil.Clock
	speed  float64
	window int
	start  time.Time
	end    time.Time
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // local tool
}

// New prepares a replay of est. It fails when opts.Timezone is not a known
// zone.
func New(name string, est []orientation.Estimate, opts Options) (*Server, error) {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Timezone != "" && !units.IsTimezoneValid(opts.Timezone) {
		return nil, fmt.Errorf("viewer: unknown timezone %q", opts.Timezone)
	}
	s := &Server{name: name, est: est, clock: opts.Clock, speed: opts.Speed, window: opts.Window}
	s.frames = buildFrames(est, opts.Window)
	if len(est) > 0 {
		s.start, s.end = est[0].Time, est[len(est)-1].Time
		if opts.Timezone != "" {
			var err error
			if s.start, err = units.ConvertTime(s.start, opts.Timezone); err != nil {
				return nil, err
			}
			if s.end, err = units.ConvertTime(s.end, opts.Timezone); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func buildFrames(est []orientation.Estimate, window int) []Frame {
	roll := make([]float64, len(est))
	pitch := make([]float64, len(est))
	for i, e := range est {
		roll[i], pitch[i] = e.Roll, e.Pitch
	}
	rollIQR := correlate.RollingIQR(roll, window)
	pitchIQR := correlate.RollingIQR(pitch, window)

	out := make([]Frame, len(est))
	for i, e := range est {
		out[i] = Frame{
			Index:    i,
			Epoch:    e.Time.UnixMilli(),
			Roll:     e.Roll,
			Pitch:    e.Pitch,
			Yaw:      e.Yaw,
			RollIQR:  finite(rollIQR[i]),
			PitchIQR: finite(pitchIQR[i]),
		}
	}
	return out
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Summary describes the track being served.
func (s *Server) Summary() Summary {
	sum := Summary{Name: s.name, Frames: len(s.est), Window: s.window, Speed: s.speed}
	if len(s.est) > 0 {
		sum.Start, sum.End = s.start, s.end
		sum.Duration = sum.End.Sub(sum.Start).String()
	}
	return sum
}

// ServeMux routes the page, the summary endpoint and the replay socket.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	mux.Handle("/", http.FileServer(http.FS(sub)))
	mux.HandleFunc("/api/summary", s.showSummary)
	mux.HandleFunc("/ws", s.replayHandler)
	return mux
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.Summary())
}

// Replay sends every frame in order, pausing between frames for the
// capture interval divided by the playback speed. It stops early when ctx
// is done or send fails.
func (s *Server) Replay(ctx context.Context, send func(Frame) error) error {
	for i, f := range s.frames {
		if i > 0 {
			if err := s.wait(ctx, s.est[i].Time.Sub(s.est[i-1].Time)); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := send(f); err != nil {
			return err
		}
	}
	return nil
}

// wait pauses for a capture gap scaled by the playback speed, returning
// early when ctx is done.
func (s *Server) wait(ctx context.Context, gap time.Duration) error {
	gap = min(gap, maxGap)
	if gap <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(time.Duration(float64(gap) / s.speed)):
		return nil
	}
}

func (s *Server) replayHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Warnf("viewer: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// The client never sends; reading only detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = s.Replay(ctx, func(f Frame) error { return conn.WriteJSON(f) })
	switch {
	case err == nil:
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end of track"))
	case errors.Is(err, context.Canceled):
		monitoring.Debugf("viewer: client left")
	default:
		monitoring.Debugf("viewer: replay stopped: %v", err)
	}
}

// Serve runs handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	monitoring.Logf("viewer listening on %s", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Warnf("viewer shutdown: %v", err)
		return server.Close()
	}
	return nil
}
