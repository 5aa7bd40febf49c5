package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/assessment-engine/internal/integrity"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ErrProctorDisconnected is returned for commands on a closed channel
var ErrProctorDisconnected = errors.New("proctor channel disconnected")

// Proctor channel commands sent to the browser
const (
	CommandEnterFullscreen = "enter_fullscreen"
	CommandExitFullscreen  = "exit_fullscreen"
	CommandAcquireMedia    = "acquire_media"
	CommandReleaseMedia    = "release_media"
)

// ProctorMessage is one frame on the proctor channel. The server sends
// commands and the browser answers with replies carrying the same id.
// Signals flow from the browser unprompted.
type ProctorMessage struct {
	Type    string `json:"type"` // connected | command | reply | signal
	ID      string `json:"id,omitempty"`
	Command string `json:"command,omitempty"`
	Audio   bool   `json:"audio,omitempty"`
	Video   bool   `json:"video,omitempty"`
	OK      bool   `json:"ok,omitempty"`
	Error   string `json:"error,omitempty"`
	Signal  string `json:"signal,omitempty"`
}

// signalBuffer bounds undelivered signals. One breach is enough to
// terminate, so extra signals are dropped instead of blocking the reader.
const signalBuffer = 8

// ProctorHub tracks the proctor channel of each connected participant
type ProctorHub struct {
	mu           sync.Mutex
	envs         map[string]*wsEnvironment
	replyTimeout time.Duration
}

// NewProctorHub creates an empty hub
func NewProctorHub(replyTimeout time.Duration) *ProctorHub {
	if replyTimeout <= 0 {
		replyTimeout = 15 * time.Second
	}
	return &ProctorHub{
		envs:         make(map[string]*wsEnvironment),
		replyTimeout: replyTimeout,
	}
}

// Environment returns the participant's connected proctor channel
func (h *ProctorHub) Environment(owner string) (integrity.Environment, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	env, ok := h.envs[owner]
	if !ok || env.closed() {
		return nil, false
	}
	return env, true
}

// Connected returns how many proctor channels are open
func (h *ProctorHub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.envs)
}

// register attaches env unless the owner already has an open channel.
// An open channel may back an armed monitor and is never replaced.
func (h *ProctorHub) register(owner string, env *wsEnvironment) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.envs[owner]; ok && !prev.closed() {
		return false
	}
	h.envs[owner] = env
	return true
}

func (h *ProctorHub) unregister(owner string, env *wsEnvironment) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.envs[owner] == env {
		delete(h.envs, owner)
	}
}

func (s *Server) handleProctorWS(w http.ResponseWriter, r *http.Request) {
	p, ok := ParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	if _, open := s.proctors.Environment(p.ID); open {
		http.Error(w, "proctor channel already connected", http.StatusConflict)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	env := newWSEnvironment(conn, s.proctors.replyTimeout)
	if !s.proctors.register(p.ID, env) {
		slog.Warn("rejecting duplicate proctor channel", "participant", p.ID)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "proctor channel already connected"))
		return
	}
	defer s.proctors.unregister(p.ID, env)

	slog.Info("proctor channel connected", "participant", p.ID)

	if err := env.send(ProctorMessage{Type: "connected"}); err != nil {
		return
	}

	env.readLoop()
	slog.Info("proctor channel disconnected", "participant", p.ID)
}

// wsEnvironment is an integrity.Environment driven by a browser over a
// WebSocket. A disconnect closes the signal channel, which terminates an
// armed monitor.
type wsEnvironment struct {
	conn         *websocket.Conn
	replyTimeout time.Duration

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan ProctorMessage

	signals   chan integrity.Signal
	done      chan struct{}
	closeOnce sync.Once
}

func newWSEnvironment(conn *websocket.Conn, replyTimeout time.Duration) *wsEnvironment {
	return &wsEnvironment{
		conn:         conn,
		replyTimeout: replyTimeout,
		pending:      make(map[string]chan ProctorMessage),
		signals:      make(chan integrity.Signal, signalBuffer),
		done:         make(chan struct{}),
	}
}

func (e *wsEnvironment) RequestFullscreen(ctx context.Context) error {
	return e.command(ctx, ProctorMessage{Command: CommandEnterFullscreen})
}

func (e *wsEnvironment) ExitFullscreen(ctx context.Context) error {
	return e.command(ctx, ProctorMessage{Command: CommandExitFullscreen})
}

func (e *wsEnvironment) AcquireMedia(ctx context.Context, c integrity.Constraints) (integrity.MediaStream, error) {
	if err := e.command(ctx, ProctorMessage{Command: CommandAcquireMedia, Audio: c.Audio, Video: c.Video}); err != nil {
		return nil, err
	}
	return &wsMediaStream{env: e}, nil
}

func (e *wsEnvironment) Signals() <-chan integrity.Signal {
	return e.signals
}

func (e *wsEnvironment) closed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// command sends a command and waits for the matching reply
func (e *wsEnvironment) command(ctx context.Context, msg ProctorMessage) error {
	if e.closed() {
		return ErrProctorDisconnected
	}

	msg.Type = "command"
	msg.ID = strconv.FormatUint(e.nextID.Add(1), 10)

	reply := make(chan ProctorMessage, 1)
	e.mu.Lock()
	e.pending[msg.ID] = reply
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.pending, msg.ID)
		e.mu.Unlock()
	}()

	if err := e.send(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Command, err)
	}

	timer := time.NewTimer(e.replyTimeout)
	defer timer.Stop()

	select {
	case r := <-reply:
		if !r.OK {
			if r.Error != "" {
				return fmt.Errorf("%s refused: %s", msg.Command, r.Error)
			}
			return fmt.Errorf("%s refused", msg.Command)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%s: no reply within %v", msg.Command, e.replyTimeout)
	case <-e.done:
		return ErrProctorDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notify sends a command without waiting for its reply
func (e *wsEnvironment) notify(msg ProctorMessage) {
	if e.closed() {
		return
	}
	msg.Type = "command"
	msg.ID = strconv.FormatUint(e.nextID.Add(1), 10)
	if err := e.send(msg); err != nil {
		slog.Debug("failed to send proctor notification", "command", msg.Command, "error", err)
	}
}

func (e *wsEnvironment) send(msg ProctorMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal proctor message", "error", err)
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send proctor message", "error", err)
		return err
	}
	return nil
}

// readLoop dispatches replies and signals until the connection closes
func (e *wsEnvironment) readLoop() {
	defer e.close()

	for {
		_, data, err := e.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("proctor read error", "error", err)
			}
			return
		}

		var msg ProctorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("invalid proctor message format", "error", err)
			continue
		}

		switch msg.Type {
		case "reply":
			e.mu.Lock()
			reply, ok := e.pending[msg.ID]
			e.mu.Unlock()
			if ok {
				select {
				case reply <- msg:
				default:
				}
			}
		case "signal":
			sig := integrity.Signal(msg.Signal)
			if sig.Reason() == "" {
				slog.Debug("unknown proctor signal", "signal", msg.Signal)
				continue
			}
			select {
			case e.signals <- sig:
			default:
				slog.Debug("proctor signal dropped", "signal", msg.Signal)
			}
		}
	}
}

func (e *wsEnvironment) close() {
	e.closeOnce.Do(func() {
		close(e.done)
		close(e.signals)
	})
}

// wsMediaStream releases the browser's camera and microphone
type wsMediaStream struct {
	env  *wsEnvironment
	once sync.Once
}

func (m *wsMediaStream) Stop() {
	m.once.Do(func() {
		m.env.notify(ProctorMessage{Command: CommandReleaseMedia})
	})
}
