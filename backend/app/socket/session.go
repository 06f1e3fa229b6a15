package socket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/GluM1262/remoteshell-manager/protocol"
)

const writeTimeout = 15 * time.Second

// Router receives agent frames that carry a command correlation.
// Implemented by queue.Engine.
type Router interface {
	Resolve(agentID string, frame protocol.Frame)
}

// Session is one live socket to one agent. The read loop runs on the
// handler goroutine; writes are serialized by writeMu so the dispatch
// loop, the ping loop, and pong replies never interleave a frame.
type Session struct {
	id      string
	agentID string
	conn    *websocket.Conn
	router  Router
	log     zerolog.Logger

	pingInterval time.Duration
	writeMu      sync.Mutex
	lastRecv     atomic.Int64
	closed       chan struct{}
	closeOnce    sync.Once
	parseErrors  atomic.Int64
}

func NewSession(agentID string, conn *websocket.Conn, router Router, pingInterval time.Duration, log zerolog.Logger) *Session {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	id := uuid.NewString()
	s := &Session{
		id:           id,
		agentID:      agentID,
		conn:         conn,
		router:       router,
		pingInterval: pingInterval,
		closed:       make(chan struct{}),
		log:          log.With().Str("agent_id", agentID).Str("session_id", id[:8]).Logger(),
	}
	s.lastRecv.Store(time.Now().UnixNano())
	return s
}

func (s *Session) ID() string      { return s.id }
func (s *Session) AgentID() string { return s.agentID }

func (s *Session) write(f protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// SendCommand dispatches one command frame to the agent.
func (s *Session) SendCommand(cmd protocol.Command) error {
	return s.write(cmd)
}

// SendCancelHint tells the agent the coordinator gave up on a command.
// Best effort: the agent's own deadline already bounds the work.
func (s *Session) SendCancelHint(commandID string) {
	if err := s.write(protocol.Cancel{CommandID: commandID}); err != nil {
		s.log.Debug().Err(err).Str("command_id", commandID).Msg("cancel hint not delivered")
	}
}

// SendWelcome echoes the effective policy once at activation.
func (s *Session) SendWelcome(w protocol.Welcome) error {
	return s.write(w)
}

// Run owns the read side until the socket dies. It returns after the
// peer closes, liveness is lost, or the session is closed from the
// coordinator side.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.pingLoop(ctx)

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.log.Info().Err(err).Msg("session read ended")
			return
		}
		s.lastRecv.Store(time.Now().UnixNano())

		frame, err := protocol.Decode(data)
		if err != nil {
			// One bad frame is not worth a session; count and move on.
			s.parseErrors.Add(1)
			s.log.Warn().Err(err).Msg("frame dropped")
			continue
		}
		switch frame.(type) {
		case protocol.Result, protocol.Error:
			s.router.Resolve(s.agentID, frame)
		case protocol.Ping:
			if err := s.write(protocol.Pong{}); err != nil {
				s.log.Debug().Err(err).Msg("pong write failed")
			}
		case protocol.Pong:
			// lastRecv already refreshed above.
		default:
			s.log.Warn().Str("frame", "unexpected").Msg("frame from agent dropped")
		}
	}
}

func (s *Session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case <-ticker.C:
			idle := time.Since(time.Unix(0, s.lastRecv.Load()))
			if idle > 2*s.pingInterval {
				s.log.Warn().Dur("idle", idle).Msg("liveness lost")
				s.Close(protocol.CloseLivenessLost, "liveness_lost")
				return
			}
			if err := s.write(protocol.Ping{}); err != nil {
				s.log.Debug().Err(err).Msg("ping write failed")
			}
		}
	}
}

// Close terminates the socket with the given close code. Idempotent;
// the read loop unblocks with an error shortly after.
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close(websocket.StatusCode(code), reason)
	})
}

func (s *Session) CloseGraceful() {
	s.Close(protocol.CloseGraceful, "coordinator shutdown")
}

// ParseErrors reports how many malformed frames this session dropped.
func (s *Session) ParseErrors() int64 {
	return s.parseErrors.Load()
}
