// Package connection maintains the agent's single persistent session
// to the coordinator: dial with capped backoff, frame handling, keep
// alive, and command execution hand-off.
package connection

import (
	"context"
	"crypto/tls"
	"math/rand"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/GluM1262/remoteshell-manager/agent/internal/config"
	"github.com/GluM1262/remoteshell-manager/agent/internal/executor"
	"github.com/GluM1262/remoteshell-manager/protocol"
)

type Manager struct {
	cfg  *config.Config
	exec *executor.Executor
	log  zerolog.Logger

	writeMu  sync.Mutex
	conn     *websocket.Conn
	lastSend time.Time
}

func New(cfg *config.Config, exec *executor.Executor, log zerolog.Logger) *Manager {
	return &Manager{cfg: cfg, exec: exec, log: log}
}

// Run keeps exactly one live session until the context ends. Reconnect
// delay doubles from the configured floor to the cap, with jitter so a
// coordinator restart does not get the whole fleet back in lockstep.
func (m *Manager) Run(ctx context.Context) {
	initial := time.Duration(m.cfg.ReconnectInitialMS) * time.Millisecond
	if initial <= 0 {
		initial = time.Second
	}
	ceiling := time.Duration(m.cfg.ReconnectCapMS) * time.Millisecond
	if ceiling < initial {
		ceiling = 60 * time.Second
	}

	delay := initial
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		attempt++
		m.log.Info().Int("attempt", attempt).Msg("connecting to coordinator")

		conn, err := m.dial(ctx)
		if err == nil {
			m.log.Info().Msg("connected to coordinator")
			delay, attempt = initial, 0
			m.serve(ctx, conn)
			m.log.Warn().Msg("session ended")
		} else {
			m.log.Error().Err(err).Msg("connect failed")
		}

		jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay + jitter):
		}
		delay *= 2
		if delay > ceiling {
			delay = ceiling
		}
	}
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	header := http.Header{}
	if hostname, err := os.Hostname(); err == nil {
		header.Set("X-Agent-Hostname", hostname)
	}
	header.Set("X-Agent-Os", runtime.GOOS)
	header.Set("X-Agent-Arch", runtime.GOARCH)

	opts := &websocket.DialOptions{HTTPHeader: header}
	if !m.cfg.ValidateTLS {
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}

	conn, _, err := websocket.Dial(dialCtx, m.cfg.SocketURL()+"?token="+m.cfg.Token, opts)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

func (m *Manager) write(f protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if m.conn == nil {
		return context.Canceled
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := m.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return err
	}
	m.lastSend = time.Now()
	return nil
}

func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) {
	m.writeMu.Lock()
	m.conn = conn
	m.lastSend = time.Now()
	m.writeMu.Unlock()

	serveCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		m.writeMu.Lock()
		m.conn = nil
		m.writeMu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "reconnecting")
	}()

	go m.quietPingLoop(serveCtx)

	for {
		_, data, err := conn.Read(serveCtx)
		if err != nil {
			m.log.Info().Err(err).Msg("socket read ended")
			return
		}
		frame, err := protocol.Decode(data)
		if err != nil {
			m.log.Warn().Err(err).Msg("frame dropped")
			continue
		}
		switch f := frame.(type) {
		case protocol.Welcome:
			m.log.Info().
				Str("agent_id", f.AgentID).
				Bool("allow_list", f.AllowListEnabled).
				Int("max_timeout_s", f.MaxTimeoutSeconds).
				Msg("session active, coordinator policy received")
		case protocol.Command:
			go m.handleCommand(f)
		case protocol.Ping:
			if err := m.write(protocol.Pong{}); err != nil {
				m.log.Debug().Err(err).Msg("pong write failed")
			}
		case protocol.Pong:
		case protocol.Cancel:
			// Execution interruption is not supported; the local
			// deadline already bounds the work.
			m.log.Info().Str("command_id", f.CommandID).Msg("cancel hint received")
		default:
			m.log.Warn().Msg("unexpected frame dropped")
		}
	}
}

// quietPingLoop sends a ping when nothing has gone out for a full ping
// interval, so an idle session still proves liveness both ways.
func (m *Manager) quietPingLoop(ctx context.Context) {
	interval := time.Duration(m.cfg.PingIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.writeMu.Lock()
			quiet := time.Since(m.lastSend)
			m.writeMu.Unlock()
			if quiet >= interval {
				if err := m.write(protocol.Ping{}); err != nil {
					m.log.Debug().Err(err).Msg("ping write failed")
				}
			}
		}
	}
}

// handleCommand re-validates against the local policy (defense in
// depth), runs the process, and reports the envelope back.
func (m *Manager) handleCommand(cmd protocol.Command) {
	m.log.Info().Str("command_id", cmd.CommandID).Msg("command received")

	if err := m.cfg.Policy.Validate(cmd.Command); err != nil {
		m.log.Warn().Err(err).Str("command_id", cmd.CommandID).Msg("command rejected by local policy")
		if werr := m.write(protocol.Error{CommandID: cmd.CommandID, Error: "rejected by agent policy: " + err.Error()}); werr != nil {
			m.log.Error().Err(werr).Str("command_id", cmd.CommandID).Msg("error frame not delivered")
		}
		return
	}

	timeout := time.Duration(m.cfg.Policy.ClampTimeout(cmd.Timeout)) * time.Second
	res, err := m.exec.Run(cmd.Command, timeout)
	if err != nil {
		m.log.Error().Err(err).Str("command_id", cmd.CommandID).Msg("spawn failed")
		if werr := m.write(protocol.Error{CommandID: cmd.CommandID, Error: "spawn failed: " + err.Error()}); werr != nil {
			m.log.Error().Err(werr).Str("command_id", cmd.CommandID).Msg("error frame not delivered")
		}
		return
	}

	m.log.Info().
		Str("command_id", cmd.CommandID).
		Int("exit_code", res.ExitCode).
		Bool("timed_out", res.TimedOut).
		Msg("command finished")

	if err := m.write(protocol.Result{
		CommandID:     cmd.CommandID,
		Stdout:        res.Stdout,
		Stderr:        res.Stderr,
		ExitCode:      res.ExitCode,
		ExecutionTime: res.ExecutionTime,
	}); err != nil {
		m.log.Error().Err(err).Str("command_id", cmd.CommandID).Msg("result not delivered")
	}
}
