// Package queue owns the per-agent command queues: ordered pending
// commands, in-flight waiters, and the dispatch loop that drains a
// queue into its bound session. All mutations of one agent's state are
// serialized by that agent's lock; the only thing held across a store
// call is that per-agent serializer.
package queue

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/GluM1262/remoteshell-manager/backend/app/models"
	"github.com/GluM1262/remoteshell-manager/backend/app/repo"
	"github.com/GluM1262/remoteshell-manager/policy"
	"github.com/GluM1262/remoteshell-manager/protocol"
)

var (
	ErrQueueFull         = errors.New("queue full")
	ErrAlreadyDispatched = errors.New("already dispatched")
	ErrNotFound          = errors.New("not in queue")
)

// Grace added on top of a command's timeout before the coordinator
// declares it dead on its own authority.
const DefaultGrace = 5 * time.Second

// Session is the slice of a live agent connection the engine needs.
// Implemented by socket.Session.
type Session interface {
	ID() string
	SendCommand(cmd protocol.Command) error
	SendCancelHint(commandID string)
}

type waiter struct {
	cmd   *models.Command
	timer *time.Timer
}

type agentQueue struct {
	mu       sync.Mutex
	agentID  string
	pending  []*models.Command
	inflight map[string]*waiter
	session  Session
	wake     chan struct{}
	running  bool
}

func (aq *agentQueue) signal() {
	select {
	case aq.wake <- struct{}{}:
	default:
	}
}

// Engine routes submissions into per-agent queues and drains them.
type Engine struct {
	mu     sync.Mutex
	agents map[string]*agentQueue

	store        *repo.CommandRepository
	pol          func() policy.Policy
	log          zerolog.Logger
	maxQueueSize int
	grace        time.Duration

	lateDrops  atomic.Int64
	stopped    atomic.Bool
	storeRetry time.Duration
}

func NewEngine(store *repo.CommandRepository, pol func() policy.Policy, maxQueueSize int, log zerolog.Logger) *Engine {
	if maxQueueSize <= 0 {
		maxQueueSize = 1000
	}
	return &Engine{
		agents:       make(map[string]*agentQueue),
		store:        store,
		pol:          pol,
		log:          log,
		maxQueueSize: maxQueueSize,
		grace:        DefaultGrace,
		storeRetry:   time.Second,
	}
}

func (e *Engine) queueFor(agentID string) *agentQueue {
	e.mu.Lock()
	defer e.mu.Unlock()
	aq, ok := e.agents[agentID]
	if !ok {
		aq = &agentQueue{
			agentID:  agentID,
			inflight: make(map[string]*waiter),
			wake:     make(chan struct{}, 1),
		}
		e.agents[agentID] = aq
	}
	return aq
}

// insertOrdered keeps pending sorted by (-priority, created_at).
func insertOrdered(pending []*models.Command, cmd *models.Command) []*models.Command {
	i := sort.Search(len(pending), func(i int) bool {
		p := pending[i]
		if p.Priority != cmd.Priority {
			return p.Priority < cmd.Priority
		}
		return p.CreatedAt.After(cmd.CreatedAt)
	})
	pending = append(pending, nil)
	copy(pending[i+1:], pending[i:])
	pending[i] = cmd
	return pending
}

// Submit validates, persists, and enqueues one command. The returned
// row carries the assigned command_id and the effective (clamped)
// timeout. Validation failures surface as *policy.Rejection with
// nothing written anywhere.
func (e *Engine) Submit(agentID, command string, timeoutSeconds, priority int) (*models.Command, error) {
	pol := e.pol()
	if err := pol.Validate(command); err != nil {
		return nil, err
	}

	aq := e.queueFor(agentID)
	aq.mu.Lock()
	defer aq.mu.Unlock()

	if len(aq.pending) >= e.maxQueueSize {
		return nil, ErrQueueFull
	}

	cmd := &models.Command{
		CommandID:      uuid.NewString(),
		AgentID:        agentID,
		Command:        command,
		TimeoutSeconds: pol.ClampTimeout(timeoutSeconds),
		Priority:       priority,
		Status:         models.StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.store.Insert(cmd); err != nil {
		return nil, err
	}
	aq.pending = insertOrdered(aq.pending, cmd)
	aq.signal()
	return cmd, nil
}

// Bind attaches a session and reloads the durable pending set, then
// (re)starts the dispatch loop. Called by an activating session.
func (e *Engine) Bind(agentID string, s Session) error {
	stored, err := e.store.PendingForAgent(agentID)
	if err != nil {
		return err
	}

	aq := e.queueFor(agentID)
	aq.mu.Lock()
	defer aq.mu.Unlock()

	aq.session = s

	seen := make(map[string]bool, len(aq.pending))
	for _, c := range aq.pending {
		seen[c.CommandID] = true
	}
	for i := range stored {
		c := stored[i]
		if !seen[c.CommandID] {
			aq.pending = insertOrdered(aq.pending, &c)
		}
	}

	if !aq.running {
		aq.running = true
		go e.dispatchLoop(aq)
	}
	aq.signal()
	return nil
}

// Unbind detaches the session (if it is still the bound one) and fails
// every in-flight command: with fail-fast restart policy nothing will
// re-correlate their results.
func (e *Engine) Unbind(agentID, sessionID string) {
	aq := e.queueFor(agentID)
	aq.mu.Lock()
	if aq.session == nil || aq.session.ID() != sessionID {
		aq.mu.Unlock()
		return
	}
	aq.session = nil
	waiters := aq.inflight
	aq.inflight = make(map[string]*waiter)
	aq.mu.Unlock()
	aq.signal()

	now := time.Now().UTC()
	for id, w := range waiters {
		w.timer.Stop()
		ok, err := e.store.Transition(id,
			[]string{models.StatusSent, models.StatusExecuting},
			models.StatusFailed,
			map[string]any{"error_message": "session lost", "completed_at": now})
		if err != nil {
			e.log.Error().Err(err).Str("command_id", id).Msg("fail in-flight on unbind")
			continue
		}
		if ok {
			e.log.Info().Str("agent_id", agentID).Str("command_id", id).Msg("in-flight command failed: session lost")
		}
	}
}

// Cancel removes a still-pending command. Anything already handed to a
// session is past the point of no return for the core protocol.
func (e *Engine) Cancel(commandID string) error {
	cmd, err := e.store.Get(commandID)
	if err != nil {
		return err
	}

	aq := e.queueFor(cmd.AgentID)
	aq.mu.Lock()
	defer aq.mu.Unlock()

	if _, ok := aq.inflight[commandID]; ok {
		return ErrAlreadyDispatched
	}

	ok, err := e.store.Transition(commandID,
		[]string{models.StatusPending},
		models.StatusCancelled,
		map[string]any{"completed_at": time.Now().UTC()})
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race against dispatch or the command is terminal.
		if models.IsTerminal(cmd.Status) {
			return ErrNotFound
		}
		return ErrAlreadyDispatched
	}
	for i, c := range aq.pending {
		if c.CommandID == commandID {
			aq.pending = append(aq.pending[:i], aq.pending[i+1:]...)
			break
		}
	}
	return nil
}

// Resolve delivers an agent frame (result or error) to its waiter.
// Unknown ids are counted and dropped, never fatal.
func (e *Engine) Resolve(agentID string, frame protocol.Frame) {
	var commandID string
	switch f := frame.(type) {
	case protocol.Result:
		commandID = f.CommandID
	case protocol.Error:
		commandID = f.CommandID
	default:
		return
	}

	aq := e.queueFor(agentID)
	aq.mu.Lock()
	w, ok := aq.inflight[commandID]
	if !ok {
		aq.mu.Unlock()
		e.lateDrops.Add(1)
		e.log.Warn().Str("agent_id", agentID).Str("command_id", commandID).Msg("result for unknown command dropped")
		return
	}
	w.timer.Stop()
	delete(aq.inflight, commandID)

	fromSet := []string{models.StatusSent, models.StatusExecuting}
	now := time.Now().UTC()
	var fired bool
	var err error
	switch f := frame.(type) {
	case protocol.Result:
		fired, err = e.store.Transition(commandID, fromSet, models.StatusCompleted, map[string]any{
			"stdout":         f.Stdout,
			"stderr":         f.Stderr,
			"exit_code":      f.ExitCode,
			"execution_time": f.ExecutionTime,
			"completed_at":   now,
		})
	case protocol.Error:
		fired, err = e.store.Transition(commandID, fromSet, models.StatusFailed, map[string]any{
			"error_message": f.Error,
			"completed_at":  now,
		})
	}
	aq.mu.Unlock()

	if err != nil {
		e.log.Error().Err(err).Str("command_id", commandID).Msg("store transition on resolve")
		return
	}
	if !fired {
		// Timer beat us to a terminal state; the late result is dropped.
		e.lateDrops.Add(1)
	}
}

func (e *Engine) timeoutCommand(aq *agentQueue, commandID string) {
	aq.mu.Lock()
	w, ok := aq.inflight[commandID]
	if !ok {
		aq.mu.Unlock()
		return
	}
	delete(aq.inflight, commandID)
	sess := aq.session
	aq.mu.Unlock()

	fired, err := e.store.Transition(commandID,
		[]string{models.StatusSent, models.StatusExecuting},
		models.StatusTimeout,
		map[string]any{"error_message": "deadline exceeded", "completed_at": time.Now().UTC()})
	if err != nil {
		e.log.Error().Err(err).Str("command_id", commandID).Msg("store transition on timeout")
		return
	}
	if fired {
		e.log.Info().
			Str("agent_id", aq.agentID).
			Str("command_id", commandID).
			Int("timeout_s", w.cmd.TimeoutSeconds).
			Msg("command timed out")
		if sess != nil {
			sess.SendCancelHint(commandID)
		}
	}
}

// dispatchLoop drains one agent's pending queue while a session is
// bound. One goroutine per agent, started lazily on first bind.
func (e *Engine) dispatchLoop(aq *agentQueue) {
	for {
		if e.stopped.Load() {
			aq.mu.Lock()
			aq.running = false
			aq.mu.Unlock()
			return
		}

		aq.mu.Lock()
		if aq.session == nil || len(aq.pending) == 0 {
			aq.mu.Unlock()
			<-aq.wake
			continue
		}
		cmd := aq.pending[0]

		ok, err := e.store.Transition(cmd.CommandID,
			[]string{models.StatusPending},
			models.StatusSent,
			map[string]any{"sent_at": time.Now().UTC()})
		if err != nil {
			// Store unavailable: pause dispatch, keep the session up.
			aq.mu.Unlock()
			e.log.Error().Err(err).Str("agent_id", aq.agentID).Msg("store unavailable, dispatch paused")
			time.Sleep(e.storeRetry)
			aq.signal()
			continue
		}
		if !ok {
			// Cancelled (or otherwise moved) under our feet; drop it.
			aq.pending = aq.pending[1:]
			aq.mu.Unlock()
			continue
		}

		aq.pending = aq.pending[1:]
		deadline := time.Duration(cmd.TimeoutSeconds)*time.Second + e.grace
		w := &waiter{cmd: cmd}
		w.timer = time.AfterFunc(deadline, func() { e.timeoutCommand(aq, cmd.CommandID) })
		aq.inflight[cmd.CommandID] = w
		sess := aq.session
		aq.mu.Unlock()

		err = sess.SendCommand(protocol.Command{
			CommandID: cmd.CommandID,
			Command:   cmd.Command,
			Timeout:   cmd.TimeoutSeconds,
			Priority:  cmd.Priority,
		})
		if err == nil {
			e.log.Info().
				Str("agent_id", aq.agentID).
				Str("command_id", cmd.CommandID).
				Int("priority", cmd.Priority).
				Msg("command dispatched")
			continue
		}

		// Send failed: put the command back; the session is on its way
		// out and unbind will wake us again on the next bind.
		aq.mu.Lock()
		if w, ok := aq.inflight[cmd.CommandID]; ok {
			w.timer.Stop()
			delete(aq.inflight, cmd.CommandID)
		}
		reverted, terr := e.store.Transition(cmd.CommandID,
			[]string{models.StatusSent},
			models.StatusPending,
			map[string]any{"sent_at": nil})
		if terr == nil && reverted {
			aq.pending = insertOrdered(aq.pending, cmd)
		}
		aq.mu.Unlock()
		e.log.Warn().Err(err).Str("agent_id", aq.agentID).Str("command_id", cmd.CommandID).Msg("send failed, command requeued")
		<-aq.wake
	}
}

// Snapshot describes one agent's live queue for the API.
type Snapshot struct {
	AgentID  string           `json:"agent_id"`
	Pending  []models.Command `json:"pending"`
	InFlight []string         `json:"in_flight"`
}

func (e *Engine) QueueSnapshot(agentID string) Snapshot {
	aq := e.queueFor(agentID)
	aq.mu.Lock()
	defer aq.mu.Unlock()

	snap := Snapshot{AgentID: agentID, Pending: make([]models.Command, 0, len(aq.pending))}
	for _, c := range aq.pending {
		snap.Pending = append(snap.Pending, *c)
	}
	for id := range aq.inflight {
		snap.InFlight = append(snap.InFlight, id)
	}
	sort.Strings(snap.InFlight)
	return snap
}

// SetGrace overrides the waiter grace added on top of each command's
// timeout.
func (e *Engine) SetGrace(d time.Duration) {
	if d > 0 {
		e.grace = d
	}
}

// LateResultDrops reports how many results arrived after their waiter
// was gone.
func (e *Engine) LateResultDrops() int64 {
	return e.lateDrops.Load()
}

// Stop halts every dispatch loop at its next serialization point.
// Pending commands stay in the store; in-flight ones are handled by the
// session teardown that follows.
func (e *Engine) Stop() {
	e.stopped.Store(true)
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, aq := range e.agents {
		aq.signal()
	}
}
