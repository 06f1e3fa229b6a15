package queue

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/GluM1262/remoteshell-manager/backend/app/db"
	"github.com/GluM1262/remoteshell-manager/backend/app/models"
	"github.com/GluM1262/remoteshell-manager/backend/app/repo"
	"github.com/GluM1262/remoteshell-manager/policy"
	"github.com/GluM1262/remoteshell-manager/protocol"
)

type fakeSession struct {
	id   string
	mu   sync.Mutex
	sent []protocol.Command
	ch   chan protocol.Command
	fail bool
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id, ch: make(chan protocol.Command, 64)}
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) SendCommand(cmd protocol.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("socket closed")
	}
	s.sent = append(s.sent, cmd)
	s.ch <- cmd
	return nil
}

func (s *fakeSession) SendCancelHint(string) {}

func (s *fakeSession) waitFor(t *testing.T, n int) []protocol.Command {
	t.Helper()
	deadline := time.After(3 * time.Second)
	var got []protocol.Command
	for len(got) < n {
		select {
		case cmd := <-s.ch:
			got = append(got, cmd)
		case <-deadline:
			t.Fatalf("timed out waiting for %d dispatches, got %d", n, len(got))
		}
	}
	return got
}

func newTestEngine(t *testing.T) (*Engine, *repo.CommandRepository) {
	t.Helper()
	gdb, err := db.Connect(db.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "queue.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := gdb.AutoMigrate(&models.Agent{}, &models.Command{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := repo.NewCommandRepository(gdb)
	pol := policy.Default()
	pol.AllowShellOperators = false
	e := NewEngine(store, func() policy.Policy { return pol }, 100, zerolog.Nop())
	t.Cleanup(e.Stop)
	return e, store
}

func TestSubmitRejectedWritesNothing(t *testing.T) {
	t.Parallel()
	e, store := newTestEngine(t)
	_, err := e.Submit("a1", "rm -rf /", 5, 0)
	var rej *policy.Rejection
	if !errors.As(err, &rej) || rej.Reason != policy.ReasonDenied {
		t.Fatalf("expected denied rejection, got %v", err)
	}
	cmds, _ := store.List(repo.Filter{AgentID: "a1"})
	if len(cmds) != 0 {
		t.Fatalf("rejected submit must not reach the store, found %d rows", len(cmds))
	}
}

func TestOfflineSubmitThenDrainInOrder(t *testing.T) {
	t.Parallel()
	e, store := newTestEngine(t)

	var ids []string
	for _, c := range []string{"echo 1", "echo 2", "echo 3"} {
		cmd, err := e.Submit("a2", c, 5, 0)
		if err != nil {
			t.Fatalf("submit %q: %v", c, err)
		}
		if cmd.Status != models.StatusPending {
			t.Fatalf("offline submit should be pending, got %s", cmd.Status)
		}
		ids = append(ids, cmd.CommandID)
	}

	s := newFakeSession("s1")
	if err := e.Bind("a2", s); err != nil {
		t.Fatalf("bind: %v", err)
	}
	got := s.waitFor(t, 3)
	for i, cmd := range got {
		if cmd.CommandID != ids[i] {
			t.Fatalf("dispatch order broken at %d: %s != %s", i, cmd.CommandID, ids[i])
		}
	}

	// One sent_at each, exactly once.
	for _, id := range ids {
		row, err := store.Get(id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if row.Status != models.StatusSent || row.SentAt == nil {
			t.Fatalf("expected sent with sent_at, got %+v", row)
		}
	}
}

func TestPriorityPrecedence(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)

	c1, _ := e.Submit("a3", "echo c1", 5, 0)
	c2, _ := e.Submit("a3", "echo c2", 5, 0)
	c3, _ := e.Submit("a3", "echo c3", 5, 10)
	c4, _ := e.Submit("a3", "echo c4", 5, 0)

	s := newFakeSession("s1")
	if err := e.Bind("a3", s); err != nil {
		t.Fatalf("bind: %v", err)
	}
	got := s.waitFor(t, 4)
	want := []string{c3.CommandID, c1.CommandID, c2.CommandID, c4.CommandID}
	for i := range want {
		if got[i].CommandID != want[i] {
			t.Fatalf("expected order c3,c1,c2,c4; position %d got wrong command", i)
		}
	}
}

func TestResultCompletesCommand(t *testing.T) {
	t.Parallel()
	e, store := newTestEngine(t)
	s := newFakeSession("s1")
	if err := e.Bind("a1", s); err != nil {
		t.Fatalf("bind: %v", err)
	}
	cmd, err := e.Submit("a1", "whoami", 5, 0)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	s.waitFor(t, 1)

	e.Resolve("a1", protocol.Result{
		CommandID:     cmd.CommandID,
		Stdout:        "remoteshell\n",
		ExitCode:      0,
		ExecutionTime: 0.02,
	})

	row, _ := store.Get(cmd.CommandID)
	if row.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", row.Status)
	}
	if row.Stdout != "remoteshell\n" || row.ExitCode == nil || *row.ExitCode != 0 {
		t.Fatalf("result fields wrong: %+v", row)
	}
	if row.SentAt == nil || row.CompletedAt == nil || row.CompletedAt.Before(*row.SentAt) {
		t.Fatalf("expected sent_at <= completed_at: %+v", row)
	}
}

func TestAgentErrorFailsCommand(t *testing.T) {
	t.Parallel()
	e, store := newTestEngine(t)
	s := newFakeSession("s1")
	_ = e.Bind("a1", s)
	cmd, _ := e.Submit("a1", "whoami", 5, 0)
	s.waitFor(t, 1)

	e.Resolve("a1", protocol.Error{CommandID: cmd.CommandID, Error: "spawn failed"})
	row, _ := store.Get(cmd.CommandID)
	if row.Status != models.StatusFailed || row.ErrorMessage != "spawn failed" {
		t.Fatalf("expected failed with message, got %+v", row)
	}
}

func TestTimeoutAuthorityAndLateResult(t *testing.T) {
	t.Parallel()
	e, store := newTestEngine(t)
	e.SetGrace(50 * time.Millisecond)

	s := newFakeSession("s1")
	_ = e.Bind("a1", s)
	cmd2, err := e.Submit("a1", "sleep 60", 1, 0)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	s.waitFor(t, 1)

	deadline := time.After(3 * time.Second)
	for {
		row, _ := store.Get(cmd2.CommandID)
		if row.Status == models.StatusTimeout {
			if row.ErrorMessage != "deadline exceeded" {
				t.Fatalf("timeout message wrong: %+v", row)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("command never timed out, status %s", row.Status)
		case <-time.After(20 * time.Millisecond):
		}
	}

	// A late result must not flip the terminal state.
	before := e.LateResultDrops()
	e.Resolve("a1", protocol.Result{CommandID: cmd2.CommandID, Stdout: "late", ExitCode: 0})
	row, _ := store.Get(cmd2.CommandID)
	if row.Status != models.StatusTimeout || row.Stdout == "late" {
		t.Fatalf("late result must be dropped: %+v", row)
	}
	if e.LateResultDrops() != before+1 {
		t.Fatalf("late_result_drops should increment: %d -> %d", before, e.LateResultDrops())
	}
}

func TestCancelPendingOnly(t *testing.T) {
	t.Parallel()
	e, store := newTestEngine(t)

	// Offline agent: command stays pending and can be cancelled.
	cmd, _ := e.Submit("a1", "echo bye", 5, 0)
	if err := e.Cancel(cmd.CommandID); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	row, _ := store.Get(cmd.CommandID)
	if row.Status != models.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", row.Status)
	}

	// Cancelled command must never be dispatched on a later bind.
	s := newFakeSession("s1")
	_ = e.Bind("a1", s)
	live, _ := e.Submit("a1", "echo live", 5, 0)
	got := s.waitFor(t, 1)
	if got[0].CommandID != live.CommandID {
		t.Fatal("cancelled command leaked to the agent")
	}

	// In-flight: rejected without side effects.
	if err := e.Cancel(live.CommandID); !errors.Is(err, ErrAlreadyDispatched) {
		t.Fatalf("expected ErrAlreadyDispatched, got %v", err)
	}
	row, _ = store.Get(live.CommandID)
	if row.Status != models.StatusSent {
		t.Fatalf("cancel of in-flight must not change state, got %s", row.Status)
	}

	if err := e.Cancel("missing"); !errors.Is(err, repo.ErrCommandNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUnbindFailsInFlightKeepsPending(t *testing.T) {
	t.Parallel()
	e, store := newTestEngine(t)
	s := newFakeSession("s1")
	_ = e.Bind("a1", s)

	inflight, _ := e.Submit("a1", "echo 1", 60, 0)
	s.waitFor(t, 1)

	e.Unbind("a1", "s1")

	waitStatus(t, store, inflight.CommandID, models.StatusFailed)
	row, _ := store.Get(inflight.CommandID)
	if row.ErrorMessage != "session lost" {
		t.Fatalf("expected session lost, got %+v", row)
	}

	// Submitted while offline: stays pending in memory and store.
	queued, _ := e.Submit("a1", "echo 2", 60, 0)
	waitStatus(t, store, queued.CommandID, models.StatusPending)

	// Reconnect drains the survivor exactly once.
	s2 := newFakeSession("s2")
	_ = e.Bind("a1", s2)
	got := s2.waitFor(t, 1)
	if got[0].CommandID != queued.CommandID {
		t.Fatal("pending command must redispatch on rebind")
	}
}

func waitStatus(t *testing.T, store *repo.CommandRepository, id, want string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		now := "?"
		if row, err := store.Get(id); err == nil {
			if row.Status == want {
				return
			}
			now = row.Status
		}
		select {
		case <-deadline:
			t.Fatalf("command %s never reached %s (now %s)", id, want, now)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestQueueFull(t *testing.T) {
	t.Parallel()
	gdb, err := db.Connect(db.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "full.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := gdb.AutoMigrate(&models.Command{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := NewEngine(repo.NewCommandRepository(gdb), func() policy.Policy { return policy.Default() }, 2, zerolog.Nop())
	defer e.Stop()

	if _, err := e.Submit("a1", "echo 1", 5, 0); err != nil {
		t.Fatalf("submit 1: %v", err)
	}
	if _, err := e.Submit("a1", "echo 2", 5, 0); err != nil {
		t.Fatalf("submit 2: %v", err)
	}
	if _, err := e.Submit("a1", "echo 3", 5, 0); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestQueueSnapshot(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	c1, _ := e.Submit("a1", "echo 1", 5, 0)
	c2, _ := e.Submit("a1", "echo 2", 5, 5)

	snap := e.QueueSnapshot("a1")
	if len(snap.Pending) != 2 || len(snap.InFlight) != 0 {
		t.Fatalf("snapshot wrong: %+v", snap)
	}
	if snap.Pending[0].CommandID != c2.CommandID || snap.Pending[1].CommandID != c1.CommandID {
		t.Fatal("snapshot must reflect dispatch order")
	}
}

// Reloading the queue from the store must reproduce the in-memory
// pending set.
func TestStoreMemoryConsistency(t *testing.T) {
	t.Parallel()
	e, store := newTestEngine(t)

	var ids []string
	for i, c := range []string{"echo 1", "echo 2", "echo 3", "echo 4"} {
		cmd, err := e.Submit("a1", c, 5, i%2*5)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		ids = append(ids, cmd.CommandID)
	}
	if err := e.Cancel(ids[1]); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	snap := e.QueueSnapshot("a1")
	stored, err := store.PendingForAgent("a1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(snap.Pending) != len(stored) {
		t.Fatalf("memory has %d pending, store has %d", len(snap.Pending), len(stored))
	}
	for i := range stored {
		if snap.Pending[i].CommandID != stored[i].CommandID {
			t.Fatalf("order diverges at %d: %s vs %s", i, snap.Pending[i].CommandID, stored[i].CommandID)
		}
	}
}

func TestSubmitClampsTimeout(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	cmd, err := e.Submit("a1", "echo hi", 99999, 0)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if cmd.TimeoutSeconds != policy.DefaultMaxTimeoutSeconds {
		t.Fatalf("expected clamped timeout %d, got %d", policy.DefaultMaxTimeoutSeconds, cmd.TimeoutSeconds)
	}
}
