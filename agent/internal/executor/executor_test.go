package executor

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestExecutor(maxOutput int) *Executor {
	return New(maxOutput, zerolog.Nop())
}

func TestRunCapturesStdout(t *testing.T) {
	t.Parallel()
	e := newTestExecutor(0)
	res, err := e.Run("echo hello", 5*time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Stdout != "hello\n" || res.ExitCode != 0 || res.TimedOut {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.ExecutionTime <= 0 {
		t.Fatalf("execution time must be positive: %f", res.ExecutionTime)
	}
}

func TestRunCapturesStderrAndExitCode(t *testing.T) {
	t.Parallel()
	e := newTestExecutor(0)
	res, err := e.Run("echo oops 1>&2; exit 3", 5*time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Stderr != "oops\n" || res.ExitCode != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunTimeoutKillsProcessGroup(t *testing.T) {
	t.Parallel()
	e := newTestExecutor(0)
	start := time.Now()
	res, err := e.Run("sleep 30", 200*time.Millisecond)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("timeout did not cut the command short")
	}
	if !res.TimedOut || res.ExitCode != TimeoutExitCode {
		t.Fatalf("expected timed-out result, got %+v", res)
	}
	if !strings.Contains(res.Stderr, "timed out") {
		t.Fatalf("stderr should note the timeout: %q", res.Stderr)
	}
}

func TestRunTruncatesOutput(t *testing.T) {
	t.Parallel()
	e := newTestExecutor(64)
	res, err := e.Run("yes x | head -c 1024", 5*time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasSuffix(res.Stdout, "... [truncated]") {
		t.Fatalf("expected truncation marker, got %q", res.Stdout)
	}
	if len(res.Stdout) > 64+len("\n... [truncated]") {
		t.Fatalf("stdout exceeds cap: %d bytes", len(res.Stdout))
	}
}
