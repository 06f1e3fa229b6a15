// Package executor spawns the OS process for one command. Every
// command runs in its own process group so a timeout kills the whole
// tree, not just the shell.
package executor

import (
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// TimeoutExitCode marks a locally killed command in the result
// envelope. The coordinator's waiter deadline adds a grace period to
// the same timeout, so this result normally arrives in time and is
// recorded; one that arrives after the waiter expired is dropped.
const TimeoutExitCode = -1

const truncationMarker = "\n... [truncated]"

type Result struct {
	Stdout        string
	Stderr        string
	ExitCode      int
	ExecutionTime float64
	TimedOut      bool
}

// cappedBuffer keeps at most limit bytes and flags the overflow once.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
			b.truncated = true
		} else {
			b.buf = append(b.buf, p...)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return string(b.buf) + truncationMarker
	}
	return string(b.buf)
}

type Executor struct {
	maxOutput int
	log       zerolog.Logger
}

func New(maxOutputBytes int, log zerolog.Logger) *Executor {
	if maxOutputBytes <= 0 {
		maxOutputBytes = 1 << 20
	}
	return &Executor{maxOutput: maxOutputBytes, log: log}
}

// Run executes the command under /bin/sh with a hard deadline. On the
// deadline the process group gets SIGKILL and the result reports exit
// code -1 with a timeout note in stderr.
func (e *Executor) Run(command string, timeout time.Duration) (Result, error) {
	stdout := &cappedBuffer{limit: e.maxOutput}
	stderr := &cappedBuffer{limit: e.maxOutput}

	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timedOut := false
	select {
	case <-done:
	case <-time.After(timeout):
		timedOut = true
		// Negative pid addresses the whole process group.
		if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil {
			e.log.Warn().Err(err).Int("pid", cmd.Process.Pid).Msg("process group kill failed")
			_ = cmd.Process.Kill()
		}
		<-done
	}
	elapsed := time.Since(start).Seconds()

	res := Result{
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		ExitCode:      cmd.ProcessState.ExitCode(),
		ExecutionTime: elapsed,
		TimedOut:      timedOut,
	}
	if timedOut {
		res.ExitCode = TimeoutExitCode
		note := "command timed out after " + strconv.Itoa(int(timeout/time.Second)) + "s"
		if res.Stderr != "" {
			res.Stderr += "\n"
		}
		res.Stderr += note
	}
	return res, nil
}
