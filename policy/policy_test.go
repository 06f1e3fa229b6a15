package policy

import (
	"errors"
	"strings"
	"testing"
)

func reasonOf(t *testing.T, err error) Reason {
	t.Helper()
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("expected *Rejection, got %v", err)
	}
	return rej.Reason
}

func TestDenyListAlwaysEnforced(t *testing.T) {
	t.Parallel()
	p := Default()
	p.AllowShellOperators = true
	for _, cmd := range []string{
		"rm -rf /",
		"sudo rm -rf / --no-preserve-root",
		"RM -RF /",
		"mkfs.ext4 /dev/sda1",
		"dd if=/dev/zero of=/dev/sda",
		"echo hi > /dev/sda",
		":(){ :|:& };:",
	} {
		err := p.Validate(cmd)
		if err == nil {
			t.Fatalf("expected rejection for %q", cmd)
		}
		if got := reasonOf(t, err); got != ReasonDenied {
			t.Fatalf("expected denied for %q, got %s", cmd, got)
		}
	}
}

func TestShellOperatorRule(t *testing.T) {
	t.Parallel()
	p := Default()
	if got := reasonOf(t, p.Validate("ls; cat /etc/passwd")); got != ReasonOperatorForbidden {
		t.Fatalf("expected shell_operator_forbidden, got %s", got)
	}
	for _, cmd := range []string{"a && b", "a || b", "a | b", "a > f", "a < f", "a `b`", "a $(b)", "a\nb"} {
		if err := p.Validate(cmd); err == nil {
			t.Fatalf("expected rejection for %q", cmd)
		}
	}

	p.AllowShellOperators = true
	if err := p.Validate("ls | wc -l"); err != nil {
		t.Fatalf("operators enabled but got %v", err)
	}
}

func TestAllowList(t *testing.T) {
	t.Parallel()
	p := Default()
	p.AllowListEnabled = true
	p.AllowList = []string{"ls", "whoami", "uptime"}

	if err := p.Validate("ls -la /tmp"); err != nil {
		t.Fatalf("ls should be allowed: %v", err)
	}
	if got := reasonOf(t, p.Validate("curl http://example.com")); got != ReasonNotInAllowList {
		t.Fatalf("expected not_in_allow_list, got %s", got)
	}
	// First token decides, not a prefix of the whole string.
	if got := reasonOf(t, p.Validate("lsof -i")); got != ReasonNotInAllowList {
		t.Fatalf("lsof must not ride on ls, got %s", got)
	}
}

func TestLengthCeiling(t *testing.T) {
	t.Parallel()
	p := Default()
	long := "echo " + strings.Repeat("x", DefaultMaxLength)
	if got := reasonOf(t, p.Validate(long)); got != ReasonTooLong {
		t.Fatalf("expected too_long, got %s", got)
	}
	if err := p.Validate("echo ok"); err != nil {
		t.Fatalf("short command rejected: %v", err)
	}
}

func TestEmptyCommand(t *testing.T) {
	t.Parallel()
	p := Default()
	if got := reasonOf(t, p.Validate("   ")); got != ReasonEmpty {
		t.Fatalf("expected empty, got %s", got)
	}
}

func TestCustomDenyPatterns(t *testing.T) {
	t.Parallel()
	p := Default()
	p.DenyPatterns = []string{"shutdown"}
	if got := reasonOf(t, p.Validate("shutdown -h now")); got != ReasonDenied {
		t.Fatalf("expected denied, got %s", got)
	}
}

func TestClampTimeout(t *testing.T) {
	t.Parallel()
	p := Default()
	p.MaxTimeoutSeconds = 60
	if got := p.ClampTimeout(0); got != 60 {
		t.Fatalf("unset timeout should clamp to ceiling, got %d", got)
	}
	if got := p.ClampTimeout(5); got != 5 {
		t.Fatalf("in-range timeout changed to %d", got)
	}
	if got := p.ClampTimeout(3600); got != 60 {
		t.Fatalf("over-cap timeout should clamp, got %d", got)
	}
}

// Both ends run the identical function; feed both "sides" the same
// policy and check the verdicts agree over a spread of inputs.
func TestCoordinatorAgentAgreement(t *testing.T) {
	t.Parallel()
	server := Policy{MaxLength: 100, AllowListEnabled: true, AllowList: []string{"echo", "uptime"}, MaxTimeoutSeconds: 30}
	agent := server
	for _, cmd := range []string{"echo 1", "uptime", "reboot", "echo a;b", "", "rm -rf /"} {
		se, ae := server.Validate(cmd), agent.Validate(cmd)
		if (se == nil) != (ae == nil) {
			t.Fatalf("verdicts disagree for %q: %v vs %v", cmd, se, ae)
		}
		if se != nil && reasonOf(t, se) != reasonOf(t, ae) {
			t.Fatalf("reasons disagree for %q", cmd)
		}
	}
}
