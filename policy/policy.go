// Package policy implements the admission check applied to every
// command, on the coordinator at submit time and again on the agent
// before execution. Validation is a pure function of the command string
// and the policy, so both sides reach the same verdict for the same
// configuration.
package policy

import (
	"fmt"
	"strings"
)

const (
	DefaultMaxLength         = 1000
	DefaultMaxTimeoutSeconds = 300
	DefaultMaxOutputBytes    = 1 << 20 // per stream, stdout and stderr each
)

// Patterns rejected no matter how the policy is configured. Matching is
// case-insensitive substring, same as the deny list entries from config.
var baseDenyPatterns = []string{
	"rm -rf /",
	"rm -fr /",
	"mkfs",
	"dd if=/dev/zero",
	"> /dev/sd",
	"of=/dev/sd",
	":(){ :|:& };:",
	"chmod -r 777 /",
	"chown -r",
	"mv / /dev/null",
}

// shellOperators trip the allow_shell_operators=false rule.
var shellOperators = []string{";", "&&", "||", "|", ">", "<", "`", "$(", "\n"}

type Reason string

const (
	ReasonEmpty             Reason = "empty"
	ReasonTooLong           Reason = "too_long"
	ReasonDenied            Reason = "denied"
	ReasonNotInAllowList    Reason = "not_in_allow_list"
	ReasonOperatorForbidden Reason = "shell_operator_forbidden"
)

// Rejection is the error returned for a command the policy refuses.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

type Policy struct {
	MaxLength           int
	DenyPatterns        []string
	AllowListEnabled    bool
	AllowList           []string
	AllowShellOperators bool
	MaxTimeoutSeconds   int
	MaxOutputBytes      int
}

func Default() Policy {
	return Policy{
		MaxLength:         DefaultMaxLength,
		MaxTimeoutSeconds: DefaultMaxTimeoutSeconds,
		MaxOutputBytes:    DefaultMaxOutputBytes,
	}
}

// Validate returns nil when the command is admissible, or a *Rejection
// describing the first rule it broke. Rules run in a fixed order so the
// coordinator and agent agree on the surfaced reason as well.
func (p Policy) Validate(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return &Rejection{Reason: ReasonEmpty}
	}
	maxLen := p.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	if len(command) > maxLen {
		return &Rejection{Reason: ReasonTooLong, Detail: fmt.Sprintf("command exceeds %d characters", maxLen)}
	}

	lower := strings.ToLower(trimmed)
	for _, pat := range baseDenyPatterns {
		if strings.Contains(lower, pat) {
			return &Rejection{Reason: ReasonDenied, Detail: "dangerous operation"}
		}
	}
	for _, pat := range p.DenyPatterns {
		if pat == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(pat)) {
			return &Rejection{Reason: ReasonDenied, Detail: "blocked by policy"}
		}
	}

	if !p.AllowShellOperators {
		for _, op := range shellOperators {
			if strings.Contains(command, op) {
				return &Rejection{Reason: ReasonOperatorForbidden, Detail: fmt.Sprintf("operator %q not allowed", op)}
			}
		}
	}

	if p.AllowListEnabled {
		first := strings.Fields(trimmed)[0]
		ok := false
		for _, allowed := range p.AllowList {
			if first == allowed {
				ok = true
				break
			}
		}
		if !ok {
			return &Rejection{Reason: ReasonNotInAllowList, Detail: fmt.Sprintf("%q not in allow list", first)}
		}
	}
	return nil
}

// ClampTimeout maps a requested timeout to the effective one: the
// policy ceiling when unset or over the cap, otherwise the request.
// Clamping is silent; callers surface the effective value.
func (p Policy) ClampTimeout(requested int) int {
	ceiling := p.MaxTimeoutSeconds
	if ceiling <= 0 {
		ceiling = DefaultMaxTimeoutSeconds
	}
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}

// OutputCeiling is the per-stream capture cap for agents.
func (p Policy) OutputCeiling() int {
	if p.MaxOutputBytes <= 0 {
		return DefaultMaxOutputBytes
	}
	return p.MaxOutputBytes
}
