package orchestrator

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/council/parser"
)

// RatifyPolicy decides when the Diamond pipeline calls the final arbiter.
type RatifyPolicy string

// Ratification policies.
const (
	// RatifyAlways ratifies every run, overriding the gatekeeper.
	RatifyAlways RatifyPolicy = "always"
	// RatifyNever stops after synthesis.
	RatifyNever RatifyPolicy = "never"
	// RatifyConditional ratifies when synthesis did not approve and the
	// gatekeeper allows it.
	RatifyConditional RatifyPolicy = "conditional"
)

// DefaultRatifyPolicy is used when none is configured.
const DefaultRatifyPolicy = RatifyConditional

// ParseRatifyPolicy converts a policy name. Empty selects the default.
func ParseRatifyPolicy(s string) (RatifyPolicy, error) {
	switch p := RatifyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DefaultRatifyPolicy, nil
	case RatifyAlways, RatifyNever, RatifyConditional:
		return p, nil
	default:
		return "", fmt.Errorf("unknown ratify policy %q", s)
	}
}

// Wants reports whether the policy asks for ratification given the
// synthesis verdict, before the gatekeeper is considered.
func (p RatifyPolicy) Wants(v parser.Verdict) bool {
	switch p {
	case RatifyAlways:
		return true
	case RatifyConditional:
		return !v.IsApproved()
	default:
		return false
	}
}
