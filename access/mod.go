// Package access implements the policy decision layer of the vault.
//
// A policy is the set of role tokens a data owner declares as sufficient to
// read its object, and a decision is taken by comparing them with the
// attributes of the requester. The evaluator is a pure function: it performs
// no I/O, so the trust boundary is explicit — this is a trusted decision
// point, not cryptographic policy enforcement.
package access

import "fmt"

// Reasons attached to denied decisions. They end up verbatim in the audit
// trail so they are part of the public contract.
const (
	ReasonRevoked      = "revoked"
	ReasonNoPolicy     = "no policy"
	ReasonMismatch     = "policy mismatch"
	ReasonUnknownOwner = "unknown owner"
	ReasonIntegrity    = "integrity failure"
)

// Policy is the set of role tokens sufficient for access to an object.
type Policy []string

// Contains returns true when the role is part of the policy.
func (p Policy) Contains(role string) bool {
	for _, token := range p {
		if token == role {
			return true
		}
	}

	return false
}

// Attributes is the set of role tokens a user holds.
type Attributes []string

// DeniedError is the decision to refuse access, carrying the reason that
// will be recorded in the audit trail.
type DeniedError struct {
	Reason string
}

func (e DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Reason)
}

// Rule selects how user attributes are matched against a policy.
type Rule int

const (
	// MatchAny grants as soon as one attribute appears in the policy. This
	// is the default, mirroring a disjunctive role policy.
	MatchAny Rule = iota

	// MatchAll grants only when the user holds every role of the policy.
	MatchAll
)

// Evaluator takes access decisions. It holds no state besides the match rule
// so it is safe for concurrent use.
type Evaluator struct {
	rule Rule
}

// NewEvaluator returns an evaluator using the given match rule.
func NewEvaluator(rule Rule) Evaluator {
	return Evaluator{rule: rule}
}

// Evaluate returns nil when the attributes satisfy the policy, otherwise a
// DeniedError with the reason. Revocation is checked before any matching,
// and an empty policy denies everyone rather than being open to all.
func (e Evaluator) Evaluate(attrs Attributes, policy Policy, revoked bool) error {
	if revoked {
		return DeniedError{Reason: ReasonRevoked}
	}

	if len(policy) == 0 {
		return DeniedError{Reason: ReasonNoPolicy}
	}

	switch e.rule {
	case MatchAll:
		for _, role := range policy {
			if !attrs.holds(role) {
				return DeniedError{Reason: ReasonMismatch}
			}
		}

		return nil
	default:
		for _, attr := range attrs {
			if policy.Contains(attr) {
				return nil
			}
		}

		return DeniedError{Reason: ReasonMismatch}
	}
}

func (a Attributes) holds(role string) bool {
	for _, attr := range a {
		if attr == role {
			return true
		}
	}

	return false
}
