// Package lockout holds the account lockout policy applied around password
// sign-in: consecutive failed attempts are counted per account, the account
// locks once the count reaches the threshold, and any successful
// authentication or completed password reset clears both.
package lockout

// DefaultMaxAttempts is the number of consecutive failures that locks an
// account when no policy override is configured.
const DefaultMaxAttempts = 5

// State is the persisted lockout state of one account.
type State struct {
	FailedAttempts int
	Locked         bool
}

// Policy decides lockout transitions.
type Policy struct {
	MaxAttempts int
}

// NewPolicy returns a policy with the given threshold, falling back to
// DefaultMaxAttempts for non-positive values.
func NewPolicy(maxAttempts int) Policy {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return Policy{MaxAttempts: maxAttempts}
}

// OnFailure returns the state after one more failed verification.
func (p Policy) OnFailure(s State) State {
	s.FailedAttempts++
	if s.FailedAttempts >= p.MaxAttempts {
		s.Locked = true
	}
	return s
}

// OnSuccess returns the state after a successful authentication or a
// completed password reset. The counter resets whenever the lock clears.
func (p Policy) OnSuccess() State {
	return State{}
}
