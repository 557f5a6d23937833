package errors

// Representation of errors raised by the release engine. These are
// divided into a small number of categories, essentially distinguished
// by what the orchestrator is allowed to do next; i.e., is this error:
//  - a transient problem with an external system, so worth trying again?
//  - a terminal condition for the step, to be escalated as-is?
//  - something that left the system in a state an operator must look at?

type Type string

const (
	// The inputs were malformed; retrying the same call will never help.
	Validation Type = "validation"
	// A network-level failure talking to the registry, version control
	// or cluster. Retryable per the step's policy.
	Transport Type = "transport"
	// The manifest repository advanced underneath us and the bounded
	// rebase-and-retry budget ran out.
	ManifestConflict Type = "manifest-conflict"
	// The GitOps controller did not acknowledge the new revision in
	// time. Fatal for the step; the manifest update persists.
	ReconcileTimeout Type = "reconcile-timeout"
	// The rollout reached a terminal failed state. Carries pod
	// diagnostics for operator inspection.
	RolloutFailed Type = "rollout-failed"
	// The rollout never became healthy within the watch timeout.
	RolloutTimedOut Type = "rollout-timed-out"
	// Reverting the manifest itself failed. The system may be left
	// pointing at a bad tag, so this is never swallowed.
	Rollback Type = "rollback"
)

type Error struct {
	Type Type
	// a message that can be printed out for the user
	Help string
	// the underlying error, for logs
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Type)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// TypeOf reports the engine category for an error, or "" if the error
// did not come from the engine.
func TypeOf(err error) Type {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Type
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// Retryable reports whether the orchestrator may retry the operation
// that produced this error. Only transport-level failures qualify;
// every other category has either already exhausted its local retry
// budget or can never succeed.
func Retryable(err error) bool {
	return TypeOf(err) == Transport
}
