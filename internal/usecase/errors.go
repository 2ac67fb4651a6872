package usecase

import "errors"

// Failure taxonomy for the submission pipeline and rank tracking. These are
// returned as typed results so callers can map them to client responses
// without stack unwinding.
var (
	// ErrInvalidRequest marks malformed or unscoreable input. Safe to reject,
	// no side effects.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrDuplicate marks an idempotent reject of an already-seen payload.
	ErrDuplicate = errors.New("duplicate score")
	// ErrRuleViolation marks mod or integrity failures; the rejection may have
	// already committed a moderation side effect.
	ErrRuleViolation = errors.New("rule violation")
	// ErrNotFound marks an absent beatmap, user or score.
	ErrNotFound = errors.New("resource not found")
	// ErrTransientStore marks a store-level fault the caller may retry.
	ErrTransientStore = errors.New("transient store failure")
	// ErrInconsistent marks a detected invariant violation during cascade
	// repair; logged at high severity, the operation still completes with
	// best-effort values.
	ErrInconsistent = errors.New("leaderboard state inconsistent")
	// ErrMaintenance marks submissions rejected while the maintenance flag is set.
	ErrMaintenance = errors.New("server is in maintenance mode")
	// ErrUnauthorized marks a missing or invalid credential on a guarded
	// surface such as the admin endpoints.
	ErrUnauthorized = errors.New("unauthorized")
)
