// Package transaction implements the per-FS transaction object of
// spec.md section 4.13: a deferred-action queue that a FS's writes may
// append to instead of committing immediately, run in order on Complete,
// with best-effort partial-commit reporting since no backend here offers
// true multi-object atomicity. Grounded on the teacher's own upload
// lifecycle in fs/operations (a multi-step copy that must be told to
// abort cleanly partway through) generalized into an explicit queue
// object, since rclone itself commits each file independently rather
// than through a named transaction type.
package transaction

import (
	"context"
	"sync"
)

// Action is one deferred unit of work. Abort is called instead of Run if
// the transaction is cancelled before this action runs.
type Action struct {
	Run   func(ctx context.Context) error
	Abort func(ctx context.Context) error
}

// State is a Transaction's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateActive
	StateCompleted
	StateCancelled
)

// Result reports the outcome of Complete: how many queued actions ran
// successfully (all of them on full success) and the first error, per spec.md's
// resolution of the Open Question on partial commits (SPEC_FULL.md
// section C): best-effort, per-item reporting rather than all-or-nothing
// atomicity.
type Result struct {
	Committed int // number of actions that ran successfully
	Total     int
	Err       error // nil on full success
}

// Transaction is a single-FS deferred-action queue (spec.md: "cross-FS
// atomicity is not provided").
type Transaction struct {
	mu      sync.Mutex
	state   State
	actions []Action
}

// New returns an idle Transaction.
func New() *Transaction { return &Transaction{state: StateIdle} }

// Start marks the transaction active; subsequent Defer calls append to its
// queue instead of running immediately.
func (t *Transaction) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateActive
	t.actions = nil
}

// Active reports whether the transaction is currently accepting deferred
// actions.
func (t *Transaction) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateActive
}

// Defer appends action to the queue. It is a programming error to call
// Defer on a transaction that isn't active; callers should check Active
// first and run the action immediately otherwise.
func (t *Transaction) Defer(action Action) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actions = append(t.actions, action)
}

// Complete runs the queue in insertion order, stopping at the first
// failure. The actions that already succeeded are not rolled back (no
// backend here supports that); Result reports how far the queue got.
func (t *Transaction) Complete(ctx context.Context) Result {
	t.mu.Lock()
	actions := t.actions
	t.actions = nil
	t.state = StateCompleted
	t.mu.Unlock()

	for i, a := range actions {
		if err := a.Run(ctx); err != nil {
			return Result{Committed: i, Total: len(actions), Err: err}
		}
	}
	return Result{Committed: len(actions), Total: len(actions)}
}

// Cancel drops the queue, instructing each queued action's Abort (if any)
// to run so in-flight uploads can be told to abort.
func (t *Transaction) Cancel(ctx context.Context) {
	t.mu.Lock()
	actions := t.actions
	t.actions = nil
	t.state = StateCancelled
	t.mu.Unlock()

	for _, a := range actions {
		if a.Abort != nil {
			_ = a.Abort(ctx)
		}
	}
}
