// Package undo holds the session-scoped compensation stack. Every mutating
// operation performed through the engine records a command that can reverse
// it; the operator can then unwind the most recent mutations one at a time.
package undo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrNothingToUndo signals the stack is empty.
	ErrNothingToUndo = errors.New("undo: nothing to undo")
	// ErrCompensationFailed signals a command's revert failed. The command
	// is already gone from the stack and will not be retried.
	ErrCompensationFailed = errors.New("undo: compensation failed")
)

// DefaultDepth is how many mutations stay undoable. Older entries are
// discarded silently.
const DefaultDepth = 10

// Kind tags the operation a command compensates.
type Kind string

const (
	KindCreate       Kind = "create"
	KindEdit         Kind = "edit"
	KindDelete       Kind = "delete"
	KindStatusChange Kind = "status-change"
)

// Command reverses one committed mutation. Implementations carry the
// pre-mutation snapshot and the ids of every record the mutation created,
// captured at record time; they must never re-derive ids from current state.
type Command interface {
	Kind() Kind
	Description() string
	Revert(ctx context.Context) error
}

type entry struct {
	id         int64
	recordedAt time.Time
	cmd        Command
}

// Stack is a bounded LIFO of compensating commands. It is process-local and
// never persisted: on restart, undo history is gone by design.
//
// One stack is constructed per operator session and passed by reference to
// the services that record into it.
type Stack struct {
	mu      sync.Mutex
	depth   int
	nextID  int64
	entries []entry
	now     func() time.Time
	logger  *slog.Logger
}

// NewStack returns a stack retaining at most depth commands. A depth <= 0
// falls back to DefaultDepth.
func NewStack(depth int) *Stack {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Stack{
		depth:  depth,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// WithClock overrides the timestamp source.
func (s *Stack) WithClock(now func() time.Time) *Stack {
	s.now = now
	return s
}

// WithLogger overrides the warning logger.
func (s *Stack) WithLogger(logger *slog.Logger) *Stack {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Record pushes a command. Pushing past the bound drops the oldest entry;
// the dropped mutation is no longer compensable.
func (s *Stack) Record(cmd Command) {
	if cmd == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.entries = append(s.entries, entry{
		id:         s.nextID,
		recordedAt: s.now(),
		cmd:        cmd,
	})
	if len(s.entries) > s.depth {
		dropped := s.entries[0]
		s.entries = s.entries[1:]
		s.logger.Debug("undo history bound reached, discarding oldest entry",
			"kind", dropped.cmd.Kind(),
			"description", dropped.cmd.Description())
	}
}

// Len reports how many commands are currently undoable.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Undo pops the most recent command and runs it, returning its description
// for operator notification. The entry is removed from the stack before the
// compensating writes are awaited, so a doubled trigger never reverts the
// same mutation twice. A failed revert is reported wrapped in
// ErrCompensationFailed and the command is permanently lost; re-pushing it
// would invite infinite retry loops.
func (s *Stack) Undo(ctx context.Context) (string, error) {
	s.mu.Lock()
	if len(s.entries) == 0 {
		s.mu.Unlock()
		return "", ErrNothingToUndo
	}
	top := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	s.mu.Unlock()

	if err := top.cmd.Revert(ctx); err != nil {
		s.logger.Warn("compensating action failed and was discarded",
			"kind", top.cmd.Kind(),
			"description", top.cmd.Description(),
			"error", err)
		return "", fmt.Errorf("%w: %s: %v", ErrCompensationFailed, top.cmd.Description(), err)
	}

	return top.cmd.Description(), nil
}
