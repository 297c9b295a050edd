// Package drag turns drag-start and drop events into board moves. It does not
// depend on any gesture library; callers feed it the two events.
package drag

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"taskboard/board"
	"taskboard/domain"
	"taskboard/session"
)

// Mover applies a category reassignment. *board.Board satisfies it.
type Mover interface {
	Move(ctx context.Context, id string, from, to domain.Category) (board.Outcome, error)
}

type Phase int

const (
	Idle Phase = iota
	Dragging
)

func (p Phase) String() string {
	if p == Dragging {
		return "dragging"
	}
	return "idle"
}

// State describes the controller. TaskID and Source are only set while
// Dragging.
type State struct {
	Phase  Phase
	TaskID string
	Source domain.Category
}

// Controller tracks a single active drag at a time.
type Controller struct {
	sess   *session.Session
	mover  Mover
	logger *log.Logger

	mu    sync.Mutex
	state State
}

type Option func(*Controller)

func WithLogger(logger *log.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(sess *session.Session, mover Mover, opts ...Option) *Controller {
	if mover == nil {
		panic("drag.New: mover is nil")
	}
	c := &Controller{sess: sess, mover: mover, logger: log.StandardLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins dragging the task out of its source category. A drag that is
// already active is cancelled without a move.
func (c *Controller) Start(taskID string, source domain.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase == Dragging {
		c.logger.WithFields(log.Fields{"task": c.state.TaskID, "source": c.state.Source}).Debug("drag superseded")
	}
	if taskID == "" || !source.IsValid() || !c.sess.Active() {
		c.state = State{}
		return
	}
	c.state = State{Phase: Dragging, TaskID: taskID, Source: source}
}

// Drop ends the active drag over target. Targets that are not a category,
// such as a release outside every column, end the drag without a move, and
// so does a drop onto the source column. Otherwise exactly one move is
// issued. The controller is Idle when Drop returns.
func (c *Controller) Drop(ctx context.Context, target string) (board.Outcome, error) {
	c.mu.Lock()
	st := c.state
	c.state = State{}
	c.mu.Unlock()

	if st.Phase != Dragging || !c.sess.Active() {
		return board.Outcome{Status: board.NoOp}, nil
	}
	to, err := domain.ParseCategory(target)
	if err != nil {
		c.logger.WithFields(log.Fields{"task": st.TaskID, "target": target}).Debug("drop outside any column")
		return board.Outcome{Status: board.NoOp}, nil
	}
	if to == st.Source {
		return board.Outcome{Status: board.NoOp}, nil
	}
	return c.mover.Move(ctx, st.TaskID, st.Source, to)
}

// Cancel abandons the active drag.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = State{}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
