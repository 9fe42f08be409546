// Package conversation drives multi-turn input collection. Each user holds
// at most one session; turns advance it one validated field at a time until
// the flow's terminal step emits a completed intent for the orchestrator.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/meetstake/internal/adapters/chat"
	"github.com/okian/meetstake/internal/domain/intent"
	"github.com/okian/meetstake/internal/domain/model"
	"github.com/okian/meetstake/internal/domain/session"
	"github.com/okian/meetstake/pkg/logger"
	"github.com/okian/meetstake/pkg/metrics"
)

// Directory provides the read-only event lookups the selector steps need.
// Implemented by the orchestrator; the machine never writes event state.
type Directory interface {
	// FindEventsByName matches active events by name, case-insensitive.
	FindEventsByName(ctx context.Context, q string) ([]model.Event, error)

	// AttendableEvents lists events the user joined, not finalized, not yet
	// attended.
	AttendableEvents(ctx context.Context, userID int64) ([]model.Event, error)

	// ListEvents lists all events ordered by date.
	ListEvents(ctx context.Context) ([]model.Event, error)
}

// Result is what one turn produced: prompts to render, optional tappable
// options, and the completed intent when a flow reached its terminal step.
type Result struct {
	Handled bool
	Prompts []string
	Options []string
	Intent  intent.Intent
}

func reply(prompts ...string) Result {
	return Result{Handled: true, Prompts: prompts}
}

// Option applies a configuration option to the Machine.
type Option func(*Machine)

// WithClock injects the time source used for future-date validation.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTokenSource injects the idempotency token generator.
func WithTokenSource(gen func() string) Option {
	return func(m *Machine) {
		if gen != nil {
			m.newToken = gen
		}
	}
}

// WithLogger sets a custom logger for the machine.
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// Machine is the per-user conversation state machine. It is the sole
// writer of session state.
type Machine struct {
	sessions session.Store
	dir      Directory
	logger   logger.Logger
	now      func() time.Time
	newToken func() string
}

// New creates a Machine backed by the given session store and directory.
func New(sessions session.Store, dir Directory, opts ...Option) *Machine {
	m := &Machine{
		sessions: sessions,
		dir:      dir,
		now:      time.Now,
		newToken: uuid.NewString,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = logger.Named("conversation")
	}

	return m
}

// FlowForCommand maps a command name to the flow it starts.
func FlowForCommand(cmd string) (session.Flow, bool) {
	switch cmd {
	case "create_event":
		return session.FlowCreateEvent, true
	case "join_event":
		return session.FlowJoinEvent, true
	case "attend":
		return session.FlowConfirmAttendance, true
	case "memory":
		return session.FlowCreateMemory, true
	default:
		return "", false
	}
}

// Cancel drops the user's active session, if any.
func (m *Machine) Cancel(ctx context.Context, userID int64) Result {
	if _, ok := m.sessions.Get(ctx, userID); !ok {
		return reply("Nothing to cancel.")
	}
	m.sessions.Delete(ctx, userID)
	metrics.UpdateSessionsActive(m.sessions.Len())
	return reply("Cancelled.")
}

// StartFlow begins a flow for the user, replacing any active session.
func (m *Machine) StartFlow(ctx context.Context, userID int64, flow session.Flow) (Result, error) {
	s := session.Session{
		UserID:    userID,
		Flow:      flow,
		Token:     m.newToken(),
		StartedAt: m.now(),
	}

	res, err := m.enterFlow(ctx, &s)
	if err != nil {
		m.sessions.Delete(ctx, userID)
		metrics.UpdateSessionsActive(m.sessions.Len())
		return Result{}, err
	}
	metrics.UpdateSessionsActive(m.sessions.Len())
	return res, nil
}

// enterFlow runs the flow's first step. Selector flows may resolve or fail
// immediately; the session is only stored when another turn is needed.
func (m *Machine) enterFlow(ctx context.Context, s *session.Session) (Result, error) {
	switch s.Flow {
	case session.FlowCreateEvent:
		s.Step = session.StepName
		m.sessions.Put(ctx, *s)
		return reply("What should the event be called?"), nil

	case session.FlowJoinEvent:
		s.Step = session.StepSelectEvent
		m.sessions.Put(ctx, *s)
		return reply("Which event do you want to join? Send part of its name."), nil

	case session.FlowConfirmAttendance:
		events, err := m.dir.AttendableEvents(ctx, s.UserID)
		if err != nil {
			return Result{}, fmt.Errorf("attendable events: %w", err)
		}
		switch len(events) {
		case 0:
			// Terminal: no session to keep.
			return reply("You have no events to check in to."), nil
		case 1:
			s.EventID = events[0].ID
			s.Step = session.StepAwaitLocation
			m.sessions.Put(ctx, *s)
			return reply(fmt.Sprintf("Checking in to %q. Share your location to confirm you're there.", events[0].Name)), nil
		default:
			s.Step = session.StepSelectEvent
			s.Candidates = eventIDs(events)
			m.sessions.Put(ctx, *s)
			r := reply("Which event are you at?")
			r.Options = eventOptions(events)
			return r, nil
		}

	case session.FlowCreateMemory:
		events, err := m.dir.ListEvents(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("list events: %w", err)
		}
		if len(events) == 0 {
			return reply("There are no events yet."), nil
		}
		s.Step = session.StepSelectEvent
		s.Candidates = eventIDs(events)
		m.sessions.Put(ctx, *s)
		r := reply("Which event is this memory from?")
		r.Options = eventOptions(events)
		return r, nil

	default:
		return Result{}, fmt.Errorf("unknown flow %q", s.Flow)
	}
}

// Advance feeds a non-command turn into the user's active session. When no
// session exists the turn is reported as unhandled so the caller can hint
// at the available commands. Any internal error deletes the session; a
// conversation must never be left at an undefined step.
func (m *Machine) Advance(ctx context.Context, t chat.Turn) (Result, error) {
	s, ok := m.sessions.Get(ctx, t.UserID)
	if !ok {
		return Result{}, nil
	}

	res, err := m.advanceStep(ctx, &s, t)
	if err != nil {
		m.sessions.Delete(ctx, t.UserID)
		metrics.UpdateSessionsActive(m.sessions.Len())
		m.logger.Error(ctx, "session aborted",
			logger.Int("user", int(t.UserID)),
			logger.String("flow", string(s.Flow)),
			logger.String("step", string(s.Step)),
			logger.Error(err),
		)
		return Result{}, err
	}

	if res.Intent != nil {
		// Terminal step: the session is gone before the orchestrator runs,
		// whatever the downstream outcome.
		m.sessions.Delete(ctx, t.UserID)
		metrics.RecordIntentCompleted(res.Intent.Flow())
	}
	metrics.UpdateSessionsActive(m.sessions.Len())
	return res, nil
}

func (m *Machine) advanceStep(ctx context.Context, s *session.Session, t chat.Turn) (Result, error) {
	switch s.Flow {
	case session.FlowCreateEvent:
		return m.advanceCreateEvent(ctx, s, t)
	case session.FlowJoinEvent:
		return m.advanceJoinEvent(ctx, s, t)
	case session.FlowConfirmAttendance:
		return m.advanceConfirmAttendance(ctx, s, t)
	case session.FlowCreateMemory:
		return m.advanceCreateMemory(ctx, s, t)
	default:
		return Result{}, fmt.Errorf("session in unknown flow %q", s.Flow)
	}
}

func (m *Machine) advanceCreateEvent(ctx context.Context, s *session.Session, t chat.Turn) (Result, error) {
	switch s.Step {
	case session.StepName:
		if t.Kind != chat.KindText || t.Text == "" {
			return reply("Send the event name as text."), nil
		}
		s.Name = t.Text
		s.Step = session.StepWhen
		m.sessions.Put(ctx, *s)
		return reply("When is it? Use YYYY-MM-DD HH:MM."), nil

	case session.StepWhen:
		when, err := parseFutureTime(t.Text, m.now())
		if err != nil {
			// Validation failure: stay at the same step.
			return reply(err.Error()), nil
		}
		s.When = when
		s.Step = session.StepStake
		m.sessions.Put(ctx, *s)
		return reply("How much is the stake to join?"), nil

	case session.StepStake:
		stake, err := parsePositiveAmount(t.Text)
		if err != nil {
			return reply(err.Error()), nil
		}
		s.Stake = stake
		s.Step = session.StepLocation
		m.sessions.Put(ctx, *s)
		return reply("Where is it? Share a location, send coordinates, or describe the venue."), nil

	case session.StepLocation:
		in := intent.CreateEvent{
			UserID: s.UserID,
			Token:  s.Token,
			Name:   s.Name,
			When:   s.When,
			Stake:  s.Stake,
		}
		switch {
		case t.Kind == chat.KindLocation:
			in.Anchor = t.Location
		case t.Kind == chat.KindText:
			if loc, ok := parseLatLng(t.Text); ok {
				in.Anchor = &loc
			} else {
				// Free text venue: attendance checks are skipped for this event.
				in.Venue = t.Text
			}
		default:
			return reply("Share a location, send coordinates, or describe the venue."), nil
		}
		return Result{Handled: true, Intent: in}, nil

	default:
		return Result{}, fmt.Errorf("create_event session at unknown step %q", s.Step)
	}
}

func (m *Machine) advanceJoinEvent(ctx context.Context, s *session.Session, t chat.Turn) (Result, error) {
	switch s.Step {
	case session.StepSelectEvent:
		// Either a typed name query or a tap on a disambiguation option.
		if t.Kind == chat.KindSelection {
			id, ok := selectedEventID(t.Selection, s.Candidates)
			if !ok {
				return reply("That option is no longer available."), nil
			}
			return m.joinConfirmPrompt(ctx, s, id)
		}
		if t.Kind != chat.KindText || t.Text == "" {
			return reply("Send part of the event name."), nil
		}

		events, err := m.dir.FindEventsByName(ctx, t.Text)
		if err != nil {
			return Result{}, fmt.Errorf("find events: %w", err)
		}
		events = activeOnly(events)

		switch len(events) {
		case 0:
			// Terminal failure per the flow contract.
			m.sessions.Delete(ctx, t.UserID)
			return reply(fmt.Sprintf("No open event matches %q.", t.Text)), nil
		case 1:
			return m.joinConfirmPrompt(ctx, s, events[0].ID)
		default:
			s.Candidates = eventIDs(events)
			m.sessions.Put(ctx, *s)
			r := reply("Several events match. Pick one:")
			r.Options = eventOptions(events)
			return r, nil
		}

	case session.StepConfirm:
		switch answer(t) {
		case answerYes:
			in := intent.JoinEvent{UserID: s.UserID, Token: s.Token, EventID: s.EventID}
			return Result{Handled: true, Intent: in}, nil
		case answerNo:
			m.sessions.Delete(ctx, t.UserID)
			return reply("Join cancelled."), nil
		default:
			return reply("Reply confirm or cancel."), nil
		}

	default:
		return Result{}, fmt.Errorf("join_event session at unknown step %q", s.Step)
	}
}

func (m *Machine) joinConfirmPrompt(ctx context.Context, s *session.Session, eventID int64) (Result, error) {
	s.EventID = eventID
	s.Step = session.StepConfirm
	s.Candidates = nil
	m.sessions.Put(ctx, *s)
	r := reply("Joining locks your stake until the event settles. Confirm?")
	r.Options = []string{"confirm", "cancel"}
	return r, nil
}

func (m *Machine) advanceConfirmAttendance(ctx context.Context, s *session.Session, t chat.Turn) (Result, error) {
	switch s.Step {
	case session.StepSelectEvent:
		id, ok := selectedEventID(t.Selection, s.Candidates)
		if t.Kind != chat.KindSelection || !ok {
			return reply("Pick one of the listed events."), nil
		}
		s.EventID = id
		s.Step = session.StepAwaitLocation
		s.Candidates = nil
		m.sessions.Put(ctx, *s)
		return reply("Share your location to confirm you're there."), nil

	case session.StepAwaitLocation:
		// Completion is driven by coordinates, not text.
		if t.Kind != chat.KindLocation || t.Location == nil {
			return reply("I need your location. Use the attachment menu to share it."), nil
		}
		in := intent.ConfirmAttendance{
			UserID:   s.UserID,
			Token:    s.Token,
			EventID:  s.EventID,
			Location: *t.Location,
		}
		return Result{Handled: true, Intent: in}, nil

	default:
		return Result{}, fmt.Errorf("confirm_attendance session at unknown step %q", s.Step)
	}
}

func (m *Machine) advanceCreateMemory(ctx context.Context, s *session.Session, t chat.Turn) (Result, error) {
	switch s.Step {
	case session.StepSelectEvent:
		id, ok := selectedEventID(t.Selection, s.Candidates)
		if t.Kind != chat.KindSelection || !ok {
			return reply("Pick one of the listed events."), nil
		}
		s.EventID = id
		s.Step = session.StepAwaitPhoto
		s.Candidates = nil
		m.sessions.Put(ctx, *s)
		return reply("Send the photo for this memory."), nil

	case session.StepAwaitPhoto:
		// Completion is driven by an image, not text.
		if t.Kind != chat.KindPhoto || t.PhotoRef == "" {
			return reply("I need a photo. Send one as an image."), nil
		}
		in := intent.CreateMemory{
			UserID:   s.UserID,
			Token:    s.Token,
			EventID:  s.EventID,
			PhotoRef: t.PhotoRef,
		}
		return Result{Handled: true, Intent: in}, nil

	default:
		return Result{}, fmt.Errorf("create_memory session at unknown step %q", s.Step)
	}
}
