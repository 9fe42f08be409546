// Package service wires the chat transport, the conversation machine and
// the orchestrator together. Inbound turns are pumped into a bounded queue
// and drained by a dispatcher that serializes each user's turns; the
// service is the dispatcher's handler and owns all reply delivery.
package service

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/okian/meetstake/internal/adapters/chat"
	turnqueue "github.com/okian/meetstake/internal/adapters/mq/queue"
	"github.com/okian/meetstake/internal/adapters/mq/worker"
	"github.com/okian/meetstake/internal/conversation"
	"github.com/okian/meetstake/internal/domain/intent"
	"github.com/okian/meetstake/internal/orchestrator"
	"github.com/okian/meetstake/internal/render"
	"github.com/okian/meetstake/pkg/logger"
	"github.com/okian/meetstake/pkg/metrics"
)

// Service runs the bot: transport in, conversation, execution, replies out.
type Service struct {
	mu sync.Mutex

	// Core components
	delivery   chat.Delivery
	machine    *conversation.Machine
	orch       *orchestrator.Orchestrator
	render     *render.Renderer
	queue      *turnqueue.InMemoryQueue
	dispatcher *worker.Dispatcher

	// Configuration
	queueSize int
	laneCount int

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithQueueSize bounds the inbound turn queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of dispatcher lanes.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.laneCount = count
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over its collaborators.
func New(delivery chat.Delivery, machine *conversation.Machine, orch *orchestrator.Orchestrator, r *render.Renderer, opts ...Option) *Service {
	s := &Service{
		delivery: delivery,
		machine:  machine,
		orch:     orch,
		render:   r,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Named("service")
	}

	return s
}

// Start launches the turn pump and the dispatcher. It returns immediately.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	var queueOpts []turnqueue.Option
	if s.queueSize > 0 {
		queueOpts = append(queueOpts,
			turnqueue.WithCapacity(s.queueSize),
			turnqueue.WithBufferSize(s.queueSize),
		)
	}
	s.queue = turnqueue.NewInMemoryQueue(queueOpts...)

	var workerOpts []worker.Option
	if s.laneCount > 0 {
		workerOpts = append(workerOpts, worker.WithLaneCount(s.laneCount))
	}
	s.dispatcher = worker.NewDispatcher(s.queue, s, workerOpts...)
	s.dispatcher.Start(ctx)

	// Pump transport updates into the queue. The queue closes when the
	// update stream ends, which drains the dispatcher.
	go func() {
		for t := range s.delivery.Updates(ctx) {
			if !s.queue.Enqueue(ctx, t) {
				s.logger.Warn(ctx, "turn dropped",
					logger.Int("user", int(t.UserID)),
					logger.String("kind", string(t.Kind)),
				)
			}
		}
		_ = s.queue.Close()
	}()

	s.started = true
	s.logger.Info(ctx, "service started",
		logger.Int("queueSize", s.queueSize),
		logger.Int("lanes", s.laneCount),
	)
	return nil
}

// Stop closes the queue and waits for in-flight turns to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	_ = s.queue.Close()
	err := s.dispatcher.Shutdown(ctx)

	s.started = false
	s.logger.Info(ctx, "service stopped")
	return err
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := map[string]interface{}{
		"started":   s.started,
		"queueSize": s.queueSize,
		"lanes":     s.laneCount,
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(context.Background())
	}
	return stats
}

// HandleTurn processes one inbound turn to completion, replies included.
// It implements worker.Handler; the dispatcher guarantees turns of one
// user arrive here strictly in order.
func (s *Service) HandleTurn(ctx context.Context, t worker.Turn) {
	user, created, err := s.orch.EnsureUser(ctx, t.UserID, t.UserName)
	if err != nil {
		s.logger.Error(ctx, "ensure user failed", logger.Int("user", int(t.UserID)), logger.Error(err))
		s.sendText(ctx, t.UserID, s.render.Failure(err))
		return
	}

	if t.Kind == chat.KindCommand {
		s.handleCommand(ctx, t, created)
		return
	}

	res, err := s.machine.Advance(ctx, t)
	if err != nil {
		s.sendText(ctx, t.UserID, s.render.Failure(err))
		return
	}
	if !res.Handled {
		metrics.RecordTurnUnhandled()
		s.sendText(ctx, t.UserID, "I wasn't expecting that, "+user.Name+". See /help for what I can do.")
		return
	}

	if res.Intent != nil {
		s.sendText(ctx, t.UserID, s.execute(ctx, res.Intent))
		return
	}
	s.reply(ctx, t.UserID, res)
}

// handleCommand routes a command turn: flow commands start a conversation,
// the rest answer immediately.
func (s *Service) handleCommand(ctx context.Context, t worker.Turn, created bool) {
	if flow, ok := conversation.FlowForCommand(t.Command); ok {
		res, err := s.machine.StartFlow(ctx, t.UserID, flow)
		if err != nil {
			s.sendText(ctx, t.UserID, s.render.Failure(err))
			return
		}
		s.reply(ctx, t.UserID, res)
		return
	}

	switch t.Command {
	case "start":
		user, _, err := s.orch.EnsureUser(ctx, t.UserID, t.UserName)
		if err != nil {
			s.sendText(ctx, t.UserID, s.render.Failure(err))
			return
		}
		s.sendText(ctx, t.UserID, s.render.Welcome(user, created))

	case "help":
		s.sendText(ctx, t.UserID, s.render.Help())

	case "cancel":
		s.reply(ctx, t.UserID, s.machine.Cancel(ctx, t.UserID))

	case "events":
		events, err := s.orch.ListEvents(ctx)
		if err != nil {
			s.sendText(ctx, t.UserID, s.render.Failure(err))
			return
		}
		s.sendText(ctx, t.UserID, s.render.EventList(events))

	case "balance", "wallet":
		amount, address, err := s.orch.Balance(ctx, t.UserID)
		if err != nil {
			s.sendText(ctx, t.UserID, s.render.Failure(err))
			return
		}
		s.sendText(ctx, t.UserID, s.render.BalanceLine(amount, address))

	case "finalize":
		id, ok := parseEventID(t.Args)
		if !ok {
			s.sendText(ctx, t.UserID, "Usage: /finalize <event id>. Find ids with /events.")
			return
		}
		res, err := s.orch.FinalizeEvent(ctx, t.UserID, id)
		if err != nil {
			s.sendText(ctx, t.UserID, s.render.Failure(err))
			return
		}
		s.sendText(ctx, t.UserID, s.render.Finalized(res))

	case "memories":
		id, ok := parseEventID(t.Args)
		if !ok {
			s.sendText(ctx, t.UserID, "Usage: /memories <event id>. Find ids with /events.")
			return
		}
		ev, urls, err := s.orch.MemoryLinks(ctx, id)
		if err != nil {
			s.sendText(ctx, t.UserID, s.render.Failure(err))
			return
		}
		s.sendText(ctx, t.UserID, s.render.MemoryList(ev.Name, urls))

	default:
		metrics.RecordTurnUnhandled()
		s.sendText(ctx, t.UserID, "I don't know that command. See /help.")
	}
}

// execute runs a completed intent and renders its outcome. Every branch
// returns user-facing text; errors are logged here and mapped by the
// renderer.
func (s *Service) execute(ctx context.Context, in intent.Intent) string {
	var (
		msg string
		err error
	)

	switch in := in.(type) {
	case intent.CreateEvent:
		var res orchestrator.CreateEventResult
		if res, err = s.orch.CreateEvent(ctx, in); err == nil {
			msg = s.render.EventCreated(res)
		}
	case intent.JoinEvent:
		var res orchestrator.JoinResult
		if res, err = s.orch.JoinEvent(ctx, in); err == nil {
			msg = s.render.Joined(res)
		}
	case intent.ConfirmAttendance:
		var res orchestrator.AttendanceResult
		if res, err = s.orch.ConfirmAttendance(ctx, in); err == nil {
			msg = s.render.Attended(res)
		}
	case intent.CreateMemory:
		var res orchestrator.MemoryResult
		if res, err = s.orch.CreateMemory(ctx, in); err == nil {
			msg = s.render.MemoryStored(res)
		}
	default:
		s.logger.Error(ctx, "intent with no executor", logger.String("flow", in.Flow()))
		return s.render.Failure(nil)
	}

	if err != nil {
		s.logger.Error(ctx, "intent failed",
			logger.String("flow", in.Flow()),
			logger.Error(err),
		)
		return s.render.Failure(err)
	}
	return msg
}

// reply delivers a conversation result: prompts as one message, with
// tappable options when the step asks for a pick.
func (s *Service) reply(ctx context.Context, userID int64, res conversation.Result) {
	if len(res.Prompts) == 0 {
		return
	}
	text := strings.Join(res.Prompts, "\n")
	if len(res.Options) > 0 {
		if err := s.delivery.SendOptions(ctx, userID, text, res.Options); err != nil {
			s.logger.Error(ctx, "send options failed", logger.Int("user", int(userID)), logger.Error(err))
		}
		return
	}
	s.sendText(ctx, userID, text)
}

func (s *Service) sendText(ctx context.Context, userID int64, text string) {
	if err := s.delivery.SendText(ctx, userID, text); err != nil {
		s.logger.Error(ctx, "send failed", logger.Int("user", int(userID)), logger.Error(err))
	}
}

func parseEventID(args string) (int64, bool) {
	args = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(args), "#"))
	if args == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
