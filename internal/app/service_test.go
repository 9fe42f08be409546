package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/meetstake/internal/adapters/chat"
	"github.com/okian/meetstake/internal/adapters/ledger"
	"github.com/okian/meetstake/internal/adapters/recordstore"
	service "github.com/okian/meetstake/internal/app"
	"github.com/okian/meetstake/internal/conversation"
	"github.com/okian/meetstake/internal/domain/session"
	"github.com/okian/meetstake/internal/orchestrator"
	"github.com/okian/meetstake/internal/render"
	"github.com/okian/meetstake/pkg/logger"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

// fakeDelivery records outbound messages and feeds scripted inbound turns.
type fakeDelivery struct {
	mu      sync.Mutex
	updates chan chat.Turn
	texts   []string
	options [][]string
}

func newFakeDelivery() *fakeDelivery {
	return &fakeDelivery{updates: make(chan chat.Turn, 64)}
}

func (d *fakeDelivery) Updates(_ context.Context) <-chan chat.Turn { return d.updates }

func (d *fakeDelivery) SendText(_ context.Context, _ int64, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
	return nil
}

func (d *fakeDelivery) SendOptions(_ context.Context, _ int64, text string, options []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
	d.options = append(d.options, options)
	return nil
}

func (d *fakeDelivery) last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.texts) == 0 {
		return ""
	}
	return d.texts[len(d.texts)-1]
}

func (d *fakeDelivery) all() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.texts...)
}

// fakeBlobs and fakePhotos satisfy the orchestrator's media collaborators.
type fakeBlobs struct{}

func (fakeBlobs) Store(_ context.Context, _ []byte) (string, error) { return "blob-1", nil }
func (fakeBlobs) URL(id string) string                              { return "https://blobs.example/" + id }

type fakePhotos struct{}

func (fakePhotos) FetchFile(_ context.Context, _ string) ([]byte, error) {
	return []byte("jpeg-bytes"), nil
}

type botWorld struct {
	delivery *fakeDelivery
	store    *recordstore.MemoryStore
	ledger   *ledger.FakeLedger
	svc      *service.Service
}

func newBotWorld() *botWorld {
	w := &botWorld{
		delivery: newFakeDelivery(),
		store:    recordstore.NewMemoryStore(),
		ledger:   ledger.NewFakeLedger(),
	}
	orch := orchestrator.New(w.store, w.ledger, ledger.NewFakeKeyring("0xoperator"), fakeBlobs{}, fakePhotos{})
	machine := conversation.New(session.NewMemoryStore(), orch,
		conversation.WithClock(func() time.Time {
			return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		}),
	)
	w.svc = service.New(w.delivery, machine, orch, render.New("ETH", "Base Sepolia"))
	return w
}

func command(userID int64, cmd, args string) chat.Turn {
	return chat.Turn{UserID: userID, UserName: "sam", Kind: chat.KindCommand, Command: cmd, Args: args}
}

func text(userID int64, s string) chat.Turn {
	return chat.Turn{UserID: userID, UserName: "sam", Kind: chat.KindText, Text: s}
}

func TestHandleTurn_Commands(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running bot world", t, func() {
		w := newBotWorld()

		Convey("When a new user sends /start", func() {
			w.svc.HandleTurn(ctx, command(7, "start", ""))

			Convey("Then the welcome mentions the fresh wallet address", func() {
				So(w.delivery.last(), ShouldContainSubstring, "Welcome, sam")
				So(w.delivery.last(), ShouldContainSubstring, "0xuser7")
			})
		})

		Convey("When the same user sends /start twice", func() {
			w.svc.HandleTurn(ctx, command(7, "start", ""))
			w.svc.HandleTurn(ctx, command(7, "start", ""))

			So(w.delivery.last(), ShouldContainSubstring, "Welcome back")
		})

		Convey("When the user asks for /help", func() {
			w.svc.HandleTurn(ctx, command(7, "help", ""))

			So(w.delivery.last(), ShouldContainSubstring, "/create_event")
			So(w.delivery.last(), ShouldContainSubstring, "/cancel")
		})

		Convey("When the user asks for /balance", func() {
			w.svc.HandleTurn(ctx, command(7, "start", ""))
			w.ledger.SetBalance("0xuser7", decimal.RequireFromString("1.25"))
			w.svc.HandleTurn(ctx, command(7, "balance", ""))

			So(w.delivery.last(), ShouldContainSubstring, "1.25 ETH")
			So(w.delivery.last(), ShouldContainSubstring, "0xuser7")
		})

		Convey("When the user lists events before any exist", func() {
			w.svc.HandleTurn(ctx, command(7, "events", ""))

			So(w.delivery.last(), ShouldContainSubstring, "No events yet")
		})

		Convey("When an unknown command arrives", func() {
			w.svc.HandleTurn(ctx, command(7, "frobnicate", ""))

			So(w.delivery.last(), ShouldContainSubstring, "/help")
		})

		Convey("When /finalize has no usable argument", func() {
			w.svc.HandleTurn(ctx, command(7, "finalize", ""))
			So(w.delivery.last(), ShouldContainSubstring, "Usage")

			w.svc.HandleTurn(ctx, command(7, "finalize", "soon"))
			So(w.delivery.last(), ShouldContainSubstring, "Usage")
		})

		Convey("When a bare text arrives with no active session", func() {
			w.svc.HandleTurn(ctx, text(7, "hello?"))

			So(w.delivery.last(), ShouldContainSubstring, "/help")
		})
	})
}

func TestHandleTurn_CreateEventFlow(t *testing.T) {
	ctx := context.Background()

	Convey("Given a user walking the create flow end to end", t, func() {
		w := newBotWorld()

		w.svc.HandleTurn(ctx, command(7, "create_event", ""))
		So(w.delivery.last(), ShouldContainSubstring, "called")

		w.svc.HandleTurn(ctx, text(7, "Beach Cleanup"))
		So(w.delivery.last(), ShouldContainSubstring, "When")

		w.svc.HandleTurn(ctx, text(7, "2026-09-01 10:00"))
		So(w.delivery.last(), ShouldContainSubstring, "stake")

		w.svc.HandleTurn(ctx, text(7, "0.01"))
		So(w.delivery.last(), ShouldContainSubstring, "Where")

		Convey("When the final location answer arrives", func() {
			w.svc.HandleTurn(ctx, text(7, "the old pier"))

			Convey("Then the confirmed event is announced and mirrored", func() {
				So(w.delivery.last(), ShouldContainSubstring, "Beach Cleanup")
				So(w.delivery.last(), ShouldContainSubstring, "Tx 0xtx")

				events, err := w.store.ListEvents(ctx, recordstore.EventFilter{})
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 1)
				So(events[0].Venue, ShouldEqual, "the old pier")
			})

			Convey("And /events now lists it", func() {
				w.svc.HandleTurn(ctx, command(7, "events", ""))
				So(w.delivery.last(), ShouldContainSubstring, "#1 Beach Cleanup")
			})
		})

		Convey("When a stray /cancel interrupts mid-flow", func() {
			w.svc.HandleTurn(ctx, command(7, "cancel", ""))
			So(w.delivery.last(), ShouldEqual, "Cancelled.")

			w.svc.HandleTurn(ctx, text(7, "the old pier"))
			So(w.delivery.last(), ShouldContainSubstring, "/help")
		})
	})
}

func TestHandleTurn_JoinAndSettle(t *testing.T) {
	ctx := context.Background()

	Convey("Given an existing event", t, func() {
		w := newBotWorld()

		w.svc.HandleTurn(ctx, command(7, "create_event", ""))
		w.svc.HandleTurn(ctx, text(7, "Beach Cleanup"))
		w.svc.HandleTurn(ctx, text(7, "2026-09-01 10:00"))
		w.svc.HandleTurn(ctx, text(7, "0.01"))
		w.svc.HandleTurn(ctx, text(7, "the old pier"))

		Convey("When another user joins and confirms", func() {
			w.svc.HandleTurn(ctx, command(8, "join_event", ""))
			w.svc.HandleTurn(ctx, text(8, "beach"))
			So(w.delivery.last(), ShouldContainSubstring, "Confirm")

			w.svc.HandleTurn(ctx, chat.Turn{UserID: 8, UserName: "kim", Kind: chat.KindSelection, Selection: "confirm"})

			Convey("Then the stake lock is announced", func() {
				So(w.delivery.last(), ShouldContainSubstring, "locked")

				p, err := w.store.GetParticipant(ctx, 1, "0xuser8")
				So(err, ShouldBeNil)
				So(p.HasStaked, ShouldBeTrue)
			})

			Convey("And joining again is rejected before the ledger", func() {
				before := w.ledger.Submissions

				w.svc.HandleTurn(ctx, command(8, "join_event", ""))
				w.svc.HandleTurn(ctx, text(8, "beach"))
				w.svc.HandleTurn(ctx, chat.Turn{UserID: 8, Kind: chat.KindSelection, Selection: "confirm"})

				So(w.delivery.last(), ShouldContainSubstring, "already joined")
				So(w.ledger.Submissions, ShouldEqual, before)
			})

			Convey("And the creator settles it with /finalize", func() {
				w.svc.HandleTurn(ctx, command(7, "finalize", "1"))
				So(w.delivery.last(), ShouldContainSubstring, "settled")

				ev, err := w.store.GetEvent(ctx, 1)
				So(err, ShouldBeNil)
				So(ev.Finalized, ShouldBeTrue)
			})

			Convey("And a non-creator cannot settle it", func() {
				w.svc.HandleTurn(ctx, command(8, "finalize", "1"))
				So(w.delivery.last(), ShouldContainSubstring, "creator")
			})
		})
	})
}

func TestHandleTurn_Memories(t *testing.T) {
	ctx := context.Background()

	Convey("Given a settled event with one memory", t, func() {
		w := newBotWorld()

		w.svc.HandleTurn(ctx, command(7, "create_event", ""))
		w.svc.HandleTurn(ctx, text(7, "Beach Cleanup"))
		w.svc.HandleTurn(ctx, text(7, "2026-09-01 10:00"))
		w.svc.HandleTurn(ctx, text(7, "0.01"))
		w.svc.HandleTurn(ctx, text(7, "the old pier"))

		w.svc.HandleTurn(ctx, command(8, "join_event", ""))
		w.svc.HandleTurn(ctx, text(8, "beach"))
		w.svc.HandleTurn(ctx, chat.Turn{UserID: 8, Kind: chat.KindSelection, Selection: "confirm"})
		w.svc.HandleTurn(ctx, command(7, "finalize", "1"))

		w.svc.HandleTurn(ctx, command(7, "memory", ""))
		w.svc.HandleTurn(ctx, chat.Turn{UserID: 7, Kind: chat.KindSelection, Selection: "#1"})
		w.svc.HandleTurn(ctx, chat.Turn{UserID: 7, Kind: chat.KindPhoto, PhotoRef: "file-99"})

		So(w.delivery.last(), ShouldContainSubstring, "Memory saved")

		Convey("When the user lists /memories", func() {
			w.svc.HandleTurn(ctx, command(7, "memories", "1"))

			So(w.delivery.last(), ShouldContainSubstring, "https://blobs.example/blob-1")
		})

		Convey("When the id does not exist", func() {
			w.svc.HandleTurn(ctx, command(7, "memories", "42"))

			So(w.delivery.last(), ShouldContainSubstring, "can't find")
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		w := newBotWorld()
		svc := w.svc
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When turns arrive through the transport", func() {
			w.delivery.updates <- command(7, "help", "")
			w.delivery.updates <- command(7, "events", "")
			close(w.delivery.updates)

			deadline := time.Now().Add(2 * time.Second)
			for len(w.delivery.all()) < 2 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then both were processed before shutdown", func() {
				sent := w.delivery.all()
				So(sent, ShouldHaveLength, 2)
				joined := strings.Join(sent, "\n")
				So(joined, ShouldContainSubstring, "/create_event")
				So(joined, ShouldContainSubstring, "No events yet")
			})
		})
	})
}
