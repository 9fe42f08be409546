package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/meetstake/internal/adapters/ledger"
	"github.com/okian/meetstake/internal/adapters/recordstore"
	"github.com/okian/meetstake/internal/domain/model"
	"github.com/okian/meetstake/internal/orchestrator"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

// seedLedgerEvent creates an event directly on the fake ledger and mirrors
// it, simulating the state after a confirmed creation.
func seedLedgerEvent(ctx context.Context, store *recordstore.MemoryStore, fake *ledger.FakeLedger) int64 {
	id, _, err := fake.CreateEvent(ctx, ledger.StaticSigner("0xcreator"), "Beach Cleanup",
		time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), decimal.RequireFromString("0.01"))
	So(err, ShouldBeNil)

	So(store.InsertEvent(ctx, model.Event{
		ID:      id,
		Name:    "Beach Cleanup",
		When:    time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		Stake:   decimal.RequireFromString("0.01"),
		Creator: "0xcreator",
	}), ShouldBeNil)
	return id
}

func TestReconcilerSweep(t *testing.T) {
	ctx := context.Background()

	Convey("Given a mirror missing a confirmed stake", t, func() {
		store := recordstore.NewMemoryStore()
		fake := ledger.NewFakeLedger()
		eventID := seedLedgerEvent(ctx, store, fake)

		// Stake confirmed on-ledger, mirror write lost.
		_, err := fake.JoinEvent(ctx, ledger.StaticSigner("0xuser8"), eventID, decimal.RequireFromString("0.01"))
		So(err, ShouldBeNil)

		Convey("When a sweep runs", func() {
			r := orchestrator.NewReconciler(store, fake)
			So(r.Sweep(ctx), ShouldBeNil)

			Convey("Then the participant row is repaired from ledger state", func() {
				p, err := store.GetParticipant(ctx, eventID, "0xuser8")
				So(err, ShouldBeNil)
				So(p.HasStaked, ShouldBeTrue)
			})

			Convey("And a second sweep changes nothing", func() {
				So(r.Sweep(ctx), ShouldBeNil)

				participants, err := store.ListParticipants(ctx, eventID)
				So(err, ShouldBeNil)
				So(participants, ShouldHaveLength, 1)
			})
		})
	})

	Convey("Given a mirror missing a confirmed attendance", t, func() {
		store := recordstore.NewMemoryStore()
		fake := ledger.NewFakeLedger()
		eventID := seedLedgerEvent(ctx, store, fake)

		_, err := fake.JoinEvent(ctx, ledger.StaticSigner("0xuser8"), eventID, decimal.RequireFromString("0.01"))
		So(err, ShouldBeNil)
		So(store.InsertParticipant(ctx, model.Participant{
			EventID: eventID, Address: "0xuser8", HasStaked: true,
		}), ShouldBeNil)

		// Attendance confirmed on-ledger, mirror write lost.
		_, err = fake.MarkAttendance(ctx, ledger.StaticSigner("0xoperator"), eventID, "0xuser8")
		So(err, ShouldBeNil)

		Convey("When a sweep runs", func() {
			r := orchestrator.NewReconciler(store, fake)
			So(r.Sweep(ctx), ShouldBeNil)

			Convey("Then the attendance flag is repaired without a location", func() {
				p, err := store.GetParticipant(ctx, eventID, "0xuser8")
				So(err, ShouldBeNil)
				So(p.Attended, ShouldBeTrue)
				So(p.CheckIn, ShouldBeNil)
			})
		})
	})

	Convey("Given a mirror missing a finalization", t, func() {
		store := recordstore.NewMemoryStore()
		fake := ledger.NewFakeLedger()
		eventID := seedLedgerEvent(ctx, store, fake)

		_, err := fake.FinalizeEvent(ctx, ledger.StaticSigner("0xoperator"), eventID)
		So(err, ShouldBeNil)

		Convey("When a sweep runs", func() {
			r := orchestrator.NewReconciler(store, fake)
			So(r.Sweep(ctx), ShouldBeNil)

			Convey("Then the finalized flag is repaired", func() {
				ev, err := store.GetEvent(ctx, eventID)
				So(err, ShouldBeNil)
				So(ev.Finalized, ShouldBeTrue)
			})
		})
	})

	Convey("Given an event mirrored but unknown to the ledger", t, func() {
		store := recordstore.NewMemoryStore()
		fake := ledger.NewFakeLedger()

		So(store.InsertEvent(ctx, model.Event{
			ID:   42,
			Name: "Phantom",
			When: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		}), ShouldBeNil)

		Convey("When a sweep runs", func() {
			r := orchestrator.NewReconciler(store, fake)

			Convey("Then the event is skipped without failing the sweep", func() {
				So(r.Sweep(ctx), ShouldBeNil)
			})
		})
	})

	Convey("Given a reconciler running on an interval", t, func() {
		store := recordstore.NewMemoryStore()
		fake := ledger.NewFakeLedger()
		eventID := seedLedgerEvent(ctx, store, fake)

		_, err := fake.JoinEvent(ctx, ledger.StaticSigner("0xuser8"), eventID, decimal.RequireFromString("0.01"))
		So(err, ShouldBeNil)

		Convey("When it runs until cancelled", func() {
			r := orchestrator.NewReconciler(store, fake,
				orchestrator.WithSweepInterval(5*time.Millisecond))

			rctx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				r.Run(rctx)
				close(done)
			}()

			time.Sleep(30 * time.Millisecond)
			cancel()
			<-done

			Convey("Then the divergence was repaired in the background", func() {
				_, err := store.GetParticipant(ctx, eventID, "0xuser8")
				So(err, ShouldBeNil)
			})
		})
	})
}
