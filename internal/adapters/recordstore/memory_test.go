package recordstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/meetstake/internal/adapters/recordstore"
	"github.com/okian/meetstake/internal/domain/model"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStoreEvents(t *testing.T) {
	Convey("Given an empty record store", t, func() {
		store := recordstore.NewMemoryStore()
		ctx := context.Background()
		when := time.Now().Add(24 * time.Hour)

		Convey("When inserting an event", func() {
			err := store.InsertEvent(ctx, model.Event{
				ID:      7,
				Name:    "Beach Cleanup",
				When:    when,
				Stake:   decimal.RequireFromString("0.01"),
				Creator: "0xabc",
			})
			So(err, ShouldBeNil)

			Convey("Then it can be read back by ledger id", func() {
				e, err := store.GetEvent(ctx, 7)
				So(err, ShouldBeNil)
				So(e.Name, ShouldEqual, "Beach Cleanup")
				So(e.Finalized, ShouldBeFalse)
			})

			Convey("And inserting the same id again is a duplicate", func() {
				err := store.InsertEvent(ctx, model.Event{ID: 7, Name: "Other"})
				So(err, ShouldEqual, recordstore.ErrDuplicate)
			})

			Convey("And finalizing it flips the flag", func() {
				So(store.SetFinalized(ctx, 7), ShouldBeNil)
				e, _ := store.GetEvent(ctx, 7)
				So(e.Finalized, ShouldBeTrue)
			})

			Convey("And name search is case-insensitive", func() {
				found, err := store.FindEventsByName(ctx, "beach")
				So(err, ShouldBeNil)
				So(found, ShouldHaveLength, 1)
				So(found[0].ID, ShouldEqual, 7)
			})
		})

		Convey("When listing with a filter", func() {
			So(store.InsertEvent(ctx, model.Event{ID: 1, Name: "a", When: when, Creator: "0xaa"}), ShouldBeNil)
			So(store.InsertEvent(ctx, model.Event{ID: 2, Name: "b", When: when.Add(time.Hour), Creator: "0xbb"}), ShouldBeNil)
			So(store.SetFinalized(ctx, 2), ShouldBeNil)

			Convey("Then ActiveOnly excludes finalized events", func() {
				events, err := store.ListEvents(ctx, recordstore.EventFilter{ActiveOnly: true})
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 1)
				So(events[0].ID, ShouldEqual, 1)
			})

			Convey("Then Creator restricts to that address", func() {
				events, err := store.ListEvents(ctx, recordstore.EventFilter{Creator: "0xbb"})
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 1)
				So(events[0].ID, ShouldEqual, 2)
			})

			Convey("Then the zero filter lists all ordered by date", func() {
				events, err := store.ListEvents(ctx, recordstore.EventFilter{})
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 2)
				So(events[0].ID, ShouldEqual, 1)
			})
		})

		Convey("When looking up a missing event", func() {
			_, err := store.GetEvent(ctx, 999)

			Convey("Then ErrNotFound is returned", func() {
				So(err, ShouldEqual, recordstore.ErrNotFound)
			})
		})
	})
}

func TestMemoryStoreParticipants(t *testing.T) {
	Convey("Given a store with one active event", t, func() {
		store := recordstore.NewMemoryStore()
		ctx := context.Background()
		when := time.Now().Add(24 * time.Hour)
		So(store.InsertEvent(ctx, model.Event{ID: 1, Name: "Meetup", When: when, Creator: "0xaa"}), ShouldBeNil)

		Convey("When a participant joins", func() {
			err := store.InsertParticipant(ctx, model.Participant{
				EventID:   1,
				Address:   "0xuser",
				HasStaked: true,
				JoinedAt:  time.Now(),
			})
			So(err, ShouldBeNil)

			Convey("Then the row is readable", func() {
				p, err := store.GetParticipant(ctx, 1, "0xuser")
				So(err, ShouldBeNil)
				So(p.HasStaked, ShouldBeTrue)
				So(p.Attended, ShouldBeFalse)
			})

			Convey("And a second insert for the same pair is rejected", func() {
				err := store.InsertParticipant(ctx, model.Participant{EventID: 1, Address: "0xuser"})
				So(err, ShouldEqual, recordstore.ErrDuplicate)
			})

			Convey("And the event shows up as attendable", func() {
				events, err := store.AttendableEvents(ctx, "0xuser")
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 1)
			})

			Convey("And marking attendance records the check-in", func() {
				loc := &model.Location{Lat: 1, Lng: 2}
				So(store.SetAttended(ctx, 1, "0xuser", loc, time.Now()), ShouldBeNil)

				p, _ := store.GetParticipant(ctx, 1, "0xuser")
				So(p.Attended, ShouldBeTrue)
				So(p.CheckIn.Lat, ShouldEqual, 1)

				events, _ := store.AttendableEvents(ctx, "0xuser")
				So(events, ShouldBeEmpty)
			})

			Convey("And finalizing the event removes it from attendable", func() {
				So(store.SetFinalized(ctx, 1), ShouldBeNil)
				events, _ := store.AttendableEvents(ctx, "0xuser")
				So(events, ShouldBeEmpty)
			})
		})

		Convey("When marking attendance for a user that never joined", func() {
			err := store.SetAttended(ctx, 1, "0xghost", nil, time.Now())

			Convey("Then ErrNotFound is returned", func() {
				So(err, ShouldEqual, recordstore.ErrNotFound)
			})
		})
	})
}

func TestMemoryStoreUsersAndMemories(t *testing.T) {
	Convey("Given an empty record store", t, func() {
		store := recordstore.NewMemoryStore()
		ctx := context.Background()
		now := time.Now()

		Convey("When creating a user", func() {
			u := model.User{ID: 42, Name: "sam", Address: "0xsam", CreatedAt: now, LastActive: now}
			So(store.CreateUser(ctx, u), ShouldBeNil)

			Convey("Then identity is immutable but name and last-active update", func() {
				So(store.CreateUser(ctx, u), ShouldEqual, recordstore.ErrDuplicate)

				later := now.Add(time.Hour)
				So(store.TouchUser(ctx, 42, "sammy", later), ShouldBeNil)

				got, err := store.GetUser(ctx, 42)
				So(err, ShouldBeNil)
				So(got.Address, ShouldEqual, "0xsam")
				So(got.Name, ShouldEqual, "sammy")
				So(got.LastActive, ShouldEqual, later)
			})
		})

		Convey("When storing memory assets", func() {
			So(store.InsertMemory(ctx, model.MemoryAsset{ID: "m1", EventID: 1, BlobID: "b1", CreatedAt: now}), ShouldBeNil)
			So(store.InsertMemory(ctx, model.MemoryAsset{ID: "m2", EventID: 1, BlobID: "b2", CreatedAt: now.Add(time.Minute)}), ShouldBeNil)

			Convey("Then they list newest first", func() {
				assets, err := store.ListMemories(ctx, 1)
				So(err, ShouldBeNil)
				So(assets, ShouldHaveLength, 2)
				So(assets[0].ID, ShouldEqual, "m2")
			})
		})
	})
}
