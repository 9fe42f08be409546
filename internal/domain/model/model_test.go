package model_test

import (
	"testing"
	"time"

	"github.com/okian/meetstake/internal/domain/model"
	"github.com/shopspring/decimal"
	"github.com/smartystreets/goconvey/convey"
)

func TestEventActive(t *testing.T) {
	convey.Convey("Given an event", t, func() {
		ev := model.Event{
			ID:    1,
			Name:  "Beach Cleanup",
			When:  time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
			Stake: decimal.RequireFromString("0.01"),
		}

		convey.Convey("When it has not been finalized", func() {
			convey.So(ev.Active(), convey.ShouldBeTrue)
		})

		convey.Convey("When it has been finalized", func() {
			ev.Finalized = true
			convey.So(ev.Active(), convey.ShouldBeFalse)
		})
	})
}
