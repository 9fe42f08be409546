package idempotency_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/okian/meetstake/internal/domain/idempotency"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryRegistry(t *testing.T) {
	Convey("Given a new registry", t, func() {
		ctx := context.Background()

		Convey("When recording a fresh token", func() {
			r := idempotency.NewInMemoryRegistry()
			seen := r.SeenAndRecord(ctx, "tok-1")

			Convey("Then it is newly recorded", func() {
				So(seen, ShouldBeFalse)
				So(r.Size(), ShouldEqual, 1)
			})

			Convey("And recording the same token again reports it as seen", func() {
				So(r.SeenAndRecord(ctx, "tok-1"), ShouldBeTrue)
				So(r.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a token is unrecorded", func() {
			r := idempotency.NewInMemoryRegistry()
			r.SeenAndRecord(ctx, "tok-1")
			r.Unrecord(ctx, "tok-1")

			Convey("Then it can be recorded again", func() {
				So(r.SeenAndRecord(ctx, "tok-1"), ShouldBeFalse)
				So(r.Size(), ShouldEqual, 1)
			})
		})

		Convey("When unrecording a token that was never recorded", func() {
			r := idempotency.NewInMemoryRegistry()
			r.Unrecord(ctx, "ghost")

			Convey("Then the registry is unchanged", func() {
				So(r.Size(), ShouldEqual, 0)
			})
		})

		Convey("When the bound is exceeded", func() {
			r := idempotency.NewInMemoryRegistry(idempotency.WithMaxSize(10))
			for i := 0; i < 25; i++ {
				r.SeenAndRecord(ctx, fmt.Sprintf("tok-%d", i))
			}

			Convey("Then recent tokens are still remembered", func() {
				So(r.SeenAndRecord(ctx, "tok-24"), ShouldBeTrue)
				So(r.SeenAndRecord(ctx, "tok-20"), ShouldBeTrue)
			})

			Convey("And the size stays bounded to two generations", func() {
				So(r.Size(), ShouldBeLessThanOrEqualTo, 20)
			})
		})
	})
}
