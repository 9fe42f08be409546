package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/okian/meetstake/internal/adapters/http/ops"
	"github.com/okian/meetstake/internal/config"
	"github.com/okian/meetstake/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"
)

func TestMainComponents(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("MEETSTAKE_ADDR", ":8080")
			_ = os.Setenv("MEETSTAKE_QUEUE_SIZE", "1000")
			_ = os.Setenv("MEETSTAKE_WORKER_COUNT", "4")
			defer func() {
				_ = os.Unsetenv("MEETSTAKE_ADDR")
				_ = os.Unsetenv("MEETSTAKE_QUEUE_SIZE")
				_ = os.Unsetenv("MEETSTAKE_WORKER_COUNT")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})

			convey.Convey("And validation rejects the missing credentials", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When testing ops server creation", func() {
			server := ops.NewServer(stubStats{})
			convey.So(server, convey.ShouldNotBeNil)
		})

		convey.Convey("When testing metrics initialization", func() {
			manager := metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))
			convey.So(manager, convey.ShouldNotBeNil)
		})

		convey.Convey("When testing the system metrics updater", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.So(func() {
				startSystemMetricsUpdater(ctx)
			}, convey.ShouldNotPanic)
		})
	})
}

type stubStats struct{}

func (stubStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": false}
}
