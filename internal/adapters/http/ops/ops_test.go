package ops_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/okian/meetstake/internal/adapters/http/ops"
	. "github.com/smartystreets/goconvey/convey"
)

type stubStats struct{}

func (stubStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true, "lanes": 4}
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	ops.NewServer(stubStats{}).Register(context.Background(), mux)
	return mux
}

func TestOpsEndpoints(t *testing.T) {
	Convey("Given the registered ops routes", t, func() {
		mux := newMux()

		Convey("When GET /stats is requested", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

			Convey("Then the runtime snapshot comes back as JSON", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")

				var body map[string]interface{}
				So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
				So(body["started"], ShouldEqual, true)
				So(body["lanes"], ShouldEqual, 4)
			})
		})

		Convey("When /stats is requested with the wrong method", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stats", nil))

			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When GET /healthz is requested", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			Convey("Then the metrics exposition is served", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, "meetstake_")
			})
		})
	})
}

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given a handler wrapped in the metrics middleware", t, func() {
		called := false
		h := ops.MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
			called = true
			w.WriteHeader(http.StatusTeapot)
		}, "test")

		Convey("When a request passes through", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			Convey("Then the inner handler runs and the status is preserved", func() {
				So(called, ShouldBeTrue)
				So(rec.Code, ShouldEqual, http.StatusTeapot)
			})
		})
	})
}
