package swagger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestRegister(t *testing.T) {
	convey.Convey("Given a mux with the docs routes", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux)

		get := func(method, path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(method, path, http.NoBody))
			return w
		}

		convey.Convey("The OpenAPI document is served and covers every route", func() {
			w := get(http.MethodGet, "/openapi.yaml")
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "application/yaml; charset=utf-8")
			for _, route := range []string{"/sessions:", "/analyze:", "/verdicts/{session_id}:", "/suspects:", "/suspects/{session_id}:", "/model:", "/model/train:", "/stats:", "/healthz:"} {
				convey.So(strings.Contains(w.Body.String(), "  "+route), convey.ShouldBeTrue)
			}
		})

		convey.Convey("The docs page loads the local document", func() {
			w := get(http.MethodGet, "/api-docs")
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "text/html; charset=utf-8")
			convey.So(w.Body.String(), convey.ShouldContainSubstring, "Redoc.init('/openapi.yaml'")
		})

		convey.Convey("Other methods are not found", func() {
			convey.So(get(http.MethodPost, "/openapi.yaml").Code, convey.ShouldEqual, http.StatusNotFound)
			convey.So(get(http.MethodDelete, "/api-docs").Code, convey.ShouldEqual, http.StatusNotFound)
		})
	})

	convey.Convey("Given a nil mux", t, func() {
		convey.So(func() { Register(context.Background(), nil) }, convey.ShouldPanic)
	})
}
