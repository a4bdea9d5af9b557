package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		SetOutput(&buf)
		defer SetOutput(nil)
		defer func() { _ = SetFormat(FormatText) }()
		So(SetLevelString("info"), ShouldBeNil)

		Convey("When json format is selected", func() {
			So(SetFormat("JSON"), ShouldBeNil)
			Named("classifier").Info(context.Background(), "trained",
				Int("examples", 6),
				Int64("seed", 42),
				Bool("fallback", false),
				Duration("took", time.Second),
				Error(errors.New("boom")),
			)

			Convey("Then a structured record is written", func() {
				var rec map[string]any
				So(json.Unmarshal(buf.Bytes(), &rec), ShouldBeNil)
				So(rec["msg"], ShouldEqual, "trained")
				So(rec["component"], ShouldEqual, "classifier")
				So(rec["examples"], ShouldEqual, 6.0)
				So(rec["fallback"], ShouldEqual, false)
				So(rec["source"], ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When a record is below the level", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			Get().Info(context.Background(), "hidden")
			Get().Warn(context.Background(), "shown")

			Convey("Then only enabled records are written", func() {
				So(strings.Contains(buf.String(), "hidden"), ShouldBeFalse)
				So(strings.Contains(buf.String(), "shown"), ShouldBeTrue)
			})
			So(SetLevelString("info"), ShouldBeNil)
		})

		Convey("When an unknown format or level is given", func() {
			Convey("Then an error is returned", func() {
				So(SetFormat("xml"), ShouldNotBeNil)
				So(SetLevelString("loud"), ShouldNotBeNil)
			})
		})
	})
}
