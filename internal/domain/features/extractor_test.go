package features_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/humancheck/internal/domain/features"
	"github.com/okian/humancheck/internal/domain/motion"
	. "github.com/smartystreets/goconvey/convey"
)

func trace(points ...[3]float64) []motion.Sample {
	out := make([]motion.Sample, len(points))
	for i, p := range points {
		out[i] = motion.Sample{Timestamp: p[0], X: p[1], Y: p[2]}
	}
	return out
}

func TestExtract(t *testing.T) {
	Convey("Given a default extractor", t, func() {
		e := features.NewExtractor()

		Convey("When the trace moves at constant velocity", func() {
			v, err := e.Extract(trace(
				[3]float64{0, 0, 0},
				[3]float64{4, 2, 0},
				[3]float64{8, 4, 0},
				[3]float64{12, 6, 0},
				[3]float64{16, 8, 0},
			))

			Convey("Then the spread terms are zero and the path is direct", func() {
				So(err, ShouldBeNil)
				So(v.VelocityStd, ShouldEqual, 0)
				So(v.AccelerationStd, ShouldEqual, 0)
				So(v.VelocityMean, ShouldEqual, 0.5)
				So(v.PathEfficiency, ShouldEqual, 1)
				So(v.PauseRatio, ShouldEqual, 0)
				So(v.DirectionChanges, ShouldEqual, 0)
			})
		})

		Convey("When the trace returns to its start", func() {
			v, err := e.Extract(trace(
				[3]float64{0, 0, 0},
				[3]float64{1, 1, 0},
				[3]float64{2, 1, 1},
				[3]float64{3, 0, 1},
				[3]float64{4, 0, 0},
			))

			Convey("Then path efficiency is zero", func() {
				So(err, ShouldBeNil)
				So(v.PathEfficiency, ShouldEqual, 0)
			})
		})

		Convey("When the path takes two right-angle turns", func() {
			v, err := e.Extract(trace(
				[3]float64{0, 0, 0},
				[3]float64{1, 1, 0},
				[3]float64{2, 2, 0},
				[3]float64{3, 2, 1},
				[3]float64{4, 3, 1},
			))

			Convey("Then exactly two direction changes are counted", func() {
				So(err, ShouldBeNil)
				So(v.DirectionChanges, ShouldEqual, 2)
			})
		})

		Convey("When a leftward trace wobbles across the ±π heading seam", func() {
			v, err := e.Extract(trace(
				[3]float64{0, 100, 0},
				[3]float64{10, 90, 0.1},
				[3]float64{20, 80, 0},
				[3]float64{30, 70, 0.1},
				[3]float64{40, 60, 0},
			))

			Convey("Then headings are compared on the circle and no turn is counted", func() {
				So(err, ShouldBeNil)
				So(v.DirectionChanges, ShouldEqual, 0)
			})
		})

		Convey("When the trace reverses", func() {
			v, err := e.Extract(trace(
				[3]float64{0, 0, 0},
				[3]float64{1, 1, 0},
				[3]float64{2, 2, 0},
				[3]float64{3, 1, 0},
			))

			Convey("Then the reversal counts once", func() {
				So(err, ShouldBeNil)
				So(v.DirectionChanges, ShouldEqual, 1)
			})
		})

		Convey("When rows are permuted", func() {
			ordered := trace(
				[3]float64{0, 0, 0},
				[3]float64{1, 1, 0},
				[3]float64{2, 3, 0},
			)
			permuted := trace(
				[3]float64{0, 0, 0},
				[3]float64{2, 3, 0},
				[3]float64{1, 1, 0},
			)
			a, errA := e.Extract(ordered)
			b, errB := e.Extract(permuted)

			Convey("Then velocity features differ", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(a.VelocityMean, ShouldEqual, 1.5)
				So(b.VelocityMean, ShouldEqual, 1.75)
				So(a.VelocityStd, ShouldNotEqual, b.VelocityStd)
			})
		})

		Convey("When only two samples exist", func() {
			v, err := e.Extract(trace(
				[3]float64{0, 0, 0},
				[3]float64{2, 3, 4},
			))

			Convey("Then the degenerate statistics are zero", func() {
				So(err, ShouldBeNil)
				So(v.VelocityMean, ShouldEqual, 2.5)
				So(v.VelocityStd, ShouldEqual, 0)
				So(v.AccelerationStd, ShouldEqual, 0)
				So(v.PathEfficiency, ShouldEqual, 1)
			})
		})

		Convey("When two samples share a timestamp", func() {
			v, err := e.Extract(trace(
				[3]float64{0, 0, 0},
				[3]float64{1, 1, 0},
				[3]float64{1, 2, 0},
				[3]float64{2, 3, 0},
			))

			Convey("Then the undefined step is skipped without failing", func() {
				So(err, ShouldBeNil)
				So(v.Finite(), ShouldBeTrue)
				So(v.VelocityMean, ShouldEqual, 1)
				So(v.VelocityStd, ShouldEqual, 0)
				So(v.AccelerationStd, ShouldEqual, 0)
				So(v.PauseRatio, ShouldEqual, 0)
			})
		})

		Convey("When the trace stands still", func() {
			v, err := e.Extract(trace(
				[3]float64{0, 5, 5},
				[3]float64{1, 5, 5},
				[3]float64{2, 5, 5},
			))

			Convey("Then every step is a pause and efficiency is zero", func() {
				So(err, ShouldBeNil)
				So(v.PauseRatio, ShouldEqual, 1)
				So(v.PathEfficiency, ShouldEqual, 0)
				So(v.VelocityMean, ShouldEqual, 0)
			})
		})

		Convey("When two samples stand still", func() {
			v, err := e.Extract(trace(
				[3]float64{0, 5, 5},
				[3]float64{1, 5, 5},
			))

			Convey("Then the single step is a pause", func() {
				So(err, ShouldBeNil)
				So(v.PauseRatio, ShouldEqual, 1)
			})
		})

		Convey("When fewer than two samples are given", func() {
			_, errNone := e.Extract(nil)
			_, errOne := e.Extract(trace([3]float64{0, 1, 1}))

			Convey("Then insufficient data is reported", func() {
				So(errors.Is(errNone, features.ErrInsufficientData), ShouldBeTrue)
				So(errors.Is(errOne, features.ErrInsufficientData), ShouldBeTrue)
			})
		})
	})

	Convey("Given custom thresholds", t, func() {
		samples := trace(
			[3]float64{0, 0, 0},
			[3]float64{1, 0.05, 0},
			[3]float64{2, 1.05, 0},
			[3]float64{3, 1.05, 0},
		)

		Convey("Then the pause threshold decides which steps are paused", func() {
			v, err := features.NewExtractor().Extract(samples)
			So(err, ShouldBeNil)
			So(v.PauseRatio, ShouldAlmostEqual, 2.0/3.0)

			v, err = features.NewExtractor(features.WithPauseThreshold(0.01)).Extract(samples)
			So(err, ShouldBeNil)
			So(v.PauseRatio, ShouldAlmostEqual, 1.0/3.0)
		})

		Convey("Then a wide direction threshold ignores right angles", func() {
			turns := trace(
				[3]float64{0, 0, 0},
				[3]float64{1, 1, 0},
				[3]float64{2, 1, 1},
			)
			e := features.NewExtractor(features.WithDirectionThreshold(math.Pi / 2))
			v, err := e.Extract(turns)
			So(err, ShouldBeNil)
			So(v.DirectionChanges, ShouldEqual, 0)
		})

		Convey("Then out-of-range thresholds keep the defaults", func() {
			e := features.NewExtractor(features.WithPauseThreshold(-1), features.WithDirectionThreshold(4))
			So(e.PauseThreshold(), ShouldEqual, features.DefaultPauseThreshold)
			So(e.DirectionThreshold(), ShouldEqual, features.DefaultDirectionThreshold)
		})
	})
}
