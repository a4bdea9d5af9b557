package motion_test

import (
	"testing"

	"github.com/okian/humancheck/internal/domain/motion"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSession(t *testing.T) {
	Convey("Given a player session", t, func() {
		s := motion.NewSession(motion.WithSamplerOptions(motion.WithNoise(0)))

		Convey("Then it gets a generated id and the player source", func() {
			So(s.ID(), ShouldNotBeEmpty)
			So(s.Source(), ShouldEqual, motion.SourcePlayer)
		})

		Convey("When tracked over a few ticks", func() {
			appended := 0
			for i := 0; i <= 10; i++ {
				if s.Track(motion.Point{X: float64(i * 4)}, float64(i)*20) {
					appended++
				}
			}

			Convey("Then every tick after the seed produces a sample", func() {
				So(appended, ShouldEqual, 10)
				So(s.Len(), ShouldEqual, 10)
			})

			Convey("And Finish hands over the samples exactly once", func() {
				samples, err := s.Finish()
				So(err, ShouldBeNil)
				So(samples, ShouldHaveLength, 10)
				So(motion.ValidateOrder(samples), ShouldBeNil)

				_, err = s.Finish()
				So(err, ShouldEqual, motion.ErrSessionClosed)
				So(s.Track(motion.Point{X: 1000}, 10_000), ShouldBeFalse)
			})
		})
	})

	Convey("Given a cursor session", t, func() {
		s := motion.NewSession(motion.WithSource(motion.SourceCursor), motion.WithSessionID("c-1"))

		Convey("When the pointer holds still between moves", func() {
			s.Track(motion.Point{X: 1, Y: 1}, 0)
			s.Track(motion.Point{X: 1, Y: 1}, 5)
			s.Track(motion.Point{X: 2, Y: 1}, 10)
			s.Track(motion.Point{X: 2, Y: 1}, 15)
			s.Track(motion.Point{X: 2, Y: 3}, 20)

			Convey("Then only position changes are recorded", func() {
				samples, err := s.Finish()
				So(err, ShouldBeNil)
				So(s.ID(), ShouldEqual, "c-1")
				So(samples, ShouldResemble, []motion.Sample{
					{Timestamp: 10, X: 2, Y: 1},
					{Timestamp: 20, X: 2, Y: 3},
				})
			})
		})

		Convey("When a change arrives with a repeated timestamp", func() {
			s.Track(motion.Point{X: 0}, 0)
			first := s.Track(motion.Point{X: 1}, 10)
			second := s.Track(motion.Point{X: 2}, 10)

			Convey("Then the duplicate timestamp is rejected", func() {
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				So(s.Len(), ShouldEqual, 1)
			})
		})
	})
}

func TestParseSource(t *testing.T) {
	Convey("Given wire values for the trace source", t, func() {
		Convey("Then known values parse", func() {
			src, err := motion.ParseSource("")
			So(err, ShouldBeNil)
			So(src, ShouldEqual, motion.SourcePlayer)

			src, err = motion.ParseSource(" Cursor ")
			So(err, ShouldBeNil)
			So(src, ShouldEqual, motion.SourceCursor)
		})

		Convey("Then unknown values are rejected", func() {
			_, err := motion.ParseSource("joystick")
			So(err, ShouldEqual, motion.ErrUnknownSource)
		})
	})
}
