package tracegen

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/humancheck/internal/domain/classifier"
	"github.com/okian/humancheck/internal/domain/features"
	"github.com/okian/humancheck/internal/domain/motion"
)

func TestGenerator(t *testing.T) {
	convey.Convey("Given a seeded generator", t, func() {
		convey.Convey("The same seed reproduces the same traces", func() {
			a, err := New(WithSeed(7)).Batch(4)
			convey.So(err, convey.ShouldBeNil)
			b, err := New(WithSeed(7)).Batch(4)
			convey.So(err, convey.ShouldBeNil)
			convey.So(cmp.Diff(a, b), convey.ShouldBeEmpty)

			c, _ := New(WithSeed(8)).Batch(4)
			convey.So(cmp.Diff(a[0].Samples, c[0].Samples), convey.ShouldNotBeEmpty)
		})

		convey.Convey("Every frame after the first yields an ordered sample", func() {
			g := New(WithSeed(3), WithFrames(60))
			for _, tr := range mustBatch(g, 6) {
				convey.So(tr.Samples, convey.ShouldHaveLength, 59)
				convey.So(motion.ValidateOrder(tr.Samples), convey.ShouldBeNil)
				convey.So(tr.Source, convey.ShouldEqual, motion.SourcePlayer)
				convey.So(tr.SessionID, convey.ShouldNotBeEmpty)
			}
		})

		convey.Convey("Batches alternate labels starting with human", func() {
			traces := mustBatch(New(), 5)
			want := []classifier.Label{
				classifier.LabelHuman, classifier.LabelBot, classifier.LabelHuman,
				classifier.LabelBot, classifier.LabelHuman,
			}
			for i, tr := range traces {
				convey.So(tr.Label, convey.ShouldEqual, want[i])
			}
		})

		convey.Convey("Human traces pause and vary speed more than bot traces", func() {
			ex := features.NewExtractor()
			rows, err := New(WithSeed(11)).Examples(40, ex)
			convey.So(err, convey.ShouldBeNil)
			convey.So(rows, convey.ShouldHaveLength, 40)

			var human, bot features.Vector
			for _, r := range rows {
				acc := &bot
				if r.Label == classifier.LabelHuman {
					acc = &human
				}
				acc.PauseRatio += r.Features.PauseRatio / 20
				acc.VelocityStd += r.Features.VelocityStd / 20
			}
			convey.So(human.PauseRatio, convey.ShouldBeGreaterThan, bot.PauseRatio)
			convey.So(human.VelocityStd, convey.ShouldBeGreaterThan, bot.VelocityStd)
		})

		convey.Convey("A model trained on generated rows separates fresh traces", func() {
			ex := features.NewExtractor()
			train, err := New(WithSeed(21)).Examples(60, ex)
			convey.So(err, convey.ShouldBeNil)

			m := classifier.NewModel()
			err = m.Train(context.Background(), train)
			convey.So(err, convey.ShouldBeNil)

			test, err := New(WithSeed(99)).Examples(40, ex)
			convey.So(err, convey.ShouldBeNil)
			correct := 0
			for _, r := range test {
				p, err := m.Predict(context.Background(), r.Features)
				convey.So(err, convey.ShouldBeNil)
				if p.Verdict == r.Label {
					correct++
				}
			}
			convey.So(float64(correct)/float64(len(test)), convey.ShouldBeGreaterThanOrEqualTo, 0.75)
		})
	})
}

func mustBatch(g *Generator, n int) []Trace {
	out, err := g.Batch(n)
	if err != nil {
		panic(err)
	}
	return out
}
