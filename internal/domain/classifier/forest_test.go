package classifier_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/okian/humancheck/internal/domain/classifier"
	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"
)

func seedMatrix() (*mat.Dense, []int) {
	ex := classifier.SeedExamples()
	x := mat.NewDense(len(ex), len(ex[0].Features.Values()), nil)
	y := make([]int, len(ex))
	for i, e := range ex {
		x.SetRow(i, e.Features.Values())
		y[i] = e.Label.Index()
	}
	return x, y
}

func TestRandomForest(t *testing.T) {
	Convey("Given the seed training matrix", t, func() {
		x, y := seedMatrix()

		Convey("When two forests share a seed but not parallelism", func() {
			a := classifier.NewRandomForest(classifier.WithSeed(7), classifier.WithParallelism(1))
			b := classifier.NewRandomForest(classifier.WithSeed(7), classifier.WithParallelism(8))
			So(a.Fit(x, y), ShouldBeNil)
			So(b.Fit(x, y), ShouldBeNil)

			Convey("Then the fitted trees are identical", func() {
				So(cmp.Diff(a.Trees, b.Trees), ShouldBeEmpty)
			})

			Convey("Then the probabilities are identical", func() {
				pa, err := a.PredictProba(x)
				So(err, ShouldBeNil)
				pb, err := b.PredictProba(x)
				So(err, ShouldBeNil)
				So(mat.Equal(pa, pb), ShouldBeTrue)
			})
		})

		Convey("When the forest is fitted with defaults", func() {
			f := classifier.NewRandomForest()
			So(f.Fit(x, y), ShouldBeNil)
			proba, err := f.PredictProba(x)
			So(err, ShouldBeNil)

			Convey("Then it grows the default ensemble", func() {
				So(len(f.Trees), ShouldEqual, classifier.DefaultTrees)
				So(f.Seed, ShouldEqual, classifier.DefaultSeed)
			})

			Convey("Then every row sums to one and favours its own class", func() {
				rows, _ := proba.Dims()
				for i := 0; i < rows; i++ {
					So(proba.At(i, 0)+proba.At(i, 1), ShouldAlmostEqual, 1.0)
					So(proba.At(i, y[i]), ShouldBeGreaterThan, 0.5)
				}
			})
		})

		Convey("When a depth limit of one is set", func() {
			f := classifier.NewRandomForest(classifier.WithTrees(5), classifier.WithMaxDepth(1))
			So(f.Fit(x, y), ShouldBeNil)

			Convey("Then no tree is deeper than a single split", func() {
				for _, tr := range f.Trees {
					So(len(tr.Nodes), ShouldBeLessThanOrEqualTo, 3)
				}
			})
		})

		Convey("When inputs are malformed", func() {
			f := classifier.NewRandomForest(classifier.WithTrees(3))

			Convey("Then mismatched labels are rejected", func() {
				So(errors.Is(f.Fit(x, y[:2]), classifier.ErrShapeMismatch), ShouldBeTrue)
			})

			Convey("Then unknown class indices are rejected", func() {
				bad := append([]int(nil), y...)
				bad[0] = 5
				So(errors.Is(f.Fit(x, bad), classifier.ErrUnknownLabel), ShouldBeTrue)
			})

			Convey("Then predicting unfitted fails", func() {
				_, err := f.PredictProba(x)
				So(errors.Is(err, classifier.ErrNotFitted), ShouldBeTrue)
			})
		})
	})
}
