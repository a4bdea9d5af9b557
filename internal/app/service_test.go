package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/humancheck/internal/adapters/repository"
	"github.com/okian/humancheck/internal/adapters/tracefile"
	"github.com/okian/humancheck/internal/adapters/watcher"
	service "github.com/okian/humancheck/internal/app"
	"github.com/okian/humancheck/internal/config"
	"github.com/okian/humancheck/internal/domain/classifier"
	"github.com/okian/humancheck/internal/domain/features"
	"github.com/okian/humancheck/internal/domain/model"
	"github.com/okian/humancheck/internal/domain/motion"
	"github.com/okian/humancheck/internal/tracegen"
)

func testConfig() *config.Config {
	cfg := config.New()
	cfg.WorkerCount = 2
	cfg.QueueSize = 64
	cfg.ForestTrees = 15
	return cfg
}

func startService(opts ...service.Option) *service.Service {
	svc := service.New(opts...)
	So(svc.Start(context.Background()), ShouldBeNil)
	Reset(func() { _ = svc.Stop(context.Background()) })
	return svc
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func waitVerdict(svc *service.Service, id string) (model.Verdict, bool) {
	var v model.Verdict
	ok := eventually(func() bool {
		var err error
		v, err = svc.Verdict(context.Background(), id)
		return err == nil
	})
	return v, ok
}

func botTrace() tracegen.Trace {
	tr, err := tracegen.New(tracegen.WithSeed(3)).Bot()
	So(err, ShouldBeNil)
	return tr
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service with default configuration", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithConfig(testConfig()))

		Convey("Operations before Start are rejected", func() {
			_, err := svc.Submit(ctx, model.Submission{SessionID: "x"})
			So(err, ShouldEqual, service.ErrNotStarted)
			_, err = svc.Verdict(ctx, "x")
			So(err, ShouldEqual, service.ErrNotStarted)
			So(svc.Stats(ctx).Started, ShouldBeFalse)
		})

		Convey("Start bootstraps a model from the seed examples", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			info := svc.ModelInfo()
			So(info.Trained, ShouldBeTrue)
			So(info.Examples, ShouldEqual, len(classifier.SeedExamples()))

			st := svc.Stats(ctx)
			So(st.Started, ShouldBeTrue)
			So(st.Workers, ShouldEqual, 2)
			So(st.Store, ShouldEqual, config.StoreMemory)

			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldEqual, service.ErrStopped)
		})

		Convey("A spool path that is a file fails Start", func() {
			file := filepath.Join(t.TempDir(), "spool")
			So(os.WriteFile(file, nil, 0o600), ShouldBeNil)
			cfg := testConfig()
			cfg.SpoolDir = file
			bad := service.New(service.WithConfig(cfg))

			So(bad.Start(ctx), ShouldNotBeNil)
			So(bad.Stats(ctx).Started, ShouldBeFalse)
			So(bad.Stop(ctx), ShouldBeNil)
		})
	})
}

func TestService_Submit(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx := context.Background()
		svc := startService(service.WithConfig(testConfig()))

		Convey("A valid session is analyzed and stored", func() {
			tr := botTrace()
			dup, err := svc.Submit(ctx, model.Submission{SessionID: tr.SessionID, Samples: tr.Samples})
			So(err, ShouldBeNil)
			So(dup, ShouldBeFalse)

			v, ok := waitVerdict(svc, tr.SessionID)
			So(ok, ShouldBeTrue)
			So(v.Fallback, ShouldBeFalse)
			So(v.Source, ShouldEqual, motion.SourcePlayer)
			So(v.Samples, ShouldEqual, len(tr.Samples))
			So(v.Features, ShouldNotBeNil)
			So(v.HumanProbability+v.BotProbability, ShouldAlmostEqual, 1.0, 1e-9)

			Convey("and resubmitting it is a duplicate", func() {
				dup, err := svc.Submit(ctx, model.Submission{SessionID: tr.SessionID, Samples: tr.Samples})
				So(err, ShouldBeNil)
				So(dup, ShouldBeTrue)
			})

			Convey("and it appears in the ranking", func() {
				top, err := svc.TopSuspects(ctx, 10)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 1)
				So(top[0].SessionID, ShouldEqual, tr.SessionID)

				r, err := svc.Rank(ctx, tr.SessionID)
				So(err, ShouldBeNil)
				So(r.Rank, ShouldEqual, 1)
				So(svc.Stats(ctx).Verdicts.Total, ShouldEqual, 1)
			})
		})

		Convey("A too-short session falls back to human", func() {
			samples := []motion.Sample{{Timestamp: 0, X: 1, Y: 1}}
			_, err := svc.Submit(ctx, model.Submission{SessionID: "short", Samples: samples})
			So(err, ShouldBeNil)

			v, ok := waitVerdict(svc, "short")
			So(ok, ShouldBeTrue)
			So(v.Fallback, ShouldBeTrue)
			So(v.Reason, ShouldEqual, model.ReasonInsufficientData)
			So(v.Verdict, ShouldEqual, classifier.LabelHuman)
			So(v.HumanProbability, ShouldEqual, 1)
			So(v.Confidence, ShouldEqual, 0)
			So(svc.Stats(ctx).Verdicts.Fallbacks, ShouldEqual, 1)
		})

		Convey("Invalid submissions are rejected", func() {
			_, err := svc.Submit(ctx, model.Submission{})
			So(errors.Is(err, service.ErrInvalidSubmission), ShouldBeTrue)

			unordered := []motion.Sample{{Timestamp: 10}, {Timestamp: 5}}
			_, err = svc.Submit(ctx, model.Submission{SessionID: "u", Samples: unordered})
			So(errors.Is(err, service.ErrInvalidSubmission), ShouldBeTrue)
			So(errors.Is(err, watcher.ErrRejected), ShouldBeTrue)

			// A rejected id is not remembered.
			dup, err := svc.Submit(ctx, model.Submission{SessionID: "u"})
			So(err, ShouldBeNil)
			So(dup, ShouldBeFalse)
		})

		Convey("Unknown sessions are not found", func() {
			_, err := svc.Verdict(ctx, "nope")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_UntrainedModel(t *testing.T) {
	Convey("Given a service without a model", t, func() {
		ctx := context.Background()
		cfg := testConfig()
		cfg.BootstrapModel = false
		svc := startService(service.WithConfig(cfg))
		So(svc.ModelInfo().Trained, ShouldBeFalse)

		tr := botTrace()
		sub := model.Submission{SessionID: tr.SessionID, Samples: tr.Samples}

		Convey("Synchronous analysis reports the missing model", func() {
			_, err := svc.Analyze(ctx, sub)
			So(errors.Is(err, classifier.ErrModelNotTrained), ShouldBeTrue)

			_, err = svc.Analyze(ctx, model.Submission{SessionID: "s", Samples: tr.Samples[:1]})
			So(errors.Is(err, features.ErrInsufficientData), ShouldBeTrue)
		})

		Convey("Queued sessions fall back with their features kept", func() {
			_, err := svc.Submit(ctx, sub)
			So(err, ShouldBeNil)
			v, ok := waitVerdict(svc, tr.SessionID)
			So(ok, ShouldBeTrue)
			So(v.Fallback, ShouldBeTrue)
			So(v.Reason, ShouldEqual, model.ReasonModelNotTrained)
			So(v.Features, ShouldNotBeNil)
		})

		Convey("Training makes analysis available", func() {
			rows := classifier.SeedExamples()
			req := service.TrainRequest{}
			for i := range rows {
				req.Examples = append(req.Examples, service.TrainingExample{Label: rows[i].Label, Features: &rows[i].Features})
			}
			info, err := svc.Train(ctx, req)
			So(err, ShouldBeNil)
			So(info.Trained, ShouldBeTrue)

			v, err := svc.Analyze(ctx, sub)
			So(err, ShouldBeNil)
			So(v.Fallback, ShouldBeFalse)
		})
	})
}

// blockingStore holds every Record until released.
type blockingStore struct {
	*repository.TreapStore
	release chan struct{}
}

func (b *blockingStore) Record(ctx context.Context, v model.Verdict) error {
	<-b.release
	return b.TreapStore.Record(ctx, v)
}

func TestService_Backpressure(t *testing.T) {
	Convey("Given one worker stuck on the store and a queue of one", t, func() {
		ctx := context.Background()
		cfg := testConfig()
		cfg.WorkerCount = 1
		cfg.QueueSize = 1
		store := &blockingStore{TreapStore: repository.NewTreapStore(ctx), release: make(chan struct{})}
		svc := startService(service.WithConfig(cfg), service.WithStore(store))
		Reset(func() {
			select {
			case <-store.release:
			default:
				close(store.release)
			}
			_ = store.Close()
		})

		tr := botTrace()
		submit := func(id string) error {
			_, err := svc.Submit(ctx, model.Submission{SessionID: id, Samples: tr.Samples})
			return err
		}

		So(submit("a"), ShouldBeNil)
		So(eventually(func() bool { return svc.Stats(ctx).QueueLength == 0 }), ShouldBeTrue)
		So(submit("b"), ShouldBeNil)

		err := submit("c")
		So(errors.Is(err, service.ErrBackpressure), ShouldBeTrue)

		close(store.release)
		So(eventually(func() bool { return submit("c") == nil }), ShouldBeTrue)
		_, ok := waitVerdict(svc, "c")
		So(ok, ShouldBeTrue)
	})
}

// failingExamples serves an empty corpus and refuses every append.
type failingExamples struct{}

func (failingExamples) AddExamples(context.Context, []classifier.LabeledExample) error {
	return errors.New("disk full")
}

func (failingExamples) Examples(context.Context) ([]classifier.LabeledExample, error) {
	return nil, nil
}

func TestService_Training(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx := context.Background()
		svc := startService(service.WithConfig(testConfig()))

		Convey("Examples may be given as traces", func() {
			gen := tracegen.New(tracegen.WithSeed(9))
			traces, err := gen.Batch(10)
			So(err, ShouldBeNil)
			var req service.TrainRequest
			for _, tr := range traces {
				req.Examples = append(req.Examples, service.TrainingExample{Label: tr.Label, Samples: tr.Samples})
			}
			info, err := svc.Train(ctx, req)
			So(err, ShouldBeNil)
			So(info.Examples, ShouldEqual, 10)
		})

		Convey("Single-class training is degenerate and keeps the old model", func() {
			before := svc.ModelInfo()
			rows := classifier.SeedExamples()
			req := service.TrainRequest{Examples: []service.TrainingExample{{Label: classifier.LabelBot, Features: &rows[3].Features}}}
			_, err := svc.Train(ctx, req)
			So(errors.Is(err, classifier.ErrDegenerateTraining), ShouldBeTrue)
			So(svc.ModelInfo().TrainedAt, ShouldEqual, before.TrainedAt)
		})

		Convey("A failed append keeps the published model", func() {
			failing := startService(service.WithConfig(testConfig()), service.WithExampleStore(failingExamples{}))
			before := failing.ModelInfo()
			rows := classifier.SeedExamples()
			req := service.TrainRequest{Persist: true}
			for i := range rows {
				req.Examples = append(req.Examples, service.TrainingExample{Label: rows[i].Label, Features: &rows[i].Features})
				req.Examples = append(req.Examples, service.TrainingExample{Label: rows[i].Label, Features: &rows[i].Features})
			}

			_, err := failing.Train(ctx, req)
			So(err, ShouldNotBeNil)
			after := failing.ModelInfo()
			So(after.Examples, ShouldEqual, before.Examples)
			So(after.TrainedAt, ShouldEqual, before.TrainedAt)
		})

		Convey("Concurrent persisting trains each see the other's rows", func() {
			rows := classifier.SeedExamples()
			req := service.TrainRequest{Persist: true}
			for i := range rows {
				req.Examples = append(req.Examples, service.TrainingExample{Label: rows[i].Label, Features: &rows[i].Features})
			}

			var wg sync.WaitGroup
			errs := make([]error, 4)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = svc.Train(ctx, req)
				}(i)
			}
			wg.Wait()
			for _, err := range errs {
				So(err, ShouldBeNil)
			}
			So(svc.ModelInfo().Examples, ShouldEqual, 4*len(rows))
		})

		Convey("An example without data is rejected", func() {
			_, err := svc.Train(ctx, service.TrainRequest{Examples: []service.TrainingExample{{Label: classifier.LabelHuman}}})
			So(errors.Is(err, service.ErrInvalidExample), ShouldBeTrue)
		})
	})
}

func TestService_Persistence(t *testing.T) {
	Convey("Given a SQLite-backed service with a model path", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		cfg := testConfig()
		cfg.Store = config.StoreSQLite
		cfg.DBPath = filepath.Join(dir, "humancheck.db")
		cfg.ModelPath = filepath.Join(dir, "model.json")
		cfg.BootstrapModel = false

		svc := service.New(service.WithConfig(cfg))
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.ModelInfo().Trained, ShouldBeFalse)

		rows := classifier.SeedExamples()
		var req service.TrainRequest
		for i := range rows {
			req.Examples = append(req.Examples, service.TrainingExample{Label: rows[i].Label, Features: &rows[i].Features})
		}
		req.Persist = true
		info, err := svc.Train(ctx, req)
		So(err, ShouldBeNil)
		So(info.Examples, ShouldEqual, len(rows))
		_, err = os.Stat(cfg.ModelPath)
		So(err, ShouldBeNil)

		_, err = svc.Submit(ctx, model.Submission{SessionID: "kept", Samples: []motion.Sample{{Timestamp: 1}}})
		So(err, ShouldBeNil)
		got, ok := waitVerdict(svc, "kept")
		So(ok, ShouldBeTrue)
		So(got.Reason, ShouldEqual, model.ReasonInsufficientData)
		So(svc.Stop(ctx), ShouldBeNil)

		Convey("A restart loads the snapshot and keeps verdicts", func() {
			again := startService(service.WithConfig(cfg))
			So(again.ModelInfo().Trained, ShouldBeTrue)
			So(again.ModelInfo().Examples, ShouldEqual, len(rows))
			_, err := again.Verdict(ctx, "kept")
			So(err, ShouldBeNil)
		})

		Convey("Without the snapshot the stored corpus is used", func() {
			So(os.Remove(cfg.ModelPath), ShouldBeNil)
			again := startService(service.WithConfig(cfg))
			So(again.ModelInfo().Trained, ShouldBeTrue)
			So(again.ModelInfo().Examples, ShouldEqual, len(rows))
		})
	})
}

func TestService_Spool(t *testing.T) {
	Convey("Given a service watching a spool directory", t, func() {
		dir := t.TempDir()
		cfg := testConfig()
		cfg.SpoolDir = dir
		cfg.SpoolSettleSeconds = 0.02
		svc := startService(service.WithConfig(cfg))

		tr := botTrace()
		So(tracefile.WriteFile(filepath.Join(dir, "dropped.csv"), tr.Samples), ShouldBeNil)

		v, ok := waitVerdict(svc, "dropped")
		So(ok, ShouldBeTrue)
		So(v.Samples, ShouldEqual, len(tr.Samples))
	})
}
