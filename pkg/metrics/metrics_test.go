package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with custom options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.sessionsSubmitted.Inc()

			Convey("Then metrics carry the namespace and constant labels", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, mf := range families {
					if mf.GetName() != "test_unit_sessions_submitted_total" {
						continue
					}
					found = true
					labels := mf.GetMetric()[0].GetLabel()
					So(len(labels), ShouldEqual, 1)
					So(labels[0].GetName(), ShouldEqual, "env")
					So(labels[0].GetValue(), ShouldEqual, "test")
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When two managers share a registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording business metrics", func() {
			before, _ := Value("humancheck_verdict_sessions_submitted_total", nil)
			RecordSessionSubmitted()
			RecordVerdict("bot", 0.9)
			RecordFallback("insufficient_data")
			UpdateModelState(true, 6)

			Convey("Then the values are visible on the custom registry", func() {
				after, err := Value("humancheck_verdict_sessions_submitted_total", nil)
				So(err, ShouldBeNil)
				So(after-before, ShouldEqual, 1)

				bots, err := Value("humancheck_verdict_verdicts_total", map[string]string{"verdict": "bot"})
				So(err, ShouldBeNil)
				So(bots, ShouldBeGreaterThanOrEqualTo, 1)

				trained, err := Value("humancheck_verdict_model_trained", nil)
				So(err, ShouldBeNil)
				So(trained, ShouldEqual, 1)

				examples, err := Value("humancheck_verdict_model_examples", nil)
				So(err, ShouldBeNil)
				So(examples, ShouldEqual, 6)
			})
		})

		Convey("When recording operational metrics", func() {
			Convey("Then none of the recorders panic", func() {
				So(func() {
					RecordSessionDuplicate()
					RecordSessionAnalyzed(120)
					RecordAnalysisLatency(1.5)
					RecordModelTraining("ok", 12)
					UpdateStoreVerdicts(3)
					RecordStoreUpdateLatency(0.2)
					RecordStoreQueryLatency(0.1)
					RecordStoreSnapshot(0.3, 1700000000)
					UpdateQueueSize(1)
					UpdateQueueCapacity(10)
					UpdateQueueUtilization(0.1)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					RecordQueueProcessingLatency(0.01)
					UpdateWorkerCount(4)
					UpdateWorkerActiveCount(1)
					UpdateWorkerIdleCount(3)
					RecordWorkerProcessingLatency(2)
					RecordWorkerError()
					RecordSpoolFile("submitted")
					RecordHTTPRequest("/analyze", "POST", "200")
					RecordHTTPRequestDuration("/analyze", "POST", "200", 3)
					RecordErrorByComponent("worker", "analysis")
					RecordErrorByType("analysis", "warning")
					RecordErrorByEndpoint("/analyze", "POST", "bad_request")
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(10)
					RecordSystemGCPauseTime(0.2)
				}, ShouldNotPanic)
			})
		})

		Convey("When asking for an unregistered metric", func() {
			_, err := Value("humancheck_verdict_nope", nil)

			Convey("Then an unknown metric error is returned", func() {
				So(errors.Is(err, ErrUnknownMetric), ShouldBeTrue)
			})
		})

		Convey("Then the registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
