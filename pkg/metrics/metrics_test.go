package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "agc")
				So(manager.subsystem, ShouldEqual, "tally")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("awards"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metric names should carry the namespace and subsystem", func() {
				manager.factsIngested.WithLabelValues("vote").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				found := false
				for _, mf := range families {
					if mf.GetName() == "test_awards_facts_ingested_total" {
						found = true
						So(mf.GetMetric()[0].GetLabel(), ShouldNotBeEmpty)
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When options receive empty values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "agc")
				So(manager.subsystem, ShouldEqual, "tally")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording ingest metrics", func() {
			before := gatheredValue("agc_tally_facts_ingested_total")
			RecordFactIngested("nomination")
			RecordFactIngested("nomination")

			Convey("Then the counter should advance", func() {
				So(gatheredValue("agc_tally_facts_ingested_total")-before, ShouldEqual, float64(2))
			})
		})

		Convey("When recording the remaining series", func() {
			Convey("Then nothing should panic", func() {
				So(func() {
					RecordIngestRejected("validation")
					RecordFactRetracted()
					RecordLedgerLatency("ok", 3.5)
					RecordAggregateConflict()
					RecordStoreLatency("append", 1.2)
					RecordThresholdCrossed("competitive")
					RecordWinnerSelected("lifetime")
					RecordRescorePass(0.4)
					RecordSnapshotRebuild(0.2)
					UpdateAggregateCount(3)
					UpdateNomineeCount(12)
					RecordNotifyDelivered("threshold_crossed")
					RecordNotifyFailure()
					UpdateNotifyParked(1)
					UpdateQueueSize(10)
					UpdateQueueCapacity(100)
					UpdateQueueUtilization(0.1)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					RecordQueueProcessingLatency(2)
					UpdateWorkerCount(4)
					UpdateWorkerActiveCount(4)
					RecordWorkerProcessingLatency(1)
					RecordWorkerError()
					RecordWorkerRetry()
					RecordHTTPRequest("/v1/votes", "POST", "201")
					RecordHTTPRequestDuration("/v1/votes", "POST", "201", 4)
					RecordErrorByComponent("notify", "publish")
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(42)
				}, ShouldNotPanic)
			})
		})

		Convey("When gathering the global registry", func() {
			RecordAggregateConflict()
			families, err := GetRegistry().Gather()

			Convey("Then the recorded series should be exposed", func() {
				So(err, ShouldBeNil)
				names := make(map[string]bool, len(families))
				for _, mf := range families {
					names[mf.GetName()] = true
				}
				So(names["agc_tally_aggregate_conflicts_total"], ShouldBeTrue)
			})
		})
	})
}

// gatheredValue sums every counter sample of the named family in the global registry.
func gatheredValue(name string) float64 {
	families, err := GetRegistry().Gather()
	if err != nil {
		return 0
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
