package eligibility_test

import (
	"errors"
	"testing"

	"github.com/okian/awardtally/internal/domain/eligibility"
	"github.com/okian/awardtally/internal/domain/model"
	"github.com/okian/awardtally/internal/domain/tally"
	. "github.com/smartystreets/goconvey/convey"
)

func newEvaluator(opts ...eligibility.Option) *eligibility.Evaluator {
	e, err := eligibility.NewEvaluator(opts...)
	if err != nil {
		panic(err)
	}
	return e
}

func record(e *eligibility.Evaluator, b *eligibility.Book, id string, kind model.FactKind, agc bool, n int) model.EligibilityTransition {
	var last model.EligibilityTransition
	for i := 0; i < n; i++ {
		tr, err := e.OnFactRecorded(b, id, kind, agc, 1)
		So(err, ShouldBeNil)
		last = tr
	}
	return last
}

func TestThreshold(t *testing.T) {
	Convey("Given a competitive book", t, func() {
		e := newEvaluator()
		b := eligibility.NewBook("s-1", model.TierCompetitive)
		tr := e.Register(b, "n-1")
		So(tr.After.CrossedThreshold, ShouldBeFalse)

		Convey("When the nominee gets 700 nominations and 350 AGC-backed votes", func() {
			record(e, b, "n-1", model.KindNomination, false, 700)
			record(e, b, "n-1", model.KindVote, true, 350)

			Convey("Then the combined count should be 1050 and crossed", func() {
				s, ok := b.Get("n-1")
				So(ok, ShouldBeTrue)
				So(s.NominationCount, ShouldEqual, int64(700))
				So(s.AGCBackedVoteCount, ShouldEqual, int64(350))
				So(s.CombinedCount, ShouldEqual, int64(1050))
				So(s.CrossedThreshold, ShouldBeTrue)
				So(s.IsWinner, ShouldBeFalse)
				So(s.CertificateEligible(), ShouldBeTrue)
			})
		})

		Convey("When the 1000th counted fact arrives", func() {
			record(e, b, "n-1", model.KindNomination, false, 999)
			tr := record(e, b, "n-1", model.KindVote, true, 1)

			Convey("Then exactly that transition should report the crossing", func() {
				So(tr.Reasons(), ShouldResemble, []string{model.ReasonThresholdCrossed})
				next := record(e, b, "n-1", model.KindVote, true, 1)
				So(next.Reasons(), ShouldBeEmpty)
			})
		})

		Convey("When votes are not AGC-backed", func() {
			tr := record(e, b, "n-1", model.KindVote, false, 5)

			Convey("Then nothing should change", func() {
				So(tr.After.CombinedCount, ShouldEqual, int64(0))
				So(tr.After.Version, ShouldEqual, int64(0))
			})
		})

		Convey("When a retraction takes the count back below threshold", func() {
			e := newEvaluator(eligibility.WithThreshold(model.TierCompetitive, 3))
			b := eligibility.NewBook("s-1", model.TierCompetitive)
			e.Register(b, "n-1")
			record(e, b, "n-1", model.KindNomination, false, 3)
			tr, err := e.OnFactRecorded(b, "n-1", model.KindNomination, false, -1)

			Convey("Then the crossing should be undone", func() {
				So(err, ShouldBeNil)
				So(tr.Before.CrossedThreshold, ShouldBeTrue)
				So(tr.After.CrossedThreshold, ShouldBeFalse)
				So(tr.After.CombinedCount, ShouldEqual, int64(2))
			})
		})

		Convey("When retracting more than was recorded", func() {
			_, err := e.OnFactRecorded(b, "n-1", model.KindVote, true, -1)

			Convey("Then it should fail", func() {
				So(err, ShouldEqual, eligibility.ErrNegativeCount)
			})
		})

		Convey("When the nominee is unknown", func() {
			_, err := e.OnFactRecorded(b, "ghost", model.KindNomination, false, 1)

			Convey("Then it should fail", func() {
				So(errors.Is(err, eligibility.ErrUnknownNominee), ShouldBeTrue)
			})
		})
	})
}

func TestLifetime(t *testing.T) {
	Convey("Given a lifetime book", t, func() {
		e := newEvaluator()
		b := eligibility.NewBook("s-life", model.TierLifetime)

		Convey("When a nominee is registered", func() {
			tr := e.Register(b, "n-1")

			Convey("Then it should be crossed with zero facts", func() {
				So(tr.Before.CrossedThreshold, ShouldBeFalse)
				So(tr.After.CrossedThreshold, ShouldBeTrue)
				So(tr.After.CombinedCount, ShouldEqual, int64(0))
			})

			Convey("And a retraction should not un-cross it", func() {
				record(e, b, "n-1", model.KindNomination, false, 1)
				tr, err := e.OnFactRecorded(b, "n-1", model.KindNomination, false, -1)
				So(err, ShouldBeNil)
				So(tr.After.CrossedThreshold, ShouldBeTrue)
			})

			Convey("And registering again should be a no-op", func() {
				again := e.Register(b, "n-1")
				So(again.Reasons(), ShouldBeEmpty)
			})
		})
	})
}

func TestRecompute(t *testing.T) {
	Convey("Given a book with counters", t, func() {
		e := newEvaluator(eligibility.WithThreshold(model.TierPlatinum, 2))
		b := eligibility.NewBook("s-1", model.TierPlatinum)
		e.Register(b, "n-1")
		record(e, b, "n-1", model.KindVote, true, 2)

		Convey("When recomputing twice", func() {
			first, err1 := e.Recompute(b, "n-1")
			second, err2 := e.Recompute(b, "n-1")

			Convey("Then the second pass should change nothing", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first.After, ShouldResemble, second.After)
				So(second.Before, ShouldResemble, second.After)
				So(second.After.CrossedThreshold, ShouldBeTrue)
			})
		})
	})
}

func TestSelectWinners(t *testing.T) {
	ranked := []tally.Entry{
		{NomineeID: "a", WeightedScore: 0.6, Rank: 1},
		{NomineeID: "b", WeightedScore: 0.3, Rank: 2},
		{NomineeID: "c", WeightedScore: 0.1, Rank: 3},
		{NomineeID: "d", WeightedScore: 0, Rank: 4},
	}

	Convey("Given a competitive book", t, func() {
		e := newEvaluator()
		b := eligibility.NewBook("s-1", model.TierCompetitive)
		for _, r := range ranked {
			e.Register(b, r.NomineeID)
		}

		Convey("When winners are selected", func() {
			trs := e.SelectWinners(b, ranked)

			Convey("Then only the top nominee should win", func() {
				So(len(trs), ShouldEqual, 1)
				So(trs[0].Reasons(), ShouldResemble, []string{model.ReasonWinnerSelected})
				So(b.Winners(), ShouldResemble, []string{"a"})
				s, _ := b.Get("a")
				So(s.CertificateEligible(), ShouldBeTrue)
				So(s.CombinedCount, ShouldEqual, int64(0))
			})

			Convey("And selecting again should emit no new reasons", func() {
				again := e.SelectWinners(b, ranked)
				So(len(again), ShouldEqual, 1)
				So(again[0].Reasons(), ShouldBeEmpty)
			})
		})
	})

	Convey("Given a lifetime book", t, func() {
		e := newEvaluator()
		b := eligibility.NewBook("s-1", model.TierLifetime)
		for _, r := range ranked {
			e.Register(b, r.NomineeID)
		}

		Convey("Then three positively scored nominees should win", func() {
			e.SelectWinners(b, ranked)
			So(b.Winners(), ShouldResemble, []string{"a", "b", "c"})
		})
	})

	Convey("Given a lifetime book where only one nominee was scored", t, func() {
		e := newEvaluator()
		b := eligibility.NewBook("s-1", model.TierLifetime)
		e.Register(b, "a")
		e.Register(b, "z")

		Convey("Then unscored nominees should not win", func() {
			e.SelectWinners(b, []tally.Entry{{NomineeID: "a", WeightedScore: 1}, {NomineeID: "z"}})
			So(b.Winners(), ShouldResemble, []string{"a"})
		})
	})

	Convey("Given a platinum book", t, func() {
		e := newEvaluator()
		b := eligibility.NewBook("s-1", model.TierPlatinum)
		e.Register(b, "a")

		Convey("Then no winners should be selected", func() {
			So(e.SelectWinners(b, ranked), ShouldBeNil)
			So(b.Winners(), ShouldBeEmpty)
		})
	})

	Convey("Given a restored closure", t, func() {
		e := newEvaluator()
		b := eligibility.NewBook("s-1", model.TierCompetitive)
		e.Register(b, "b")
		e.MarkWinners(b, []string{"b", "ghost"})

		Convey("Then known nominees should be marked", func() {
			So(b.Winners(), ShouldResemble, []string{"b"})
		})
	})

	Convey("Given an invalid override", t, func() {
		_, err := eligibility.NewEvaluator(eligibility.WithWinnerCount(model.TierCompetitive, -1))

		Convey("Then construction should fail", func() {
			So(errors.Is(err, eligibility.ErrInvalidRule), ShouldBeTrue)
		})
	})
}
