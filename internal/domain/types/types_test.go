package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTallyEntry(t *testing.T) {
	Convey("Given a TallyEntry", t, func() {
		entry := TallyEntry{Rank: 1, NomineeID: "n-1", WeightedScore: 0.73}

		Convey("When encoding to JSON", func() {
			raw, err := json.Marshal(entry)

			Convey("Then it should use the read-path field names", func() {
				So(err, ShouldBeNil)
				So(string(raw), ShouldEqual, `{"rank":1,"nominee_id":"n-1","weighted_score":0.73}`)
			})
		})
	})
}

func TestIngestError(t *testing.T) {
	Convey("Given an IngestError", t, func() {
		cause := errors.New("insufficient funds")
		err := NewError("submit_vote", ErrLedgerRejected, cause)

		Convey("Then errors.Is should match the kind and the cause", func() {
			So(errors.Is(err, ErrLedgerRejected), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(errors.Is(err, ErrValidation), ShouldBeFalse)
		})

		Convey("Then the message should carry the op", func() {
			So(err.Error(), ShouldEqual, "submit_vote: ledger rejected: insufficient funds")
		})

		Convey("When wrapped again", func() {
			wrapped := fmt.Errorf("http: %w", err)

			Convey("Then the kind should still be recoverable", func() {
				So(KindOf(wrapped), ShouldEqual, ErrLedgerRejected)
				So(KindLabel(wrapped), ShouldEqual, "ledger_rejected")
			})
		})

		Convey("When built without a cause", func() {
			bare := NewError("close", ErrNotFound, nil)

			Convey("Then the message should be op and kind only", func() {
				So(bare.Error(), ShouldEqual, "close: not found")
				So(errors.Is(bare, ErrNotFound), ShouldBeTrue)
			})
		})
	})

	Convey("Given a validation error", t, func() {
		err := Validationf("submit_vote", "role %q not permitted", "public")

		Convey("Then it should classify as validation", func() {
			So(errors.Is(err, ErrValidation), ShouldBeTrue)
			So(KindLabel(err), ShouldEqual, "validation")
			So(err.Error(), ShouldContainSubstring, `role "public" not permitted`)
		})
	})

	Convey("Given an unclassified error", t, func() {
		Convey("Then KindOf should be nil", func() {
			So(KindOf(errors.New("disk full")), ShouldBeNil)
			So(KindLabel(errors.New("disk full")), ShouldEqual, "internal")
		})
	})
}
