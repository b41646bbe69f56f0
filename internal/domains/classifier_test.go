package domains_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/propio/lead-scoring/internal/domains"
)

func TestClassifier_IsFreemail(t *testing.T) {
	Convey("Given a classifier with the built-in domain list", t, func() {
		c := domains.NewClassifier(nil, nil)

		Convey("Then common freemail providers are recognized", func() {
			So(c.IsFreemail("someone@gmail.com"), ShouldBeTrue)
			So(c.IsFreemail("someone@yahoo.com"), ShouldBeTrue)
			So(c.IsFreemail("someone@icloud.com"), ShouldBeTrue)
		})

		Convey("Then matching ignores case", func() {
			So(c.IsFreemail("Someone@GMAIL.COM"), ShouldBeTrue)
		})

		Convey("Then corporate domains are not flagged", func() {
			So(c.IsFreemail("someone@acme-realty.com"), ShouldBeFalse)
		})

		Convey("Then malformed addresses are never flagged", func() {
			So(c.IsFreemail(""), ShouldBeFalse)
			So(c.IsFreemail("no-at-sign"), ShouldBeFalse)
			So(c.IsFreemail("trailing@"), ShouldBeFalse)
			So(c.IsFreemail("two@at@signs"), ShouldBeFalse)
		})
	})

	Convey("Given a classifier with a custom domain list", t, func() {
		c := domains.NewClassifier([]string{"Example.ORG "}, nil)

		Convey("Then configured domains are normalized and matched", func() {
			So(c.IsFreemail("a@example.org"), ShouldBeTrue)
		})

		Convey("Then the built-in list is replaced, not extended", func() {
			So(c.IsFreemail("a@gmail.com"), ShouldBeFalse)
		})
	})
}
