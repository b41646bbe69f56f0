package core_test

import (
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/propio/lead-scoring/internal/core"
	"github.com/propio/lead-scoring/internal/domains"
)

var extractorNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newExtractor() *core.FeatureExtractor {
	return core.NewFeatureExtractor(domains.NewClassifier(nil, nil))
}

func TestFeatureExtractor_EmptyHistory(t *testing.T) {
	Convey("Given a lead with no interactions and no preferences", t, func() {
		extractor := newExtractor()
		lead := &core.LeadSnapshot{
			ID:        "lead-1",
			CreatedAt: extractorNow.AddDate(0, 0, -10),
		}

		Convey("When extracting features", func() {
			vector := extractor.Extract(lead, nil, nil, extractorNow)

			Convey("Then every named feature is present and finite", func() {
				for _, name := range core.FeatureNames() {
					value, ok := vector.Normalized[name]
					So(ok, ShouldBeTrue)
					So(math.IsNaN(value), ShouldBeFalse)
					So(math.IsInf(value, 0), ShouldBeFalse)
				}
			})

			Convey("Then the staleness sentinel is recorded", func() {
				So(vector.Raw[core.FeatDaysSinceLastInteraction], ShouldEqual, 999)
				So(vector.Normalized[core.FeatDaysSinceLastInteraction], ShouldEqual, 1)
			})

			Convey("Then count features are zero", func() {
				So(vector.Raw[core.FeatTotalInteractions], ShouldEqual, 0)
				So(vector.Raw[core.FeatEngagementScore], ShouldEqual, 0)
				So(vector.Raw[core.FeatPreferenceCount], ShouldEqual, 0)
			})

			Convey("Then the ordered vector has the fixed width", func() {
				So(len(vector.Ordered()), ShouldEqual, core.FeatureCount())
			})
		})
	})
}

func TestFeatureExtractor_Normalization(t *testing.T) {
	Convey("Given a lead with a rich history", t, func() {
		extractor := newExtractor()
		lead := &core.LeadSnapshot{
			ID:        "lead-2",
			FirstName: "Ada",
			LastName:  "Laurent",
			Email:     "ada@example.com",
			Phone:     "+33123456789",
			Source:    "website",
			CreatedAt: extractorNow.AddDate(0, 0, -100),
		}

		var interactions []core.Interaction
		for i := 0; i < 25; i++ {
			interactions = append(interactions, core.Interaction{
				LeadID:     lead.ID,
				Channel:    core.ChannelEmail,
				OccurredAt: extractorNow.AddDate(0, 0, -i-1),
			})
		}
		prefs := []core.PropertyPreference{
			{LeadID: lead.ID, PropertyType: "apartment", Budget: 400000, Bedrooms: 2},
			{LeadID: lead.ID, PropertyType: "house", Budget: 600000, Bedrooms: 4},
		}

		Convey("When extracting features", func() {
			vector := extractor.Extract(lead, interactions, prefs, extractorNow)

			Convey("Then interaction counts are divided by their caps", func() {
				So(vector.Raw[core.FeatTotalInteractions], ShouldEqual, 25)
				So(vector.Normalized[core.FeatTotalInteractions], ShouldEqual, 0.5)
				So(vector.Normalized[core.FeatEmailInteractions], ShouldEqual, 1)
			})

			Convey("Then budgets average and normalize against one million", func() {
				So(vector.Raw[core.FeatAvgBudget], ShouldEqual, 500000)
				So(vector.Normalized[core.FeatAvgBudget], ShouldEqual, 0.5)
				So(vector.Normalized[core.FeatMaxBudget], ShouldEqual, 0.6)
			})

			Convey("Then the full profile scores complete", func() {
				So(vector.Raw[core.FeatProfileCompleteness], ShouldEqual, 1)
			})

			Convey("Then a corporate address is not flagged as freemail", func() {
				So(vector.Raw[core.FeatHasFreemailDomain], ShouldEqual, 0)
			})

			Convey("Then every normalized value stays inside the unit interval", func() {
				for _, v := range vector.Normalized {
					So(v, ShouldBeGreaterThanOrEqualTo, 0)
					So(v, ShouldBeLessThanOrEqualTo, 1)
				}
			})
		})
	})

	Convey("Given a lead with a freemail address and a partial profile", t, func() {
		extractor := newExtractor()
		lead := &core.LeadSnapshot{
			ID:        "lead-3",
			FirstName: "Kim",
			Email:     "kim@gmail.com",
			CreatedAt: extractorNow.AddDate(0, 0, -5),
		}

		Convey("When extracting features", func() {
			vector := extractor.Extract(lead, nil, nil, extractorNow)

			Convey("Then the freemail flag is set", func() {
				So(vector.Raw[core.FeatHasFreemailDomain], ShouldEqual, 1)
			})

			Convey("Then completeness counts two of five profile fields", func() {
				So(vector.Raw[core.FeatProfileCompleteness], ShouldEqual, 0.4)
			})
		})
	})
}

func TestFeatureExtractor_Determinism(t *testing.T) {
	Convey("Given identical inputs and the same reference time", t, func() {
		extractor := newExtractor()
		lead := &core.LeadSnapshot{
			ID:        "lead-4",
			Email:     "x@outlook.com",
			CreatedAt: extractorNow.AddDate(0, 0, -42),
		}
		interactions := []core.Interaction{
			{LeadID: lead.ID, Channel: core.ChannelCall, OccurredAt: extractorNow.AddDate(0, 0, -3)},
			{LeadID: lead.ID, Channel: core.ChannelViewing, OccurredAt: extractorNow.AddDate(0, 0, -7)},
		}

		Convey("When extracting twice", func() {
			first := extractor.Extract(lead, interactions, nil, extractorNow).Ordered()
			second := extractor.Extract(lead, interactions, nil, extractorNow).Ordered()

			Convey("Then the vectors are identical element for element", func() {
				So(len(first), ShouldEqual, len(second))
				for i := range first {
					So(first[i], ShouldEqual, second[i])
				}
			})
		})
	})
}

func TestFeatureExtractor_Staleness(t *testing.T) {
	Convey("Given a lead whose last interaction is 12 days old", t, func() {
		extractor := newExtractor()
		lead := &core.LeadSnapshot{ID: "lead-5", CreatedAt: extractorNow.AddDate(0, 0, -60)}
		interactions := []core.Interaction{
			{LeadID: lead.ID, Channel: core.ChannelMessage, OccurredAt: extractorNow.AddDate(0, 0, -12)},
			{LeadID: lead.ID, Channel: core.ChannelMessage, OccurredAt: extractorNow.AddDate(0, 0, -40)},
		}

		Convey("When extracting features", func() {
			vector := extractor.Extract(lead, interactions, nil, extractorNow)

			Convey("Then staleness tracks the most recent interaction", func() {
				So(vector.Raw[core.FeatDaysSinceLastInteraction], ShouldEqual, 12)
			})
		})
	})
}
