package core

import (
	"math"
	"time"

	"github.com/propio/lead-scoring/internal/domains"
)

// Feature names, in model input order
const (
	FeatProfileCompleteness      = "profileCompleteness"
	FeatLeadAgeDays              = "leadAgeDays"
	FeatTotalInteractions        = "totalInteractions"
	FeatEmailInteractions        = "emailInteractions"
	FeatCallInteractions         = "callInteractions"
	FeatViewingInteractions      = "viewingInteractions"
	FeatMessageInteractions      = "messageInteractions"
	FeatDaysSinceLastInteraction = "daysSinceLastInteraction"
	FeatEngagementScore          = "engagementScore"
	FeatAvgBudget                = "avgBudget"
	FeatMaxBudget                = "maxBudget"
	FeatPreferenceCount          = "preferenceCount"
	FeatAvgBedrooms              = "avgBedrooms"
	FeatHasEmail                 = "hasEmail"
	FeatHasPhone                 = "hasPhone"
	FeatHasFreemailDomain        = "hasFreemailDomain"
)

// staleSentinelDays is recorded when a lead has no interactions at all
const staleSentinelDays = 999

// featureSpec pins a feature's position and its normalization divisor.
// A divisor of zero means the raw value is already in [0,1].
type featureSpec struct {
	name    string
	divisor float64
}

// featureSpecs is the single source of truth for feature order. Models are
// trained against this exact layout; changing it invalidates stored weights.
var featureSpecs = []featureSpec{
	{FeatProfileCompleteness, 0},
	{FeatLeadAgeDays, 365},
	{FeatTotalInteractions, 50},
	{FeatEmailInteractions, 20},
	{FeatCallInteractions, 20},
	{FeatViewingInteractions, 20},
	{FeatMessageInteractions, 20},
	{FeatDaysSinceLastInteraction, staleSentinelDays},
	{FeatEngagementScore, 0},
	{FeatAvgBudget, 1000000},
	{FeatMaxBudget, 1000000},
	{FeatPreferenceCount, 10},
	{FeatAvgBedrooms, 10},
	{FeatHasEmail, 0},
	{FeatHasPhone, 0},
	{FeatHasFreemailDomain, 0},
}

// FeatureNames returns the feature names in model input order
func FeatureNames() []string {
	names := make([]string, len(featureSpecs))
	for i, spec := range featureSpecs {
		names[i] = spec.name
	}
	return names
}

// FeatureCount is the width of every feature vector
func FeatureCount() int {
	return len(featureSpecs)
}

// FeatureVector is an ordered mapping of named features to normalized
// values. Raw values are kept alongside for explanation rules that reason
// about counts and day spans rather than model inputs.
type FeatureVector struct {
	Raw        map[string]float64
	Normalized map[string]float64
}

// Ordered returns the normalized values laid out in model input order
func (v *FeatureVector) Ordered() []float64 {
	out := make([]float64, len(featureSpecs))
	for i, spec := range featureSpecs {
		out[i] = v.Normalized[spec.name]
	}
	return out
}

// FeatureExtractor turns a lead snapshot and its history into a fixed-order
// numeric feature vector. Extraction is a pure function of its inputs: the
// reference time is an explicit parameter, never the wall clock.
type FeatureExtractor struct {
	classifier *domains.Classifier
}

// NewFeatureExtractor creates a feature extractor
func NewFeatureExtractor(classifier *domains.Classifier) *FeatureExtractor {
	return &FeatureExtractor{classifier: classifier}
}

// Extract computes the feature vector for a lead as of the given time.
// Missing history never fails; it produces zero-valued features plus the
// staleness sentinel.
func (e *FeatureExtractor) Extract(lead *LeadSnapshot, interactions []Interaction, prefs []PropertyPreference, now time.Time) *FeatureVector {
	raw := make(map[string]float64, len(featureSpecs))

	raw[FeatProfileCompleteness] = profileCompleteness(lead)
	raw[FeatLeadAgeDays] = daysBetween(lead.CreatedAt, now)

	byChannel := map[string]float64{}
	var lastSeen time.Time
	for _, in := range interactions {
		byChannel[in.Channel]++
		if in.OccurredAt.After(lastSeen) {
			lastSeen = in.OccurredAt
		}
	}
	raw[FeatTotalInteractions] = float64(len(interactions))
	raw[FeatEmailInteractions] = byChannel[ChannelEmail]
	raw[FeatCallInteractions] = byChannel[ChannelCall]
	raw[FeatViewingInteractions] = byChannel[ChannelViewing]
	raw[FeatMessageInteractions] = byChannel[ChannelMessage]

	if lastSeen.IsZero() {
		raw[FeatDaysSinceLastInteraction] = staleSentinelDays
	} else {
		raw[FeatDaysSinceLastInteraction] = daysBetween(lastSeen, now)
	}

	raw[FeatEngagementScore] = engagementScore(lead, interactions, now)

	var budgetSum, budgetMax, bedroomSum float64
	for _, p := range prefs {
		budgetSum += p.Budget
		if p.Budget > budgetMax {
			budgetMax = p.Budget
		}
		bedroomSum += float64(p.Bedrooms)
	}
	if len(prefs) > 0 {
		raw[FeatAvgBudget] = budgetSum / float64(len(prefs))
		raw[FeatAvgBedrooms] = bedroomSum / float64(len(prefs))
	}
	raw[FeatMaxBudget] = budgetMax
	raw[FeatPreferenceCount] = float64(len(prefs))

	raw[FeatHasEmail] = boolFeature(lead.Email != "")
	raw[FeatHasPhone] = boolFeature(lead.Phone != "")
	raw[FeatHasFreemailDomain] = boolFeature(e.classifier.IsFreemail(lead.Email))

	normalized := make(map[string]float64, len(featureSpecs))
	for _, spec := range featureSpecs {
		value := raw[spec.name]
		if spec.divisor > 0 {
			value /= spec.divisor
		}
		normalized[spec.name] = clamp01(value)
	}

	return &FeatureVector{Raw: raw, Normalized: normalized}
}

// profileCompleteness is the fraction of the fixed profile field set that
// is non-empty.
func profileCompleteness(lead *LeadSnapshot) float64 {
	fields := []string{lead.FirstName, lead.LastName, lead.Email, lead.Phone, lead.Source}
	filled := 0
	for _, f := range fields {
		if f != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(fields))
}

// engagementScore combines capped sub-scores for volume, recency, channel
// diversity and contact frequency, clamped to [0,1].
func engagementScore(lead *LeadSnapshot, interactions []Interaction, now time.Time) float64 {
	if len(interactions) == 0 {
		return 0
	}

	total := float64(len(interactions))
	volume := math.Min(total/20, 0.3)

	var recent float64
	channels := map[string]struct{}{}
	cutoff := now.AddDate(0, 0, -30)
	for _, in := range interactions {
		if in.OccurredAt.After(cutoff) {
			recent++
		}
		channels[in.Channel] = struct{}{}
	}
	recency := math.Min(recent/10, 0.3)
	diversity := math.Min(float64(len(channels))/4, 1) * 0.2

	weeks := daysBetween(lead.CreatedAt, now) / 7
	if weeks < 1 {
		weeks = 1
	}
	frequency := math.Min(total/weeks/3, 1) * 0.2

	return clamp01(volume + recency + diversity + frequency)
}

func daysBetween(from, to time.Time) float64 {
	days := to.Sub(from).Hours() / 24
	if days < 0 {
		return 0
	}
	return math.Floor(days)
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
