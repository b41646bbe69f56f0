package core

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Explainability tuning knobs
const (
	factorImpactFloor   = 0.1
	maxTopFactors       = 5
	maxSimilarLeads     = 5
	similarLookbackDays = 7
)

// WeightTable is a static, versioned table of per-feature importance
// weights. The simplified models expose no native attribution API, so
// explanations are derived from this hand-authored approximation; the
// table is explicit and swappable rather than pretending to reflect the
// live model's internals.
type WeightTable struct {
	Version string
	Weights map[string]float64
}

// DefaultWeightTable returns the importance weights shipped with this
// release.
func DefaultWeightTable() *WeightTable {
	return &WeightTable{
		Version: "v1",
		Weights: map[string]float64{
			FeatEngagementScore:          0.25,
			FeatTotalInteractions:        0.20,
			FeatViewingInteractions:      0.15,
			FeatDaysSinceLastInteraction: -0.15,
			FeatProfileCompleteness:      0.10,
			FeatCallInteractions:         0.10,
			FeatAvgBudget:                0.10,
			FeatLeadAgeDays:              -0.05,
			FeatPreferenceCount:          0.05,
			FeatHasEmail:                 0.05,
			FeatHasPhone:                 0.05,
			FeatHasFreemailDomain:        -0.05,
		},
	}
}

// ExplainabilityEngine derives ranked factors, contribution shares,
// comparable leads and follow-up recommendations for a score. Explanations
// are recomputed on demand and never persisted.
type ExplainabilityEngine struct {
	leads     LeadStore
	scores    ScoreStore
	extractor *FeatureExtractor
	table     *WeightTable
	logger    *zap.Logger
	now       func() time.Time
}

// NewExplainabilityEngine creates an explainability engine
func NewExplainabilityEngine(
	leads LeadStore,
	scores ScoreStore,
	extractor *FeatureExtractor,
	table *WeightTable,
	logger *zap.Logger,
) *ExplainabilityEngine {
	if table == nil {
		table = DefaultWeightTable()
	}
	return &ExplainabilityEngine{
		leads:     leads,
		scores:    scores,
		extractor: extractor,
		table:     table,
		logger:    logger,
		now:       time.Now,
	}
}

// ExplainLead explains the most recent score of a lead. Returns
// ErrNotFound when the lead has never been scored.
func (e *ExplainabilityEngine) ExplainLead(ctx context.Context, leadID string) (*Explanation, error) {
	latest, err := e.scores.Latest(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("no score history for lead %s: %w", leadID, ErrNotFound)
	}

	lead, err := e.leads.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	interactions, err := e.leads.GetInteractions(ctx, leadID)
	if err != nil {
		return nil, err
	}
	prefs, err := e.leads.GetPropertyPrefs(ctx, leadID)
	if err != nil {
		return nil, err
	}

	vector := e.extractor.Extract(lead, interactions, prefs, e.now())
	return e.Explain(ctx, leadID, latest.Score, vector)
}

// Explain derives a full explanation for a score and its feature vector
func (e *ExplainabilityEngine) Explain(ctx context.Context, leadID string, score float64, vector *FeatureVector) (*Explanation, error) {
	raw := e.FeatureContributions(vector)
	normalized := normalizeContributions(raw)

	similar, err := e.FindSimilarLeads(ctx, leadID, vector)
	if err != nil {
		// Similar-lead lookup is best effort; the rest of the
		// explanation is still useful without it.
		e.logger.Warn("Similar lead lookup failed", zap.Error(err), zap.String("lead_id", leadID))
		similar = nil
	}

	return &Explanation{
		LeadID:           leadID,
		Score:            score,
		Confidence:       Confidence(score),
		TopFactors:       e.TopFactors(score, vector),
		Contributions:    normalized,
		RawContributions: raw,
		SimilarLeads:     similar,
		Recommendations:  e.Recommendations(score, vector),
		WeightTable:      e.table.Version,
	}, nil
}

// TopFactors ranks features by |weight x value| in the direction the score
// leans. Factors below the impact floor are dropped; at most five are
// returned.
func (e *ExplainabilityEngine) TopFactors(score float64, vector *FeatureVector) []Factor {
	direction := 1.0
	if score < 0.5 {
		direction = -1.0
	}

	var factors []Factor
	for name, weight := range e.table.Weights {
		impact := weight * vector.Normalized[name] * direction
		if math.Abs(impact) > factorImpactFloor {
			factors = append(factors, Factor{
				Feature: name,
				Impact:  impact,
				Value:   vector.Raw[name],
			})
		}
	}

	sort.Slice(factors, func(i, j int) bool {
		if math.Abs(factors[i].Impact) != math.Abs(factors[j].Impact) {
			return math.Abs(factors[i].Impact) > math.Abs(factors[j].Impact)
		}
		return factors[i].Feature < factors[j].Feature
	})

	if len(factors) > maxTopFactors {
		factors = factors[:maxTopFactors]
	}
	return factors
}

// FeatureContributions computes unnormalized per-feature contribution
// shares from hand-authored heuristics.
func (e *ExplainabilityEngine) FeatureContributions(vector *FeatureVector) map[string]float64 {
	n := vector.Normalized
	return map[string]float64{
		FeatEngagementScore:          n[FeatEngagementScore] * 0.2,
		FeatTotalInteractions:        n[FeatTotalInteractions] * 0.15,
		FeatProfileCompleteness:      n[FeatProfileCompleteness] * 0.15,
		FeatViewingInteractions:      n[FeatViewingInteractions] * 0.1,
		FeatCallInteractions:         n[FeatCallInteractions] * 0.1,
		FeatAvgBudget:                n[FeatAvgBudget] * 0.1,
		FeatDaysSinceLastInteraction: (1 - n[FeatDaysSinceLastInteraction]) * 0.1,
		FeatHasEmail:                 n[FeatHasEmail] * 0.05,
		FeatHasPhone:                 n[FeatHasPhone] * 0.05,
	}
}

// normalizeContributions scales contributions to sum to one. When the raw
// total is zero every normalized contribution is zero.
func normalizeContributions(raw map[string]float64) map[string]float64 {
	var total float64
	for _, v := range raw {
		total += v
	}

	normalized := make(map[string]float64, len(raw))
	for name, v := range raw {
		if total == 0 {
			normalized[name] = 0
			continue
		}
		normalized[name] = v / total
	}
	return normalized
}

// FindSimilarLeads ranks recently scored leads by unweighted L1 distance
// over interaction volume, budget and lead age.
func (e *ExplainabilityEngine) FindSimilarLeads(ctx context.Context, leadID string, vector *FeatureVector) ([]SimilarLead, error) {
	to := e.now()
	from := to.AddDate(0, 0, -similarLookbackDays)
	records, err := e.scores.Query(ctx, "", from, to)
	if err != nil {
		return nil, &PersistenceError{Op: "similar lead query", Err: err}
	}

	// Newest record per lead; Query returns newest first.
	seen := map[string]struct{}{}
	var similar []SimilarLead
	for _, record := range records {
		if record.LeadID == leadID {
			continue
		}
		if _, dup := seen[record.LeadID]; dup {
			continue
		}
		seen[record.LeadID] = struct{}{}

		distance := l1Distance(vector.Normalized, record.FeaturesUsed,
			FeatTotalInteractions, FeatAvgBudget, FeatLeadAgeDays)
		similar = append(similar, SimilarLead{
			LeadID:   record.LeadID,
			Score:    record.Score,
			Distance: distance,
		})
	}

	sort.Slice(similar, func(i, j int) bool {
		if similar[i].Distance != similar[j].Distance {
			return similar[i].Distance < similar[j].Distance
		}
		return similar[i].LeadID < similar[j].LeadID
	})

	if len(similar) > maxSimilarLeads {
		similar = similar[:maxSimilarLeads]
	}
	return similar, nil
}

func l1Distance(a, b map[string]float64, features ...string) float64 {
	var sum float64
	for _, f := range features {
		sum += math.Abs(a[f] - b[f])
	}
	return sum
}

// Recommendations applies ordered threshold rules. Every matching rule
// contributes a recommendation, not just the first.
func (e *ExplainabilityEngine) Recommendations(score float64, vector *FeatureVector) []string {
	var out []string
	if score > 0.8 {
		out = append(out, "High conversion potential: prioritize immediate follow-up")
	}
	if score < 0.3 {
		out = append(out, "Low conversion potential: consider re-qualification")
	}
	if vector.Raw[FeatDaysSinceLastInteraction] > 30 {
		out = append(out, "No recent contact: re-engagement needed")
	}
	if vector.Raw[FeatTotalInteractions] < 3 {
		out = append(out, "Sparse history: gather more data before acting on this score")
	}
	return out
}
