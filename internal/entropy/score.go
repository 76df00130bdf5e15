// Package entropy scores the governance health of one file evaluation and
// tracks how that score moves between evaluations.
//
// The composite score is a weighted sum of five components, each bounded
// to [0,1]:
//
//	vrs  violation recurrence  strict violations / 10
//	pds  policy drift          violated applicable policies / applicable policies
//	dds  decision drift        linked decisions with a violated origin policy / linked decisions
//	cis  context inflation     context tokens / 400
//	scs  structural coupling   relative imports / 20
//
// Scores and components are rounded to four decimals.
package entropy

import (
	"math"
	"strings"

	"github.com/roach88/lace/internal/contextblock"
	"github.com/roach88/lace/internal/ledger"
	"github.com/roach88/lace/internal/policy"
	"github.com/roach88/lace/internal/source"
	"github.com/roach88/lace/internal/state"
)

// Component weights. They sum to 1.
const (
	WeightVRS = 0.30
	WeightPDS = 0.25
	WeightDDS = 0.20
	WeightCIS = 0.15
	WeightSCS = 0.10
)

const (
	strictViolationCap = 10
	relativeImportCap  = 20

	// TrendEpsilon is the smallest trend magnitude reported as movement.
	TrendEpsilon = 0.0001
)

// Input is one evaluated file.
type Input struct {
	Metadata  policy.Metadata
	Matches   []policy.Match
	Decisions []ledger.DecisionRecord
	Context   contextblock.Result
}

// Components are the five bounded sub-scores.
type Components struct {
	VRS float64 `json:"vrs"`
	PDS float64 `json:"pds"`
	DDS float64 `json:"dds"`
	CIS float64 `json:"cis"`
	SCS float64 `json:"scs"`
}

// Calculation is a scored evaluation.
type Calculation struct {
	Components Components `json:"components"`
	Score      float64    `json:"score"`
	Tokens     int        `json:"tokens"`
}

// Recorded is a Calculation plus the movement since the previous one.
type Recorded struct {
	Calculation
	Trend float64 `json:"trend"`
}

// Calculate scores in without touching persisted state.
func Calculate(in Input) Calculation {
	tokens := contextblock.EstimateTokens(in.Context.Text)

	c := Components{
		VRS: bounded(float64(policy.CountBySeverity(in.Matches, policy.SeverityStrict)) / strictViolationCap),
		PDS: policyDrift(in.Matches),
		DDS: decisionDrift(in.Matches, in.Decisions),
		CIS: bounded(float64(tokens) / contextblock.MaxTokens),
		SCS: bounded(float64(RelativeImports(in.Metadata)) / relativeImportCap),
	}

	score := WeightVRS*c.VRS +
		WeightPDS*c.PDS +
		WeightDDS*c.DDS +
		WeightCIS*c.CIS +
		WeightSCS*c.SCS

	return Calculation{
		Components: c,
		Score:      state.Round4(score),
		Tokens:     tokens,
	}
}

func policyDrift(matches []policy.Match) float64 {
	if len(matches) == 0 {
		return 0
	}
	violated := 0
	for _, m := range matches {
		if m.HasViolations() {
			violated++
		}
	}
	return bounded(float64(violated) / float64(len(matches)))
}

func decisionDrift(matches []policy.Match, decisions []ledger.DecisionRecord) float64 {
	if len(decisions) == 0 {
		return 0
	}
	violatedOrigins := make(map[string]struct{})
	for _, m := range matches {
		if m.Policy.Origin != "" && m.HasViolations() {
			violatedOrigins[m.Policy.Origin] = struct{}{}
		}
	}
	drifted := 0
	for _, d := range decisions {
		if _, ok := violatedOrigins[d.ID]; ok {
			drifted++
		}
	}
	return bounded(float64(drifted) / float64(len(decisions)))
}

// RelativeImports counts imports that point inside the project.
//
// For C-family languages that is every include not written with angle
// brackets. Otherwise an import is relative when it starts with ".",
// contains "/", or has no "://" scheme separator.
func RelativeImports(md policy.Metadata) int {
	cFamily := source.IsCFamily(strings.ToLower(md.LanguageID))
	count := 0
	for _, imp := range md.Imports {
		if cFamily {
			if !imp.Bracketed {
				count++
			}
			continue
		}
		if strings.HasPrefix(imp.Value, ".") ||
			strings.Contains(imp.Value, "/") ||
			!strings.Contains(imp.Value, "://") {
			count++
		}
	}
	return count
}

func bounded(v float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	return state.Round4(math.Min(v, 1))
}
