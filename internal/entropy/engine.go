package entropy

import (
	"math"

	"github.com/roach88/lace/internal/contextblock"
	"github.com/roach88/lace/internal/state"
)

// Engine scores evaluations against one project's persisted state.
type Engine struct {
	store *state.Store
}

// NewEngine creates an engine backed by store.
func NewEngine(store *state.Store) *Engine {
	return &Engine{store: store}
}

// Record scores in, compares it with the module's previous score and
// stores the new one.
//
// The first evaluation of a module has trend 0. Movements smaller than
// TrendEpsilon are reported as 0.
func (e *Engine) Record(in Input) Recorded {
	calc := Calculate(in)
	modulePath := in.Metadata.ModulePath

	previous, ok := e.store.Entropy(modulePath)
	if !ok {
		previous = calc.Score
	}

	trend := state.Round4(calc.Score - previous)
	if math.Abs(trend) < TrendEpsilon {
		trend = 0
	}

	e.store.SetEntropy(modulePath, calc.Score)
	return Recorded{Calculation: calc, Trend: trend}
}

// Report is the history-derived health summary for one evaluation.
type Report struct {
	// ViolationRecurrence is each rule's share of all recorded violations.
	ViolationRecurrence map[string]float64 `json:"violationRecurrence"`
	// FileDrift is the raw violation count per module path.
	FileDrift map[string]int `json:"fileDriftScore"`
	// DecisionDrift sums recorded violations of the matched policies
	// originating from each decision.
	DecisionDrift map[string]int `json:"decisionDriftScore"`
	// ContextInflation is the token estimate of the compiled block.
	ContextInflation int `json:"contextInflationScore"`
	// Coupling maps the module path to its import count.
	Coupling map[string]int `json:"couplingIndicator"`
}

// Report derives the health summary of in from persisted history.
func (e *Engine) Report(in Input) Report {
	snap := e.store.Snapshot()

	total := 0
	for _, count := range snap.Violations {
		total += count
	}
	total = max(total, 1)

	r := Report{
		ViolationRecurrence: make(map[string]float64, len(snap.Violations)),
		FileDrift:           make(map[string]int, len(snap.Files)),
		DecisionDrift:       make(map[string]int),
		ContextInflation:    contextblock.EstimateTokens(in.Context.Text),
		Coupling:            map[string]int{in.Metadata.ModulePath: len(in.Metadata.Imports)},
	}

	for id, count := range snap.Violations {
		r.ViolationRecurrence[id] = round3(float64(count) / float64(total))
	}
	for path, stats := range snap.Files {
		r.FileDrift[path] = stats.ViolationCount
	}
	for _, m := range in.Matches {
		if m.Policy.Origin == "" {
			continue
		}
		r.DecisionDrift[m.Policy.Origin] += snap.Violations[m.Policy.ID]
	}

	return r
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
