// Package governance runs the evaluation pipeline for one project.
//
// A Project owns every per-project cache: the policy engine, the decision
// and requirement ledger, the persisted state store and the optional
// history database. Two Projects never share state, so tests and
// multi-root callers stay isolated.
//
// Evaluate is sequential. Callers evaluating many files call it once per
// file in a fixed order so state mutations happen in that order.
package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/roach88/lace/internal/config"
	"github.com/roach88/lace/internal/contextblock"
	"github.com/roach88/lace/internal/drift"
	"github.com/roach88/lace/internal/entropy"
	"github.com/roach88/lace/internal/history"
	"github.com/roach88/lace/internal/ledger"
	"github.com/roach88/lace/internal/policy"
	"github.com/roach88/lace/internal/state"
)

// ErrHistoryDisabled is returned by History when the project was opened
// without the history database.
var ErrHistoryDisabled = errors.New("evaluation history is disabled")

// Option configures a Project.
type Option func(*Project)

// WithLogger sets the logger shared by every component of the project.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Project) {
		p.logger = logger
	}
}

// WithSettings replaces the settings read from the .lace directory.
func WithSettings(s config.Settings) Option {
	return func(p *Project) {
		p.settings = &s
	}
}

// Project is one .lace root and everything cached for it.
type Project struct {
	loc      config.Location
	settings *config.Settings
	logger   *slog.Logger
	runID    string

	policies *policy.Engine
	ledger   *ledger.Ledger
	state    *state.Store
	entropy  *entropy.Engine
	drift    *drift.Detector
	history  *history.Store
}

// Open prepares a project rooted at loc. Settings are read from
// loc.RootDir unless WithSettings is given. The history database is opened
// only when the settings enable it.
func Open(loc config.Location, opts ...Option) (*Project, error) {
	p := &Project{
		loc:    loc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.settings == nil {
		s, err := config.LoadSettings(loc.RootDir)
		if err != nil {
			return nil, err
		}
		p.settings = &s
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	p.runID = runID.String()

	p.policies = policy.NewEngine(p.logger)
	p.ledger = ledger.New()
	p.state = state.New(loc.RootDir,
		state.WithDebounce(p.settings.Debounce),
		state.WithLogger(p.logger))
	p.entropy = entropy.NewEngine(p.state)
	p.drift = drift.NewDetector(p.state, p.settings.RecurrenceThreshold)

	if p.settings.History {
		h, err := history.Open(filepath.Join(loc.RootDir, history.FileName))
		if err != nil {
			return nil, err
		}
		p.history = h
	}

	p.logger.Debug("project opened",
		"root", loc.RootDir,
		"run_id", p.runID,
		"history", p.settings.History)
	return p, nil
}

// Location returns the project's .lace location.
func (p *Project) Location() config.Location {
	return p.loc
}

// Settings returns the settings in effect.
func (p *Project) Settings() config.Settings {
	return *p.settings
}

// RunID identifies this process's evaluations in the history database.
func (p *Project) RunID() string {
	return p.runID
}

// State returns the persisted state store.
func (p *Project) State() *state.Store {
	return p.state
}

// CIConfig returns the ci block of the policy file, or nil.
func (p *Project) CIConfig() (*policy.CIConfig, error) {
	return p.policies.CIConfig(p.loc.PolicyFile)
}

// Invalidate drops cached content for path, whichever declaration file it
// is. It satisfies watch.Invalidator.
func (p *Project) Invalidate(path string) {
	p.policies.Clear(path)
	p.ledger.Clear(path)
}

// InvalidateAll drops every cached declaration file.
func (p *Project) InvalidateAll() {
	p.policies.ClearAll()
	p.ledger.ClearAll()
}

// History lists recorded evaluations, optionally for one module.
func (p *Project) History(ctx context.Context, modulePath string, limit int) ([]history.Entry, error) {
	if p.history == nil {
		return nil, ErrHistoryDisabled
	}
	return p.history.List(ctx, modulePath, limit)
}

// Close writes pending state and closes the history database.
func (p *Project) Close() error {
	err := p.state.Flush()
	if p.history != nil {
		err = errors.Join(err, p.history.Close())
	}
	return err
}

// Evaluation is the full result of evaluating one file.
type Evaluation struct {
	Metadata    policy.Metadata           `json:"metadata"`
	Matches     []policy.Match            `json:"matches"`
	Decisions   []ledger.DecisionRecord   `json:"decisions"`
	Requirement *ledger.RequirementRecord `json:"requirement,omitempty"`
	Context     contextblock.Result       `json:"context"`
	Entropy     entropy.Recorded          `json:"entropy"`
}

// StrictViolations counts strict violations.
func (e *Evaluation) StrictViolations() int {
	return policy.CountBySeverity(e.Matches, policy.SeverityStrict)
}

// AdvisoryViolations counts advisory violations.
func (e *Evaluation) AdvisoryViolations() int {
	return policy.CountBySeverity(e.Matches, policy.SeverityAdvisory)
}

// ContextInput returns the context compiler input the evaluation was built from.
func (e *Evaluation) ContextInput() contextblock.Input {
	return contextblock.Input{
		Metadata:    e.Metadata,
		Matches:     e.Matches,
		Decisions:   e.Decisions,
		Requirement: e.Requirement,
	}
}

func (e *Evaluation) entropyInput() entropy.Input {
	return entropy.Input{
		Metadata:  e.Metadata,
		Matches:   e.Matches,
		Decisions: e.Decisions,
		Context:   e.Context,
	}
}

// Evaluate runs the pipeline for one file:
//
//	load policies, match, count strict violations in state,
//	select decisions and requirement, compile the context block,
//	record entropy, append history.
//
// Configuration and I/O errors are returned. State corruption is not.
func (p *Project) Evaluate(ctx context.Context, md policy.Metadata) (*Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	policies, err := p.policies.Load(p.loc.PolicyFile)
	if err != nil {
		return nil, err
	}
	matches := policy.Evaluate(policies, md)

	for _, m := range matches {
		for _, v := range m.Violations {
			if v.Severity == policy.SeverityStrict {
				p.state.IncrementViolation(v.PolicyID, md.ModulePath)
			}
		}
	}

	decisions, err := p.ledger.DecisionsForFile(p.loc.RootDir, md.ModulePath, policy.IDs(matches))
	if err != nil {
		return nil, err
	}
	requirement, err := p.ledger.RequirementForFile(p.loc.RootDir, md.ModulePath)
	if err != nil {
		return nil, err
	}

	ev := &Evaluation{
		Metadata:    md,
		Matches:     matches,
		Decisions:   decisions,
		Requirement: requirement,
	}
	ev.Context = contextblock.Compile(ev.ContextInput())
	ev.Entropy = p.entropy.Record(ev.entropyInput())

	if p.history != nil {
		c := ev.Entropy.Components
		if _, err := p.history.Append(ctx, history.Entry{
			RunID:              p.runID,
			ModulePath:         md.ModulePath,
			Score:              ev.Entropy.Score,
			Trend:              ev.Entropy.Trend,
			VRS:                c.VRS,
			PDS:                c.PDS,
			DDS:                c.DDS,
			CIS:                c.CIS,
			SCS:                c.SCS,
			StrictViolations:   ev.StrictViolations(),
			AdvisoryViolations: ev.AdvisoryViolations(),
			ContextHash:        history.ContextHash(ev.Context.Text),
		}); err != nil {
			return nil, err
		}
	}

	p.logger.Debug("file evaluated",
		"module", md.ModulePath,
		"matches", len(matches),
		"strict", ev.StrictViolations(),
		"score", ev.Entropy.Score,
		"trend", ev.Entropy.Trend)
	return ev, nil
}

// Health is the history-derived report for one evaluation.
type Health struct {
	Entropy entropy.Report `json:"entropy"`
	Drift   drift.Report   `json:"drift"`
}

// Health derives the entropy and drift reports for ev from persisted state.
func (p *Project) Health(ev *Evaluation) Health {
	return Health{
		Entropy: p.entropy.Report(ev.entropyInput()),
		Drift:   p.drift.Analyze(ev.Matches),
	}
}
