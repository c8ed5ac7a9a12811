package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultPrimaryOutput is the output classified when none is configured.
const DefaultPrimaryOutput = "B0"

// Status describes how far evaluation of a datapoint got.
type Status string

const (
	StatusOK            Status = "ok"
	StatusNotConfigured Status = "not_configured"
	StatusInvalidConfig Status = "invalid_config"
	StatusFailed        Status = "failed"
)

// Result is the evaluation bundle of one datapoint.
type Result struct {
	Datapoint         Datapoint         `json:"datapoint"`
	Ratings           Ratings           `json:"ratings"`
	Outputs           Outputs           `json:"outputs"`
	PrimaryScore      float64           `json:"primaryScore"`
	Classification    *Classification   `json:"classification,omitempty"`
	MissingParameters []string          `json:"missingParameters"`
	FormulaErrors     map[string]string `json:"formulaErrors,omitempty"`
	Status            Status            `json:"status"`
	Error             string            `json:"error,omitempty"`
}

// Engine orchestrates rating, output evaluation and classification. An Engine
// holds only configuration and may be shared between goroutines.
type Engine struct {
	classifier *Classifier
	primary    string
	workers    int
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClassifier replaces the default classification table.
func WithClassifier(c *Classifier) Option {
	return func(e *Engine) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithPrimaryOutput sets the output that is classified.
func WithPrimaryOutput(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.primary = name
		}
	}
}

// WithWorkers bounds batch concurrency.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the logger formula failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates a new engine with the DIN 50929-3 classifier.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		classifier: DefaultClassifier(),
		primary:    DefaultPrimaryOutput,
		workers:    runtime.GOMAXPROCS(0),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Classify maps a score with the engine's default table.
func (e *Engine) Classify(score float64) Classification {
	return e.classifier.Classify(score)
}

// Bands returns the engine's default class table.
func (e *Engine) Bands() []ClassBand {
	return e.classifier.Bands()
}

// prepared is the per-norm state shared by every datapoint of a batch.
type prepared struct {
	norm       Norm
	rules      Rules
	outputs    []compiledOutput
	classifier *Classifier
	configErr  error
	status     Status
}

func (e *Engine) prepare(norm Norm) prepared {
	p := prepared{
		norm:       norm,
		rules:      RulesFromNorm(norm),
		outputs:    compileOutputs(norm.OutputConfig),
		classifier: e.classifier,
		status:     StatusOK,
	}
	if err := norm.CheckConfigured(); err != nil {
		p.configErr, p.status = err, StatusNotConfigured
		return p
	}
	if len(norm.Classes) > 0 {
		c, err := NewClassifier(norm.Classes)
		if err != nil {
			p.configErr = &ConfigError{Subject: "norm " + norm.ID, Field: "classes", Err: err}
			p.status = StatusInvalidConfig
			return p
		}
		p.classifier = c
	}
	return p
}

// EvaluateDatapoint runs the pipeline for one datapoint. Ratings and missing
// parameters are always filled in; for a norm that is not configured the
// result carries StatusNotConfigured and the returned error is a ConfigError
// wrapping ErrNormNotConfigured.
func (e *Engine) EvaluateDatapoint(dp Datapoint, norm Norm) (Result, error) {
	p := e.prepare(norm)
	res := e.evaluate(dp, p)
	return res, p.configErr
}

func (e *Engine) evaluate(dp Datapoint, p prepared) Result {
	res := Result{
		Datapoint:         dp.clone(),
		Ratings:           ResolveRatings(dp.Values, p.rules),
		MissingParameters: MissingParameters(p.norm.Expected(), dp.Values),
		Outputs:           Outputs{},
		Status:            p.status,
	}
	res.Datapoint.Ratings = map[string]float64(res.Ratings)
	if p.configErr != nil {
		res.Error = p.configErr.Error()
		return res
	}

	outputs, failures := evaluateCompiled(res.Ratings, p.outputs, e.logger.With("datapoint", dp.ID, "norm", p.norm.ID))
	res.Outputs = outputs
	if len(failures) > 0 {
		res.FormulaErrors = make(map[string]string, len(failures))
		for name, err := range failures {
			res.FormulaErrors[name] = err.Error()
		}
	}

	res.PrimaryScore = outputs[e.primary]
	cls := p.classifier.Classify(res.PrimaryScore)
	res.Classification = &cls
	return res
}

// EvaluateDatapoints evaluates a batch concurrently and returns results in
// input order. A datapoint that fails is reported with StatusFailed and never
// affects its siblings. The error is the norm's configuration error, if any,
// or ctx.Err() when the batch was cancelled.
func (e *Engine) EvaluateDatapoints(ctx context.Context, dps []Datapoint, norm Norm) ([]Result, error) {
	p := e.prepare(norm)
	results, err := e.runBatch(ctx, dps, func(dp Datapoint) Result { return e.evaluate(dp, p) })
	if err != nil {
		return results, err
	}
	return results, p.configErr
}

func (e *Engine) runBatch(ctx context.Context, dps []Datapoint, eval func(Datapoint) Result) ([]Result, error) {
	results := make([]Result, len(dps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range dps {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.safeEvaluate(dps[i], eval)
			return nil
		})
	}
	return results, g.Wait()
}

func (e *Engine) safeEvaluate(dp Datapoint, eval func(Datapoint) Result) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("evaluation panicked: %v", r)
			e.logger.Error("Datapoint evaluation failed", "datapoint", dp.ID, "error", err)
			res = Result{
				Datapoint:         dp.clone(),
				Ratings:           Ratings{},
				Outputs:           Outputs{},
				MissingParameters: []string{},
				Status:            StatusFailed,
				Error:             err.Error(),
			}
		}
	}()
	return eval(dp)
}

// IsNotConfigured reports whether err marks a norm without outputs.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNormNotConfigured)
}
