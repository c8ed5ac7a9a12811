package database

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/rating"
)

// AssessmentService ties stored reference data and datapoints to the rating
// engine. Ratings are recomputed whenever values or the rules behind them
// change.
type AssessmentService struct {
	repo   *Repository
	engine *rating.Engine
	logger *slog.Logger
}

// NewAssessmentService creates a new assessment service
func NewAssessmentService(repo *Repository, engine *rating.Engine, logger *slog.Logger) *AssessmentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssessmentService{repo: repo, engine: engine, logger: logger}
}

// Repository exposes the underlying repository for read-only handlers.
func (s *AssessmentService) Repository() *Repository { return s.repo }

// Engine returns the rating engine.
func (s *AssessmentService) Engine() *rating.Engine { return s.engine }

// SaveParameter validates and stores a parameter, then re-rates every norm
// associating it.
func (s *AssessmentService) SaveParameter(ctx context.Context, p rating.Parameter) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpsertParameter(ctx, p); err != nil {
		return err
	}
	normIDs, err := s.repo.NormsUsingParameter(ctx, p.ID)
	if err != nil {
		return err
	}
	for _, id := range normIDs {
		if _, err := s.RecomputeNorm(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// SaveNorm validates and stores a norm, then re-rates its datapoints. Every
// association must reference a catalogue parameter.
func (s *AssessmentService) SaveNorm(ctx context.Context, n rating.Norm) error {
	if err := n.Validate(); err != nil {
		return err
	}
	catalog, err := s.repo.Catalog(ctx)
	if err != nil {
		return err
	}
	for i, np := range n.Parameters {
		if _, ok := catalog[np.ParameterID]; !ok {
			return &rating.ConfigError{
				Subject: "norm " + n.ID,
				Field:   fmt.Sprintf("parameters[%d].parameterId", i),
				Reason:  fmt.Sprintf("unknown parameter %q", np.ParameterID),
			}
		}
	}
	for output, refs := range n.UnknownReferences() {
		s.logger.Warn("Output formula references codes the norm does not rate",
			"norm", n.ID, "output", output, "codes", refs)
	}
	if err := s.repo.UpsertNorm(ctx, n); err != nil {
		return err
	}
	_, err = s.RecomputeNorm(ctx, n.ID)
	return err
}

// CreateDatapoint validates input against the catalogue, rates it under the
// norm and stores it.
func (s *AssessmentService) CreateDatapoint(ctx context.Context, normID string, in DatapointInput) (*rating.Result, error) {
	norm, err := s.repo.GetNorm(ctx, normID)
	if err != nil {
		return nil, err
	}
	if err := s.validateValues(ctx, *norm, in.Values); err != nil {
		return nil, err
	}

	dp := rating.Datapoint{NormID: normID, Name: in.Name, Timestamp: in.Timestamp, Values: maps.Clone(in.Values)}
	dp.Ratings = rating.ResolveRatings(dp.Values, rating.RulesFromNorm(*norm))
	if err := s.repo.CreateDatapoint(ctx, &dp); err != nil {
		return nil, err
	}
	return s.evaluate(dp, *norm), nil
}

// UpdateDatapoint replaces the values of a datapoint and recomputes its ratings.
func (s *AssessmentService) UpdateDatapoint(ctx context.Context, id string, in DatapointInput) (*rating.Result, error) {
	dp, err := s.repo.GetDatapoint(ctx, id)
	if err != nil {
		return nil, err
	}
	norm, err := s.repo.GetNorm(ctx, dp.NormID)
	if err != nil {
		return nil, err
	}
	if err := s.validateValues(ctx, *norm, in.Values); err != nil {
		return nil, err
	}

	dp.Name = in.Name
	if !in.Timestamp.IsZero() {
		dp.Timestamp = in.Timestamp
	}
	dp.Values = maps.Clone(in.Values)
	dp.Ratings = rating.ResolveRatings(dp.Values, rating.RulesFromNorm(*norm))
	if err := s.repo.UpdateDatapoint(ctx, *dp); err != nil {
		return nil, err
	}
	return s.evaluate(*dp, *norm), nil
}

// DeleteDatapoint removes a datapoint.
func (s *AssessmentService) DeleteDatapoint(ctx context.Context, id string) error {
	return s.repo.DeleteDatapoint(ctx, id)
}

// DeleteNorm removes a norm and everything recorded under it.
func (s *AssessmentService) DeleteNorm(ctx context.Context, id string) error {
	return s.repo.DeleteNorm(ctx, id)
}

// RecomputeNorm refreshes the cached ratings of every datapoint of a norm and
// returns how many changed.
func (s *AssessmentService) RecomputeNorm(ctx context.Context, normID string) (int, error) {
	norm, err := s.repo.GetNorm(ctx, normID)
	if err != nil {
		return 0, err
	}
	dps, err := s.repo.ListDatapoints(ctx, normID)
	if err != nil {
		return 0, err
	}

	rules := rating.RulesFromNorm(*norm)
	changed := 0
	for _, dp := range dps {
		ratings := rating.ResolveRatings(dp.Values, rules)
		if maps.Equal(map[string]float64(ratings), dp.Ratings) {
			continue
		}
		if err := s.repo.UpdateRatings(ctx, dp.ID, ratings); err != nil {
			return changed, err
		}
		changed++
	}
	if changed > 0 {
		s.logger.Info("Recomputed datapoint ratings", "norm", normID, "changed", changed, "total", len(dps))
	}
	return changed, nil
}

// Analyze evaluates every datapoint of a norm. A norm without outputs yields
// an analysis with StatusNotConfigured rather than an error, so callers can
// show a configuration notice instead of zero scores.
func (s *AssessmentService) Analyze(ctx context.Context, normID string) (*Analysis, error) {
	norm, err := s.repo.GetNorm(ctx, normID)
	if err != nil {
		return nil, err
	}
	dps, err := s.repo.ListDatapoints(ctx, normID)
	if err != nil {
		return nil, err
	}

	results, err := s.engine.EvaluateDatapoints(ctx, dps, *norm)
	analysis := &Analysis{
		NormID:   norm.ID,
		NormName: norm.Name,
		Status:   rating.StatusOK,
		Results:  results,
		Summary:  rating.Summarize(results),
	}
	switch {
	case err == nil:
	case rating.IsConfigError(err):
		analysis.Status = rating.StatusInvalidConfig
		if rating.IsNotConfigured(err) {
			analysis.Status = rating.StatusNotConfigured
		}
		analysis.Message = err.Error()
	default:
		return nil, err
	}
	return analysis, nil
}

// ValidateValue checks one raw value against a catalogue parameter.
func (s *AssessmentService) ValidateValue(ctx context.Context, parameterID, raw string) error {
	p, err := s.repo.GetParameter(ctx, parameterID)
	if err != nil {
		return err
	}
	return rating.ValidateInput(*p, raw)
}

func (s *AssessmentService) validateValues(ctx context.Context, norm rating.Norm, values map[string]string) error {
	catalog, err := s.repo.Catalog(ctx)
	if err != nil {
		return err
	}
	byCode := make(map[string]rating.Parameter, len(norm.Parameters))
	for _, np := range norm.Parameters {
		if p, ok := catalog[np.ParameterID]; ok {
			byCode[np.Key()] = p
		}
	}

	invalid := map[string]string{}
	for code, raw := range values {
		p, ok := byCode[code]
		if !ok {
			continue
		}
		if err := rating.ValidateInput(p, raw); err != nil {
			invalid[code] = err.Error()
		}
	}
	if len(invalid) > 0 {
		return &InvalidValuesError{Fields: invalid}
	}
	return nil
}

func (s *AssessmentService) evaluate(dp rating.Datapoint, norm rating.Norm) *rating.Result {
	res, err := s.engine.EvaluateDatapoint(dp, norm)
	if err != nil {
		s.logger.Debug("Datapoint stored under a norm that cannot be evaluated", "norm", norm.ID, "error", err)
	}
	return &res
}
