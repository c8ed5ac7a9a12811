package database

import (
	"context"
	"testing"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/rating"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *AssessmentService {
	t.Helper()
	repo := NewRepository(newTestDB(t))
	seedCatalog(t, repo)
	svc := NewAssessmentService(repo, rating.NewEngine(rating.WithLogger(quietLogger())), quietLogger())
	require.NoError(t, svc.SaveNorm(context.Background(), sampleNorm()))
	return svc
}

func TestAssessmentService_CreateDatapoint(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateDatapoint(ctx, "din", DatapointInput{
		Name:   "Bore 1",
		Values: map[string]string{"Z1": "5", "Z2": "300", "Z3": "permanent"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Datapoint.SequentialID)
	assert.Equal(t, rating.Ratings{"Z1": 4, "Z2": -6, "Z3": -1}, res.Ratings)
	assert.Equal(t, -2.0, res.PrimaryScore)
	assert.Equal(t, "II", res.Classification.Class, "norm classes override the default table")

	stored, err := svc.Repository().GetDatapoint(ctx, res.Datapoint.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Z1": 4, "Z2": -6, "Z3": -1}, stored.Ratings)
}

func TestAssessmentService_RejectsInvalidValues(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateDatapoint(context.Background(), "din", DatapointInput{
		Values: map[string]string{"Z1": "140", "Z3": "sometimes", "Z2": "12"},
	})

	var invalid *InvalidValuesError
	require.ErrorAs(t, err, &invalid)
	assert.Len(t, invalid.Fields, 2)
	assert.Contains(t, invalid.Fields, "Z1")
	assert.Contains(t, invalid.Fields, "Z3")
}

func TestAssessmentService_UpdateDatapoint(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateDatapoint(ctx, "din", DatapointInput{Values: map[string]string{"Z1": "5"}})
	require.NoError(t, err)

	updated, err := svc.UpdateDatapoint(ctx, res.Datapoint.ID, DatapointInput{
		Name:   "renamed",
		Values: map[string]string{"Z1": "impurities", "Z2": "2000"},
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Datapoint.Name)
	assert.Equal(t, rating.Ratings{"Z1": -12, "Z2": 0}, updated.Ratings)
	assert.Equal(t, res.Datapoint.SequentialID, updated.Datapoint.SequentialID)

	_, err = svc.UpdateDatapoint(ctx, "missing", DatapointInput{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssessmentService_SaveNormRecomputesRatings(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateDatapoint(ctx, "din", DatapointInput{Values: map[string]string{"Z1": "5"}})
	require.NoError(t, err)

	norm := sampleNorm()
	norm.Parameters[0].RatingRanges[0].Rating = 1
	require.NoError(t, svc.SaveNorm(ctx, norm))

	stored, err := svc.Repository().GetDatapoint(ctx, res.Datapoint.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Z1": 1}, stored.Ratings)

	changed, err := svc.RecomputeNorm(ctx, "din")
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestAssessmentService_SaveNormRejectsUnknownParameter(t *testing.T) {
	svc := newTestService(t)
	norm := sampleNorm()
	norm.Parameters = append(norm.Parameters, rating.NormParameter{ParameterID: "ghost", Code: "Z9"})

	err := svc.SaveNorm(context.Background(), norm)
	assert.True(t, rating.IsConfigError(err))
}

func TestAssessmentService_SaveParameter(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	err := svc.SaveParameter(ctx, rating.Parameter{ID: "bad", RangeType: rating.RangeTypeSelection})
	assert.True(t, rating.IsConfigError(err))

	res, err := svc.CreateDatapoint(ctx, "din", DatapointInput{Values: map[string]string{"Z3": "permanent"}})
	require.NoError(t, err)
	assert.Equal(t, rating.Ratings{"Z3": -1}, res.Ratings)

	// switching the catalogue type to open removes the rating
	require.NoError(t, svc.SaveParameter(ctx, rating.Parameter{ID: "water", RangeType: rating.RangeTypeOpen}))
	stored, err := svc.Repository().GetDatapoint(ctx, res.Datapoint.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Ratings)
}

func TestAssessmentService_Analyze(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, values := range []map[string]string{
		{"Z1": "5", "Z2": "300"},
		{"Z1": "50", "Z2": "5000"},
		{"Z1": "impurities", "Z2": "300"},
	} {
		_, err := svc.CreateDatapoint(ctx, "din", DatapointInput{Values: values})
		require.NoError(t, err)
	}

	analysis, err := svc.Analyze(ctx, "din")
	require.NoError(t, err)
	assert.Equal(t, rating.StatusOK, analysis.Status)
	require.Len(t, analysis.Results, 3)
	assert.Equal(t, 3, analysis.Summary.Evaluated)
	assert.Equal(t, -18.0, analysis.Summary.MinScore)
	assert.Equal(t, 3, analysis.Summary.Ranking[0].SequentialID)

	norm := sampleNorm()
	norm.OutputConfig = nil
	require.NoError(t, svc.SaveNorm(ctx, norm))

	analysis, err = svc.Analyze(ctx, "din")
	require.NoError(t, err)
	assert.Equal(t, rating.StatusNotConfigured, analysis.Status)
	assert.NotEmpty(t, analysis.Message)
	assert.Zero(t, analysis.Summary.Evaluated)

	_, err = svc.Analyze(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssessmentService_ValidateValue(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.NoError(t, svc.ValidateValue(ctx, "cohesive", "55"))
	assert.NoError(t, svc.ValidateValue(ctx, "cohesive", "impurities"))
	var inputErr *rating.InputError
	assert.ErrorAs(t, svc.ValidateValue(ctx, "cohesive", "-3"), &inputErr)
	assert.ErrorAs(t, svc.ValidateValue(ctx, "resistivity", "impurities"), &inputErr)
	assert.ErrorIs(t, svc.ValidateValue(ctx, "ghost", "1"), ErrNotFound)
}
