package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/rating"
	"github.com/google/uuid"
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) q(query string) string { return r.db.Rebind(query) }

// UpsertParameter inserts or replaces a catalogue parameter.
func (r *Repository) UpsertParameter(ctx context.Context, p rating.Parameter) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO parameters (id, short_name, name, unit, range_type, range_value, accepts_impurities, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			short_name = excluded.short_name,
			name = excluded.name,
			unit = excluded.unit,
			range_type = excluded.range_type,
			range_value = excluded.range_value,
			accepts_impurities = excluded.accepts_impurities,
			updated_at = excluded.updated_at
	`), p.ID, p.ShortName, p.Name, string(p.Unit), string(p.RangeType), p.RangeValue, p.AcceptsImpurities, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert parameter %s: %w", p.ID, err)
	}
	return nil
}

// GetParameter returns one catalogue parameter.
func (r *Repository) GetParameter(ctx context.Context, id string) (*rating.Parameter, error) {
	var p rating.Parameter
	var unit, rangeType string
	err := r.db.QueryRowContext(ctx, r.q(`
		SELECT id, short_name, name, unit, range_type, range_value, accepts_impurities
		FROM parameters WHERE id = ?
	`), id).Scan(&p.ID, &p.ShortName, &p.Name, &unit, &rangeType, &p.RangeValue, &p.AcceptsImpurities)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("parameter %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get parameter %s: %w", id, err)
	}
	p.Unit, p.RangeType = rating.Unit(unit), rating.RangeType(rangeType)
	return &p, nil
}

// ListParameters returns the catalogue ordered by id.
func (r *Repository) ListParameters(ctx context.Context) ([]rating.Parameter, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, short_name, name, unit, range_type, range_value, accepts_impurities
		FROM parameters ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list parameters: %w", err)
	}
	defer rows.Close()

	params := []rating.Parameter{}
	for rows.Next() {
		var p rating.Parameter
		var unit, rangeType string
		if err := rows.Scan(&p.ID, &p.ShortName, &p.Name, &unit, &rangeType, &p.RangeValue, &p.AcceptsImpurities); err != nil {
			return nil, fmt.Errorf("failed to scan parameter: %w", err)
		}
		p.Unit, p.RangeType = rating.Unit(unit), rating.RangeType(rangeType)
		params = append(params, p)
	}
	return params, rows.Err()
}

// Catalog returns the parameter catalogue keyed by id.
func (r *Repository) Catalog(ctx context.Context) (map[string]rating.Parameter, error) {
	params, err := r.ListParameters(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]rating.Parameter, len(params))
	for _, p := range params {
		out[p.ID] = p
	}
	return out, nil
}

// UpsertNorm stores a norm and replaces its parameter associations.
func (r *Repository) UpsertNorm(ctx context.Context, n rating.Norm) error {
	outputs, err := encodeDocument(nonNil(n.OutputConfig))
	if err != nil {
		return fmt.Errorf("failed to encode output config: %w", err)
	}
	classes, err := encodeDocument(nonNil(n.Classes))
	if err != nil {
		return fmt.Errorf("failed to encode classes: %w", err)
	}
	expected, err := json.Marshal(nonNil(n.ExpectedParameters))
	if err != nil {
		return fmt.Errorf("failed to encode expected parameters: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, r.q(`
		INSERT INTO norms (id, name, description, version, output_config, classes, expected_parameters, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			output_config = excluded.output_config,
			classes = excluded.classes,
			expected_parameters = excluded.expected_parameters,
			updated_at = excluded.updated_at
	`), n.ID, n.Name, n.Description, n.Version, outputs, classes, string(expected), now, now); err != nil {
		return fmt.Errorf("failed to upsert norm %s: %w", n.ID, err)
	}

	if _, err := tx.ExecContext(ctx, r.q(`DELETE FROM norm_parameters WHERE norm_id = ?`), n.ID); err != nil {
		return fmt.Errorf("failed to clear norm parameters: %w", err)
	}
	for i, np := range n.Parameters {
		ranges, err := encodeDocument(nonNil(np.RatingRanges))
		if err != nil {
			return fmt.Errorf("failed to encode rating ranges for %s: %w", np.Key(), err)
		}
		if _, err := tx.ExecContext(ctx, r.q(`
			INSERT INTO norm_parameters (norm_id, position, parameter_id, code, rating_ranges)
			VALUES (?, ?, ?, ?, ?)
		`), n.ID, i, np.ParameterID, np.Code, ranges); err != nil {
			return fmt.Errorf("failed to insert norm parameter %s: %w", np.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit norm %s: %w", n.ID, err)
	}
	return nil
}

// GetNorm loads a norm with its associations. Each association carries the
// range type of its catalogue parameter.
func (r *Repository) GetNorm(ctx context.Context, id string) (*rating.Norm, error) {
	var n rating.Norm
	var outputs, classes, expected string
	err := r.db.QueryRowContext(ctx, r.q(`
		SELECT id, name, description, version, output_config, classes, expected_parameters
		FROM norms WHERE id = ?
	`), id).Scan(&n.ID, &n.Name, &n.Description, &n.Version, &outputs, &classes, &expected)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("norm %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get norm %s: %w", id, err)
	}

	if err := decodeDocument(outputs, &n.OutputConfig); err != nil {
		return nil, fmt.Errorf("failed to decode output config of %s: %w", id, err)
	}
	if err := decodeDocument(classes, &n.Classes); err != nil {
		return nil, fmt.Errorf("failed to decode classes of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(expected), &n.ExpectedParameters); err != nil {
		return nil, fmt.Errorf("failed to decode expected parameters of %s: %w", id, err)
	}
	if len(n.Classes) == 0 {
		n.Classes = nil
	}
	if len(n.ExpectedParameters) == 0 {
		n.ExpectedParameters = nil
	}

	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT np.parameter_id, np.code, np.rating_ranges, p.range_type, p.accepts_impurities
		FROM norm_parameters np
		LEFT JOIN parameters p ON p.id = np.parameter_id
		WHERE np.norm_id = ?
		ORDER BY np.position
	`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to load parameters of norm %s: %w", id, err)
	}
	defer rows.Close()

	n.Parameters = []rating.NormParameter{}
	for rows.Next() {
		var np rating.NormParameter
		var ranges string
		var rangeType sql.NullString
		var impurities sql.NullBool
		if err := rows.Scan(&np.ParameterID, &np.Code, &ranges, &rangeType, &impurities); err != nil {
			return nil, fmt.Errorf("failed to scan norm parameter: %w", err)
		}
		if err := decodeDocument(ranges, &np.RatingRanges); err != nil {
			return nil, fmt.Errorf("failed to decode rating ranges of %s: %w", np.Key(), err)
		}
		np.RangeType = rating.RangeType(rangeType.String)
		np.AcceptsImpurities = impurities.Bool
		n.Parameters = append(n.Parameters, np)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListNorms returns every norm ordered by id.
func (r *Repository) ListNorms(ctx context.Context) ([]rating.Norm, error) {
	ids, err := r.queryIDs(ctx, `SELECT id FROM norms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list norms: %w", err)
	}
	norms := make([]rating.Norm, 0, len(ids))
	for _, id := range ids {
		n, err := r.GetNorm(ctx, id)
		if err != nil {
			return nil, err
		}
		norms = append(norms, *n)
	}
	return norms, nil
}

// NormsUsingParameter returns the ids of norms associating parameterID.
func (r *Repository) NormsUsingParameter(ctx context.Context, parameterID string) ([]string, error) {
	ids, err := r.queryIDs(ctx, `SELECT DISTINCT norm_id FROM norm_parameters WHERE parameter_id = ? ORDER BY norm_id`, parameterID)
	if err != nil {
		return nil, fmt.Errorf("failed to find norms using %s: %w", parameterID, err)
	}
	return ids, nil
}

// DeleteNorm removes a norm with its associations and datapoints.
func (r *Repository) DeleteNorm(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, query := range []string{
		`DELETE FROM datapoints WHERE norm_id = ?`,
		`DELETE FROM norm_parameters WHERE norm_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, r.q(query), id); err != nil {
			return fmt.Errorf("failed to delete norm %s: %w", id, err)
		}
	}
	res, err := tx.ExecContext(ctx, r.q(`DELETE FROM norms WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete norm %s: %w", id, err)
	}
	if err := expectOne(res, "norm "+id); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateDatapoint stores dp under the next free sequential id of its norm.
// The generated ID and SequentialID are written back into dp.
func (r *Repository) CreateDatapoint(ctx context.Context, dp *rating.Datapoint) error {
	values, ratings, err := encodeMaps(dp.Values, dp.Ratings)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.QueryRowContext(ctx, r.q(`
		SELECT COALESCE(MAX(sequential_id), 0) + 1 FROM datapoints WHERE norm_id = ?
	`), dp.NormID).Scan(&next); err != nil {
		return fmt.Errorf("failed to allocate sequential id: %w", err)
	}

	now := time.Now().UTC()
	if dp.Timestamp.IsZero() {
		dp.Timestamp = now
	}
	id := uuid.New().String()
	if _, err := tx.ExecContext(ctx, r.q(`
		INSERT INTO datapoints (id, norm_id, sequential_id, name, measured_at, raw_values, ratings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), id, dp.NormID, next, dp.Name, dp.Timestamp.UTC(), values, ratings, now, now); err != nil {
		return fmt.Errorf("failed to create datapoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit datapoint: %w", err)
	}

	dp.ID, dp.SequentialID = id, next
	return nil
}

const datapointColumns = `id, norm_id, sequential_id, name, measured_at, raw_values, ratings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDatapoint(row rowScanner) (rating.Datapoint, error) {
	var dp rating.Datapoint
	var values, ratings string
	if err := row.Scan(&dp.ID, &dp.NormID, &dp.SequentialID, &dp.Name, &dp.Timestamp, &values, &ratings); err != nil {
		return dp, err
	}
	if err := json.Unmarshal([]byte(values), &dp.Values); err != nil {
		return dp, fmt.Errorf("failed to decode values of %s: %w", dp.ID, err)
	}
	if err := json.Unmarshal([]byte(ratings), &dp.Ratings); err != nil {
		return dp, fmt.Errorf("failed to decode ratings of %s: %w", dp.ID, err)
	}
	dp.Timestamp = dp.Timestamp.UTC()
	return dp, nil
}

// GetDatapoint returns one datapoint.
func (r *Repository) GetDatapoint(ctx context.Context, id string) (*rating.Datapoint, error) {
	dp, err := scanDatapoint(r.db.QueryRowContext(ctx, r.q(`SELECT `+datapointColumns+` FROM datapoints WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("datapoint %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get datapoint %s: %w", id, err)
	}
	return &dp, nil
}

// ListDatapoints returns the datapoints of a norm ordered by sequential id.
func (r *Repository) ListDatapoints(ctx context.Context, normID string) ([]rating.Datapoint, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT `+datapointColumns+` FROM datapoints WHERE norm_id = ? ORDER BY sequential_id
	`), normID)
	if err != nil {
		return nil, fmt.Errorf("failed to list datapoints: %w", err)
	}
	defer rows.Close()

	dps := []rating.Datapoint{}
	for rows.Next() {
		dp, err := scanDatapoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan datapoint: %w", err)
		}
		dps = append(dps, dp)
	}
	return dps, rows.Err()
}

// UpdateDatapoint replaces the editable fields and ratings of a datapoint.
func (r *Repository) UpdateDatapoint(ctx context.Context, dp rating.Datapoint) error {
	values, ratings, err := encodeMaps(dp.Values, dp.Ratings)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE datapoints SET name = ?, measured_at = ?, raw_values = ?, ratings = ?, updated_at = ?
		WHERE id = ?
	`), dp.Name, dp.Timestamp.UTC(), values, ratings, time.Now().UTC(), dp.ID)
	if err != nil {
		return fmt.Errorf("failed to update datapoint %s: %w", dp.ID, err)
	}
	return expectOne(res, "datapoint "+dp.ID)
}

// UpdateRatings replaces only the cached ratings of a datapoint.
func (r *Repository) UpdateRatings(ctx context.Context, id string, ratings map[string]float64) error {
	data, err := json.Marshal(nonNilMap(ratings))
	if err != nil {
		return fmt.Errorf("failed to encode ratings: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.q(`UPDATE datapoints SET ratings = ?, updated_at = ? WHERE id = ?`),
		string(data), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update ratings of %s: %w", id, err)
	}
	return expectOne(res, "datapoint "+id)
}

// DeleteDatapoint removes one datapoint.
func (r *Repository) DeleteDatapoint(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM datapoints WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete datapoint %s: %w", id, err)
	}
	return expectOne(res, "datapoint "+id)
}

func (r *Repository) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func expectOne(res sql.Result, subject string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", subject, ErrNotFound)
	}
	return nil
}

func encodeMaps(values map[string]string, ratings map[string]float64) (string, string, error) {
	if values == nil {
		values = map[string]string{}
	}
	v, err := json.Marshal(values)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode values: %w", err)
	}
	rt, err := json.Marshal(nonNilMap(ratings))
	if err != nil {
		return "", "", fmt.Errorf("failed to encode ratings: %w", err)
	}
	return string(v), string(rt), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNilMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}
