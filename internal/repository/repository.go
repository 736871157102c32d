// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/behaviorsec/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveSample stores a behavioral sample with tenant isolation.
func (r *SQLRepository) SaveSample(ctx context.Context, tenantID string, sample *domain.SampleRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO samples (
			id, tenant_id, subject_id, session_id, payload,
			key_event_count, touch_event_count, sensor_sample_count, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		sample.ID, tenantID, sample.SubjectID, sample.SessionID,
		string(sample.Payload),
		sample.KeyEventCount, sample.TouchEventCount, sample.SensorSampleCount,
		sample.ReceivedAt,
	)
	return err
}

// GetSample retrieves a sample by ID with tenant isolation.
func (r *SQLRepository) GetSample(ctx context.Context, tenantID string, sampleID string) (*domain.SampleRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, subject_id, session_id, payload,
			   key_event_count, touch_event_count, sensor_sample_count, received_at
		FROM samples
		WHERE tenant_id = ? AND id = ?
	`

	var rec domain.SampleRecord
	var payload string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, sampleID).Scan(
		&rec.ID, &rec.TenantID, &rec.SubjectID, &rec.SessionID,
		&payload,
		&rec.KeyEventCount, &rec.TouchEventCount, &rec.SensorSampleCount,
		&rec.ReceivedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.Payload = []byte(payload)
	return &rec, nil
}

// CountSamplesBySubject counts samples for a subject since a cutoff with
// tenant isolation.
func (r *SQLRepository) CountSamplesBySubject(ctx context.Context, tenantID string, subjectID string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM samples
		WHERE tenant_id = ? AND subject_id = ? AND received_at >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, subjectID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}

	return count, nil
}

// SaveAssessment stores an assessment result with tenant isolation.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, a *domain.Assessment) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	indicators, _ := json.Marshal(a.Indicators)
	quality, _ := json.Marshal(a.Quality)
	features, _ := json.Marshal(a.Features)
	policyResults, _ := json.Marshal(a.PolicyResults)
	metadata, _ := json.Marshal(a.Metadata)

	var prediction string
	if a.Prediction != nil {
		data, _ := json.Marshal(a.Prediction)
		prediction = string(data)
	}

	modelAvailable := 0
	if a.ModelAvailable {
		modelAvailable = 1
	}

	query := `
		INSERT INTO assessments (
			id, tenant_id, sample_id, subject_id, timestamp,
			indicators, model_available, prediction,
			model_risk_score, model_risk_level,
			quality, features, disposition, policy_results, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.SampleID, a.SubjectID, a.Timestamp,
		string(indicators), modelAvailable, prediction,
		a.ModelRiskScore, a.ModelRiskLevel,
		string(quality), string(features), a.Disposition, string(policyResults), string(metadata),
	)
	return err
}

// GetAssessment retrieves an assessment by ID with tenant isolation.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*domain.Assessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, sample_id, subject_id, timestamp,
			   indicators, model_available, prediction,
			   model_risk_score, model_risk_level,
			   quality, features, disposition, policy_results, metadata
		FROM assessments
		WHERE tenant_id = ? AND id = ?
	`

	var a domain.Assessment
	var indicators, prediction, quality, features, policyResults, metadata string
	var modelAvailable int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, assessmentID).Scan(
		&a.ID, &a.TenantID, &a.SampleID, &a.SubjectID, &a.Timestamp,
		&indicators, &modelAvailable, &prediction,
		&a.ModelRiskScore, &a.ModelRiskLevel,
		&quality, &features, &a.Disposition, &policyResults, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.ModelAvailable = modelAvailable == 1
	json.Unmarshal([]byte(indicators), &a.Indicators)
	json.Unmarshal([]byte(quality), &a.Quality)
	json.Unmarshal([]byte(features), &a.Features)
	json.Unmarshal([]byte(policyResults), &a.PolicyResults)
	json.Unmarshal([]byte(metadata), &a.Metadata)
	if prediction != "" {
		a.Prediction = &domain.Prediction{}
		json.Unmarshal([]byte(prediction), a.Prediction)
	}

	return &a, nil
}

// SavePolicy stores a policy configuration with tenant isolation.
func (r *SQLRepository) SavePolicy(ctx context.Context, tenantID string, policy *domain.PolicyConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	bands, _ := json.Marshal(policy.Bands)

	enabled := 0
	if policy.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO policies (
			id, tenant_id, name, description, version, expression, bands, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		policy.ID, tenantID, policy.Name, policy.Description,
		policy.Version, policy.Expression, string(bands), policy.Weight, enabled,
		now, now,
	)
	return err
}

// GetPolicy retrieves a policy configuration with tenant isolation.
func (r *SQLRepository) GetPolicy(ctx context.Context, tenantID string, policyID string) (*domain.PolicyConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, weight, enabled
		FROM policies
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.PolicyConfig
	var bands string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, policyID).Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
		&cfg.Version, &cfg.Expression, &bands, &cfg.Weight, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	json.Unmarshal([]byte(bands), &cfg.Bands)

	return &cfg, nil
}

// ListPolicies retrieves all active policy configurations for a tenant.
func (r *SQLRepository) ListPolicies(ctx context.Context, tenantID string) ([]*domain.PolicyConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, weight, enabled
		FROM policies
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.PolicyConfig
	for rows.Next() {
		var cfg domain.PolicyConfig
		var bands string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &bands, &cfg.Weight, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		json.Unmarshal([]byte(bands), &cfg.Bands)
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// DeletePolicy soft-deletes a policy by setting enabled = 0.
func (r *SQLRepository) DeletePolicy(ctx context.Context, tenantID string, policyID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE policies
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, policyID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
