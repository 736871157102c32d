package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Sample operations
	SaveSample(ctx context.Context, tenantID string, sample *SampleRecord) error
	GetSample(ctx context.Context, tenantID string, sampleID string) (*SampleRecord, error)
	CountSamplesBySubject(ctx context.Context, tenantID string, subjectID string, since time.Time) (int64, error)

	// Assessment results
	SaveAssessment(ctx context.Context, tenantID string, a *Assessment) error
	GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*Assessment, error)

	// Policy configuration operations
	SavePolicy(ctx context.Context, tenantID string, policy *PolicyConfig) error
	GetPolicy(ctx context.Context, tenantID string, policyID string) (*PolicyConfig, error)
	ListPolicies(ctx context.Context, tenantID string) ([]*PolicyConfig, error)
	DeletePolicy(ctx context.Context, tenantID string, policyID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
