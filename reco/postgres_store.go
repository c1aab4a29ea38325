package reco

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresArtifactStore implements ArtifactStore backed by PostgreSQL.
// ml_models rows are never updated; "latest" is the max-ID row per tenant.
type PostgresArtifactStore struct {
	db *sql.DB
}

// NewPostgresArtifactStore creates a PostgreSQL-backed artifact store.
func NewPostgresArtifactStore(db *sql.DB) *PostgresArtifactStore {
	return &PostgresArtifactStore{db: db}
}

// Put inserts a new artifact row and returns its ID.
func (s *PostgresArtifactStore) Put(ctx context.Context, tenantID string, a *ModelArtifact) (int64, error) {
	classes, err := json.Marshal(a.Classes)
	if err != nil {
		return 0, fmt.Errorf("marshal classes: %w", err)
	}
	cols, err := json.Marshal(a.FeatureCols)
	if err != nil {
		return 0, fmt.Errorf("marshal feature columns: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO ml_models (tenant_id, classes, feature_cols, model_blob, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id
	`, tenantID, classes, cols, a.Blob).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert model artifact: %w", err)
	}
	return id, nil
}

// Latest returns the tenant's newest artifact, or nil when none exists.
func (s *PostgresArtifactStore) Latest(ctx context.Context, tenantID string) (*ModelArtifact, error) {
	var (
		a       ModelArtifact
		classes []byte
		cols    []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, classes, feature_cols, model_blob, created_at, updated_at
		FROM ml_models
		WHERE tenant_id = $1
		ORDER BY id DESC
		LIMIT 1
	`, tenantID).Scan(&a.ID, &a.TenantID, &classes, &cols, &a.Blob, &a.CreatedAt, &a.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest artifact: %w", err)
	}

	if err := json.Unmarshal(classes, &a.Classes); err != nil {
		return nil, fmt.Errorf("decode classes for artifact %d: %w", a.ID, err)
	}
	if err := json.Unmarshal(cols, &a.FeatureCols); err != nil {
		return nil, fmt.Errorf("decode feature columns for artifact %d: %w", a.ID, err)
	}
	return &a, nil
}

// PostgresTenantStore implements TenantStore backed by PostgreSQL.
type PostgresTenantStore struct {
	db *sql.DB
}

// NewPostgresTenantStore creates a PostgreSQL-backed tenant store.
func NewPostgresTenantStore(db *sql.DB) *PostgresTenantStore {
	return &PostgresTenantStore{db: db}
}

// Ensure looks up the tenant by domain and creates it when absent. The
// insert races safely against concurrent Ensure calls for the same domain:
// ON CONFLICT DO NOTHING followed by a re-read keeps the operation
// idempotent.
func (s *PostgresTenantStore) Ensure(ctx context.Context, domain, name string) (*Tenant, bool, error) {
	existing, err := s.ByDomain(ctx, domain)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	var t Tenant
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO tenants (id, domain, name, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (domain) DO NOTHING
		RETURNING id, domain, name, created_at, updated_at
	`, uuid.NewString(), domain, name).Scan(&t.ID, &t.Domain, &t.Name, &t.CreatedAt, &t.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race; another caller created it.
		existing, err = s.ByDomain(ctx, domain)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("tenant %q vanished after conflict", domain)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create tenant: %w", err)
	}
	return &t, true, nil
}

// ByDomain returns the tenant for a domain, or nil when unknown.
func (s *PostgresTenantStore) ByDomain(ctx context.Context, domain string) (*Tenant, error) {
	var t Tenant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, domain, name, created_at, updated_at
		FROM tenants
		WHERE domain = $1
	`, domain).Scan(&t.ID, &t.Domain, &t.Name, &t.CreatedAt, &t.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up tenant: %w", err)
	}
	return &t, nil
}
