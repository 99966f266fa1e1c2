package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/clinchat/backend/pkg/model"
)

// ModelCatalogRepository manages the registered model endpoints
type ModelCatalogRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewModelCatalogRepository creates a new ModelCatalogRepository
func NewModelCatalogRepository(db *pgxpool.Pool, logger *zap.Logger) *ModelCatalogRepository {
	return &ModelCatalogRepository{
		db:     db,
		logger: logger,
	}
}

// CreateEndpoint registers a model endpoint
func (r *ModelCatalogRepository) CreateEndpoint(ctx context.Context, endpoint *model.ModelEndpoint) error {
	query := `
		INSERT INTO model_endpoints (id, name, provider, model_identifier, api_endpoint, config, available, last_availability_check, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`

	_, err := r.db.Exec(ctx, query,
		endpoint.ID,
		endpoint.Name,
		endpoint.Provider,
		endpoint.ModelIdentifier,
		endpoint.APIEndpoint,
		endpoint.Config,
		endpoint.Available,
		endpoint.LastAvailability,
		endpoint.Active,
	)

	if err != nil {
		r.logger.Error("failed to create model endpoint", zap.Error(err), zap.String("endpoint_id", endpoint.ID))
		return fmt.Errorf("failed to create model endpoint: %w", err)
	}

	return nil
}

// GetEndpoint retrieves a model endpoint by ID
func (r *ModelCatalogRepository) GetEndpoint(ctx context.Context, endpointID string) (*model.ModelEndpoint, error) {
	query := `
		SELECT id, name, provider, model_identifier, api_endpoint, config, available, last_availability_check, active, created_at
		FROM model_endpoints
		WHERE id = $1
	`

	var endpoint model.ModelEndpoint
	err := r.db.QueryRow(ctx, query, endpointID).Scan(
		&endpoint.ID,
		&endpoint.Name,
		&endpoint.Provider,
		&endpoint.ModelIdentifier,
		&endpoint.APIEndpoint,
		&endpoint.Config,
		&endpoint.Available,
		&endpoint.LastAvailability,
		&endpoint.Active,
		&endpoint.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("model endpoint %s: %w", endpointID, ErrNotFound)
		}
		r.logger.Error("failed to get model endpoint", zap.Error(err), zap.String("endpoint_id", endpointID))
		return nil, fmt.Errorf("failed to get model endpoint: %w", err)
	}

	return &endpoint, nil
}

// ListActiveEndpoints retrieves every active model endpoint
func (r *ModelCatalogRepository) ListActiveEndpoints(ctx context.Context) ([]model.ModelEndpoint, error) {
	query := `
		SELECT id, name, provider, model_identifier, api_endpoint, config, available, last_availability_check, active, created_at
		FROM model_endpoints
		WHERE active = true
		ORDER BY name ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("failed to list model endpoints", zap.Error(err))
		return nil, fmt.Errorf("failed to list model endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []model.ModelEndpoint
	for rows.Next() {
		var endpoint model.ModelEndpoint
		err := rows.Scan(
			&endpoint.ID,
			&endpoint.Name,
			&endpoint.Provider,
			&endpoint.ModelIdentifier,
			&endpoint.APIEndpoint,
			&endpoint.Config,
			&endpoint.Available,
			&endpoint.LastAvailability,
			&endpoint.Active,
			&endpoint.CreatedAt,
		)
		if err != nil {
			r.logger.Error("failed to scan model endpoint", zap.Error(err))
			continue
		}
		endpoints = append(endpoints, endpoint)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating model endpoints", zap.Error(err))
		return nil, fmt.Errorf("error iterating model endpoints: %w", err)
	}

	return endpoints, nil
}

// UpdateAvailability records the result of an availability probe
func (r *ModelCatalogRepository) UpdateAvailability(ctx context.Context, endpointID string, available bool, checkedAt time.Time) error {
	query := `
		UPDATE model_endpoints
		SET available = $1, last_availability_check = $2
		WHERE id = $3
	`

	result, err := r.db.Exec(ctx, query, available, checkedAt, endpointID)
	if err != nil {
		r.logger.Error("failed to update model availability", zap.Error(err), zap.String("endpoint_id", endpointID))
		return fmt.Errorf("failed to update model availability: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("model endpoint %s: %w", endpointID, ErrNotFound)
	}

	return nil
}
