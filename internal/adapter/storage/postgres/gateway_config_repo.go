package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"paygate/internal/core/domain"
	"paygate/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GatewayConfigRepo implements ports.GatewayConfigRepository. The config
// bundle is stored as jsonb with secret fields already encrypted by the
// service layer.
type GatewayConfigRepo struct {
	pool Pool
}

// NewGatewayConfigRepo creates a new GatewayConfigRepo.
func NewGatewayConfigRepo(pool Pool) *GatewayConfigRepo {
	return &GatewayConfigRepo{pool: pool}
}

const gatewayConfigColumns = `id, type, bank, name, enabled, test_mode, position, config, created_at, updated_at`

// Create inserts a new gateway configuration.
func (r *GatewayConfigRepo) Create(ctx context.Context, cfg *domain.GatewayConfig) error {
	raw, err := json.Marshal(cfg.Config)
	if err != nil {
		return fmt.Errorf("marshal gateway config: %w", err)
	}

	query := `INSERT INTO gateway_configs (id, type, bank, name, enabled, test_mode, position, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.pool.Exec(ctx, query,
		cfg.ID, cfg.Type, cfg.Bank, cfg.Name,
		cfg.Enabled, cfg.TestMode, cfg.Position, raw,
		cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert gateway config: %w", err)
	}
	return nil
}

// GetByID fetches a configuration by its UUID.
func (r *GatewayConfigRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.GatewayConfig, error) {
	query := `SELECT ` + gatewayConfigColumns + ` FROM gateway_configs WHERE id = $1`
	cfg, err := r.scanOne(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get gateway config by id: %w", err)
	}
	return cfg, nil
}

// GetByTypeAndBank fetches the configuration for a provider/bank pair.
// At most one row exists per pair.
func (r *GatewayConfigRepo) GetByTypeAndBank(ctx context.Context, t domain.ProviderType, bank domain.BankCode) (*domain.GatewayConfig, error) {
	query := `SELECT ` + gatewayConfigColumns + ` FROM gateway_configs WHERE type = $1 AND bank = $2`
	cfg, err := r.scanOne(r.pool.QueryRow(ctx, query, t, bank))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get gateway config by type and bank: %w", err)
	}
	return cfg, nil
}

// List returns configurations matching the filter ordered by display position.
func (r *GatewayConfigRepo) List(ctx context.Context, filter ports.GatewayConfigFilter) ([]domain.GatewayConfig, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Type != nil {
		args = append(args, *filter.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Enabled != nil {
		args = append(args, *filter.Enabled)
		conds = append(conds, fmt.Sprintf("enabled = $%d", len(args)))
	}
	if filter.TestMode != nil {
		args = append(args, *filter.TestMode)
		conds = append(conds, fmt.Sprintf("test_mode = $%d", len(args)))
	}

	query := `SELECT ` + gatewayConfigColumns + ` FROM gateway_configs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY position, created_at"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list gateway configs: %w", err)
	}
	defer rows.Close()

	var configs []domain.GatewayConfig
	for rows.Next() {
		cfg, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gateway config: %w", err)
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

// Update replaces a configuration row.
func (r *GatewayConfigRepo) Update(ctx context.Context, cfg *domain.GatewayConfig) error {
	raw, err := json.Marshal(cfg.Config)
	if err != nil {
		return fmt.Errorf("marshal gateway config: %w", err)
	}

	query := `UPDATE gateway_configs
		SET name=$1, enabled=$2, test_mode=$3, position=$4, config=$5, updated_at=$6
		WHERE id=$7`
	_, err = r.pool.Exec(ctx, query,
		cfg.Name, cfg.Enabled, cfg.TestMode, cfg.Position, raw, cfg.UpdatedAt, cfg.ID,
	)
	if err != nil {
		return fmt.Errorf("update gateway config: %w", err)
	}
	return nil
}

// Delete removes a configuration row.
func (r *GatewayConfigRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM gateway_configs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete gateway config: %w", err)
	}
	return nil
}

func (r *GatewayConfigRepo) scanOne(row pgx.Row) (*domain.GatewayConfig, error) {
	cfg := &domain.GatewayConfig{}
	var raw []byte
	err := row.Scan(
		&cfg.ID, &cfg.Type, &cfg.Bank, &cfg.Name,
		&cfg.Enabled, &cfg.TestMode, &cfg.Position, &raw,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg.Config); err != nil {
			return nil, fmt.Errorf("unmarshal gateway config: %w", err)
		}
	}
	return cfg, nil
}
