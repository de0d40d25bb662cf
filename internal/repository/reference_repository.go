package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/drillops/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

var referenceTables = map[domain.ReferenceCategory]string{
	domain.ReferenceCategoryRig:     "rigs",
	domain.ReferenceCategorySite:    "sites",
	domain.ReferenceCategoryProject: "projects",
}

type referenceRepository struct {
	pool *pgxpool.Pool
}

// NewReferenceRepository reads rigs, sites and projects from Postgres.
func NewReferenceRepository(pool *pgxpool.Pool) ReferenceRepository {
	return &referenceRepository{pool: pool}
}

func (r *referenceRepository) ListReferenceEntities(ctx context.Context, category domain.ReferenceCategory) ([]domain.ReferenceEntity, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("reference repository not initialized")
	}

	table, ok := referenceTables[category]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	// table comes from the fixed map above, never from input.
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT id, name FROM %s ORDER BY name`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	entities := []domain.ReferenceEntity{}
	for rows.Next() {
		var entity domain.ReferenceEntity
		if scanErr := rows.Scan(&entity.ID, &entity.Name); scanErr != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, scanErr)
		}
		entities = append(entities, entity)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", table, rowsErr)
	}

	return entities, nil
}
