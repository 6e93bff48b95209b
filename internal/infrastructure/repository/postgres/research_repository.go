package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
)

type ResearchRepository struct {
	db *sql.DB
}

func NewResearchRepository(db *sql.DB) *ResearchRepository {
	return &ResearchRepository{db: db}
}

func (r *ResearchRepository) Create(ctx context.Context, record *domain.ResearchRecord) error {
	keywordsJSON, err := json.Marshal(record.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO research_records (
	id, query, region, language, keywords, clustering_status, clustering_error, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		record.ID, record.Query, record.Region, record.Language, keywordsJSON,
		string(record.ClusteringStatus), record.ClusteringError, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return wrapStoreError("insert research record", err)
	}
	return nil
}

func (r *ResearchRepository) GetByID(ctx context.Context, id string) (*domain.ResearchRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, query, region, language, keywords, clusters, personas, clustering_status, clustering_error, created_at, updated_at
FROM research_records
WHERE id = $1
`, id)

	var record domain.ResearchRecord
	var keywordsRaw, clustersRaw, personasRaw []byte
	var status string

	err := row.Scan(
		&record.ID, &record.Query, &record.Region, &record.Language,
		&keywordsRaw, &clustersRaw, &personasRaw, &status, &record.ClusteringError,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get research record", fmt.Errorf("id=%s", id))
		}
		return nil, wrapStoreError("scan research record", err)
	}

	if err := json.Unmarshal(keywordsRaw, &record.Keywords); err != nil {
		return nil, fmt.Errorf("unmarshal keywords: %w", err)
	}
	if len(clustersRaw) > 0 {
		if err := json.Unmarshal(clustersRaw, &record.Clusters); err != nil {
			return nil, fmt.Errorf("unmarshal clusters: %w", err)
		}
	}
	if len(personasRaw) > 0 {
		if err := json.Unmarshal(personasRaw, &record.Personas); err != nil {
			return nil, fmt.Errorf("unmarshal personas: %w", err)
		}
	}
	record.ClusteringStatus = domain.ClusteringStatus(status)
	return &record, nil
}

func (r *ResearchRepository) TransitionClusteringStatus(ctx context.Context, id string, to, unless domain.ClusteringStatus) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE research_records
SET clustering_status = $2, clustering_error = '', updated_at = now()
WHERE id = $1 AND clustering_status <> $3
`, id, string(to), string(unless))
	if err != nil {
		return wrapStoreError("transition clustering status", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition clustering status rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT clustering_status FROM research_records WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrNotFound, "transition clustering status", fmt.Errorf("id=%s", id))
	}
	if err != nil {
		return wrapStoreError("read clustering status", err)
	}
	return domain.WrapError(domain.ErrConflict, "transition clustering status", fmt.Errorf("id=%s status=%s", id, current))
}

func (r *ResearchRepository) UpdateClusteringStatus(ctx context.Context, id string, status domain.ClusteringStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE research_records
SET clustering_status = $2, clustering_error = $3, updated_at = now()
WHERE id = $1
`, id, string(status), errMessage)
	if err != nil {
		return wrapStoreError("update clustering status", err)
	}
	return requireRow(result, "update clustering status", id)
}

func (r *ResearchRepository) SaveClusters(ctx context.Context, id string, clustering domain.Clustering) error {
	clustersJSON, err := json.Marshal(clustering.Clusters)
	if err != nil {
		return fmt.Errorf("marshal clusters: %w", err)
	}
	var personasJSON []byte
	if len(clustering.Personas) > 0 {
		if personasJSON, err = json.Marshal(clustering.Personas); err != nil {
			return fmt.Errorf("marshal personas: %w", err)
		}
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE research_records
SET clusters = $2, personas = COALESCE($3, personas), clustering_status = $4, clustering_error = '', updated_at = now()
WHERE id = $1
`, id, clustersJSON, personasJSON, string(domain.ClusteringCompleted))
	if err != nil {
		return wrapStoreError("save clusters", err)
	}
	return requireRow(result, "save clusters", id)
}

func requireRow(result sql.Result, operation, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}
