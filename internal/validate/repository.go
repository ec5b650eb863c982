package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository archives quality reports in PostgreSQL for downstream
// monitoring. Reports are also persisted next to their partition; the
// archive only adds queryability.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a quality report repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save archives one report. Findings (warnings and errors) are stored as
// JSON documents.
func (r *Repository) Save(ctx context.Context, report *QualityReport) error {
	warnings, err := json.Marshal(report.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	errors, err := json.Marshal(report.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	query := `
		INSERT INTO quality.reports (
			source_id, data_type, record_count,
			completeness, validity, consistency, timeliness,
			aggregate_score, threshold, warnings, errors, passed, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.pool.Exec(ctx, query,
		report.SourceID,
		report.DataType,
		report.RecordCount,
		report.Scores[DimCompleteness],
		report.Scores[DimValidity],
		report.Scores[DimConsistency],
		report.Scores[DimTimeliness],
		report.Aggregate,
		report.Threshold,
		warnings,
		errors,
		report.Pass,
		report.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("save quality report: %w", err)
	}

	return nil
}

// Latest retrieves the most recent reports for a dataset, newest first.
func (r *Repository) Latest(ctx context.Context, sourceID, dataType string, limit int) ([]*QualityReport, error) {
	query := `
		SELECT
			source_id, data_type, record_count,
			completeness, validity, consistency, timeliness,
			aggregate_score, threshold, warnings, errors, passed, generated_at
		FROM quality.reports
		WHERE source_id = $1 AND data_type = $2
		ORDER BY generated_at DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, sourceID, dataType, limit)
	if err != nil {
		return nil, fmt.Errorf("query quality reports: %w", err)
	}
	defer rows.Close()

	var reports []*QualityReport
	for rows.Next() {
		report := &QualityReport{Scores: make(map[string]float64)}
		var completeness, validity, consistency, timeliness float64
		var warnings, errs []byte
		var generatedAt time.Time

		if err := rows.Scan(
			&report.SourceID,
			&report.DataType,
			&report.RecordCount,
			&completeness,
			&validity,
			&consistency,
			&timeliness,
			&report.Aggregate,
			&report.Threshold,
			&warnings,
			&errs,
			&report.Pass,
			&generatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan quality report: %w", err)
		}

		report.Scores[DimCompleteness] = completeness
		report.Scores[DimValidity] = validity
		report.Scores[DimConsistency] = consistency
		report.Scores[DimTimeliness] = timeliness
		report.GeneratedAt = generatedAt

		if err := json.Unmarshal(warnings, &report.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings: %w", err)
		}
		if err := json.Unmarshal(errs, &report.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal errors: %w", err)
		}

		reports = append(reports, report)
	}

	return reports, rows.Err()
}
