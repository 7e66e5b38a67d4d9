// Package bigquery stores extraction run and spreadsheet upload audit records.
// Only metadata is written; extracted transactions are never persisted.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
	"github.com/dvloznov/moneychat-nlp/internal/logger"
)

const (
	extractionRunsTable     = "extraction_runs"
	spreadsheetUploadsTable = "spreadsheet_uploads"
)

// Repository writes audit rows through a shared BigQuery client.
type Repository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewRepository creates a Repository for projectID.datasetID.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// RecordRun inserts one row into extraction_runs.
func (r *Repository) RecordRun(ctx context.Context, run *domain.ExtractionRun) error {
	inserter := r.client.Dataset(r.datasetID).Table(extractionRunsTable).Inserter()
	if err := inserter.Put(ctx, newRunRow(run)); err != nil {
		return fmt.Errorf("RecordRun: inserting row: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("run_id", run.RunID).
		Str("status", run.Status).
		Msg("Recorded extraction run")
	return nil
}

// RecordUpload inserts one row into spreadsheet_uploads.
func (r *Repository) RecordUpload(ctx context.Context, upload *domain.SpreadsheetUpload) error {
	inserter := r.client.Dataset(r.datasetID).Table(spreadsheetUploadsTable).Inserter()
	if err := inserter.Put(ctx, newUploadRow(upload)); err != nil {
		return fmt.Errorf("RecordUpload: inserting row: %w", err)
	}
	return nil
}

// FindUploadByChecksum returns the newest upload with the given SHA-256
// checksum, or nil if there is none.
func (r *Repository) FindUploadByChecksum(ctx context.Context, checksum string) (*domain.SpreadsheetUpload, error) {
	query := fmt.Sprintf(`
		SELECT
			upload_id,
			user_id,
			filename,
			checksum_sha256,
			size_bytes,
			total_rows,
			archive_uri,
			status,
			mapping_confidence,
			created_ts
		FROM `+"`%s.%s.%s`"+`
		WHERE checksum_sha256 = @checksum
		ORDER BY created_ts DESC
		LIMIT 1
	`, r.projectID, r.datasetID, spreadsheetUploadsTable)

	q := r.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "checksum", Value: checksum},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindUploadByChecksum: reading query: %w", err)
	}

	var row SpreadsheetUploadRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindUploadByChecksum: reading row: %w", err)
	}

	return row.toDomain(), nil
}
