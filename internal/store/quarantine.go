package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wonny/gridflow/internal/ingest"
	"github.com/wonny/gridflow/internal/validate"
)

const quarantineDir = "quarantine"

// Quarantine persists a batch that failed the quality gate together with
// its full report, outside the partition namespace. Quarantined data is
// never served by reads; it exists so a human or alerting can inspect what
// was rejected. Returns the quarantine directory.
func (s *Store) Quarantine(ctx context.Context, key Key, batch *ingest.Batch, report *validate.QualityReport) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	compressed, err := encodeChunk(batch)
	if err != nil {
		return "", fmt.Errorf("encode quarantined chunk for %s: %w", key, err)
	}

	dir := filepath.Join(s.root, quarantineDir, key.Path(),
		fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405"), nonce()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create quarantine dir for %s: %w", key, err)
	}

	if err := os.WriteFile(filepath.Join(dir, chunkFile), compressed, 0o644); err != nil {
		return "", fmt.Errorf("write quarantined chunk: %w", err)
	}

	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal quarantine report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, reportFile), reportJSON, 0o644); err != nil {
		return "", fmt.Errorf("write quarantine report: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"partition": key.String(),
		"rows":      batch.Len(),
		"errors":    len(report.Errors),
		"dir":       dir,
	}).Warn("Batch quarantined")

	return dir, nil
}
