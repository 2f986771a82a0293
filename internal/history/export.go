package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SetExportStatus records whether the video stored as filename has been
// exported since it was last rendered.
func (s *Store) SetExportStatus(ctx context.Context, filename string, exported bool) error {
	_, err := s.exec(ctx, `INSERT INTO export_status (filename, exported, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET exported = excluded.exported, updated_at = excluded.updated_at`,
		filename, boolToInt(exported), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("set export status: %w", err)
	}
	return nil
}

// ExportStatus reports the export flag for filename. Unknown files are
// reported as not exported.
func (s *Store) ExportStatus(ctx context.Context, filename string) (bool, error) {
	var exported int
	err := s.db.QueryRowContext(ensureContext(ctx), "SELECT exported FROM export_status WHERE filename = ?", filename).Scan(&exported)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load export status: %w", err)
	}
	return exported != 0, nil
}
