package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"psorcast/internal/services"
	"psorcast/internal/study"
)

const itemColumns = "id, task_identifier, report_identifier, date, image_name, coverage, joint_count, selected_zone, rotations_json"

func scanItem(scanner interface{ Scan(dest ...any) error }) (study.HistoryItem, error) {
	var (
		id           int64
		task         string
		report       sql.NullString
		dateRaw      string
		imageName    sql.NullString
		coverage     sql.NullFloat64
		jointCount   sql.NullInt64
		selectedZone sql.NullString
		rotations    sql.NullString
	)
	if err := scanner.Scan(&id, &task, &report, &dateRaw, &imageName, &coverage, &jointCount, &selectedZone, &rotations); err != nil {
		return study.HistoryItem{}, err
	}
	item := study.HistoryItem{
		ID:               id,
		TaskIdentifier:   study.ActivityID(task),
		ReportIdentifier: report.String,
		ImageName:        imageName.String,
		SelectedZone:     selectedZone.String,
	}
	if date, err := parseTimeString(dateRaw); err == nil {
		item.Date = date
	}
	if coverage.Valid {
		v := coverage.Float64
		item.Coverage = &v
	}
	if jointCount.Valid {
		v := int(jointCount.Int64)
		item.JointCount = &v
	}
	if rotations.Valid && rotations.String != "" {
		var r study.JarRotations
		if err := json.Unmarshal([]byte(rotations.String), &r); err != nil {
			return study.HistoryItem{}, fmt.Errorf("decode rotations for item %d: %w", id, err)
		}
		item.Rotations = &r
	}
	return item, nil
}

// AddHistoryItem validates and stores item, returning it with its ID set.
func (s *Store) AddHistoryItem(ctx context.Context, item study.HistoryItem) (study.HistoryItem, error) {
	if err := study.ValidateStruct(item); err != nil {
		return study.HistoryItem{}, err
	}
	var rotations any
	if item.Rotations != nil {
		payload, err := json.Marshal(item.Rotations)
		if err != nil {
			return study.HistoryItem{}, fmt.Errorf("encode rotations: %w", err)
		}
		rotations = string(payload)
	}
	var coverage, jointCount any
	if item.Coverage != nil {
		coverage = *item.Coverage
	}
	if item.JointCount != nil {
		jointCount = *item.JointCount
	}

	res, err := s.exec(ctx,
		"INSERT INTO history_items (task_identifier, report_identifier, date, image_name, coverage, joint_count, selected_zone, rotations_json) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		string(item.TaskIdentifier),
		nullableString(item.ReportIdentifier),
		formatTime(item.Date),
		nullableString(item.ImageName),
		coverage,
		jointCount,
		nullableString(item.SelectedZone),
		rotations,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return study.HistoryItem{}, services.Wrap(services.ErrValidation, "history", "add item",
				fmt.Sprintf("image %q already recorded", item.ImageName), err)
		}
		return study.HistoryItem{}, fmt.Errorf("insert history item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return study.HistoryItem{}, fmt.Errorf("history item id: %w", err)
	}
	item.ID = id
	return item, nil
}

// ItemFilter narrows HistoryItems. Zero values leave a field unconstrained.
type ItemFilter struct {
	Task  study.ActivityID
	Start time.Time
	End   time.Time
}

// HistoryItems returns matching items ordered by date, oldest first.
func (s *Store) HistoryItems(ctx context.Context, filter ItemFilter) ([]study.HistoryItem, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Task != "" {
		clauses = append(clauses, "task_identifier = ?")
		args = append(args, string(filter.Task))
	}
	if !filter.Start.IsZero() {
		clauses = append(clauses, "date >= ?")
		args = append(args, formatTime(filter.Start))
	}
	if !filter.End.IsZero() {
		clauses = append(clauses, "date <= ?")
		args = append(args, formatTime(filter.End))
	}
	query := "SELECT " + itemColumns + " FROM history_items"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY date, id"

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history items: %w", err)
	}
	defer rows.Close()

	var items []study.HistoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteHistoryItemByImage removes the item that owns imageName. It reports
// whether a row was deleted.
func (s *Store) DeleteHistoryItemByImage(ctx context.Context, imageName string) (bool, error) {
	if strings.TrimSpace(imageName) == "" {
		return false, services.Wrap(services.ErrValidation, "history", "delete item", "image name required", nil)
	}
	res, err := s.exec(ctx, "DELETE FROM history_items WHERE image_name = ?", imageName)
	if err != nil {
		return false, fmt.Errorf("delete history item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete history item: %w", err)
	}
	return affected > 0, nil
}
