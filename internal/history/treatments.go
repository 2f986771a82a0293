package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"psorcast/internal/services"
	"psorcast/internal/study"
)

const treatmentColumns = "id, treatments_json, start_date, end_date"

func scanTreatment(scanner interface{ Scan(dest ...any) error }) (study.TreatmentRange, error) {
	var (
		id         int64
		treatments string
		startRaw   string
		endRaw     sql.NullString
	)
	if err := scanner.Scan(&id, &treatments, &startRaw, &endRaw); err != nil {
		return study.TreatmentRange{}, err
	}
	r := study.TreatmentRange{ID: id, EndDate: parseNullTime(endRaw)}
	if err := json.Unmarshal([]byte(treatments), &r.Treatments); err != nil {
		return study.TreatmentRange{}, fmt.Errorf("decode treatments for range %d: %w", id, err)
	}
	start, err := parseTimeString(startRaw)
	if err != nil {
		return study.TreatmentRange{}, fmt.Errorf("parse start date for range %d: %w", id, err)
	}
	r.StartDate = start
	return r, nil
}

func queryTreatments(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}) ([]study.TreatmentRange, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+treatmentColumns+" FROM treatment_ranges ORDER BY start_date, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranges []study.TreatmentRange
	for rows.Next() {
		r, err := scanTreatment(rows)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, rows.Err()
}

// TreatmentRanges returns every range, oldest first.
func (s *Store) TreatmentRanges(ctx context.Context) ([]study.TreatmentRange, error) {
	ranges, err := queryTreatments(ensureContext(ctx), s.db)
	if err != nil {
		return nil, fmt.Errorf("list treatment ranges: %w", err)
	}
	return ranges, nil
}

// CurrentTreatmentRange returns the open range. ok is false when no
// treatment has been recorded yet.
func (s *Store) CurrentTreatmentRange(ctx context.Context) (study.TreatmentRange, bool, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+treatmentColumns+" FROM treatment_ranges WHERE end_date IS NULL ORDER BY start_date DESC LIMIT 1")
	r, err := scanTreatment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return study.TreatmentRange{}, false, nil
	}
	if err != nil {
		return study.TreatmentRange{}, false, fmt.Errorf("load current treatment: %w", err)
	}
	return r, true, nil
}

// BaseStudyStartDate is the start of the earliest treatment range.
func (s *Store) BaseStudyStartDate(ctx context.Context) (time.Time, bool, error) {
	var raw sql.NullString
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT MIN(start_date) FROM treatment_ranges").Scan(&raw); err != nil {
		return time.Time{}, false, fmt.Errorf("load study start: %w", err)
	}
	start := parseNullTime(raw)
	if start == nil {
		return time.Time{}, false, nil
	}
	return *start, true, nil
}

// StartTreatment closes the open range at start and opens a new one with
// treatments. The resulting set of ranges must still be non-overlapping.
func (s *Store) StartTreatment(ctx context.Context, treatments []string, start time.Time) (study.TreatmentRange, error) {
	cleaned := make([]string, 0, len(treatments))
	for _, t := range treatments {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	next := study.TreatmentRange{Treatments: cleaned, StartDate: start}
	if err := study.ValidateStruct(next); err != nil {
		return study.TreatmentRange{}, err
	}
	payload, err := json.Marshal(cleaned)
	if err != nil {
		return study.TreatmentRange{}, fmt.Errorf("encode treatments: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := queryTreatments(ctx, tx)
		if err != nil {
			return fmt.Errorf("list treatment ranges: %w", err)
		}
		proposed := make([]study.TreatmentRange, 0, len(existing)+1)
		var openID int64
		for _, r := range existing {
			if r.EndDate == nil {
				openID = r.ID
				end := start
				r.EndDate = &end
			}
			proposed = append(proposed, r)
		}
		proposed = append(proposed, next)
		if err := study.ValidateRanges(proposed); err != nil {
			return err
		}

		if openID != 0 {
			if _, err := tx.ExecContext(ctx, "UPDATE treatment_ranges SET end_date = ? WHERE id = ?", formatTime(start), openID); err != nil {
				return fmt.Errorf("close treatment range: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO treatment_ranges (treatments_json, start_date) VALUES (?, ?)",
			string(payload), formatTime(start))
		if err != nil {
			return fmt.Errorf("insert treatment range: %w", err)
		}
		next.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return study.TreatmentRange{}, err
		}
		return study.TreatmentRange{}, services.Wrap(services.ErrTransient, "history", "start treatment", "", err)
	}
	return next, nil
}
