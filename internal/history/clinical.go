package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"psorcast/internal/services"
	"psorcast/internal/study"
)

const (
	answerDiagnosis = "diagnosis"
	answerSymptoms  = "symptoms"
)

// SetDiagnosis records the diagnosis answer. Unknown answers are rejected.
func (s *Store) SetDiagnosis(ctx context.Context, value string) error {
	if !study.IsKnownAnswer(study.KnownDiagnoses(), value) {
		return services.Wrap(services.ErrValidation, "history", "set diagnosis", fmt.Sprintf("unknown diagnosis %q", value), nil)
	}
	return s.setAnswer(ctx, answerDiagnosis, value)
}

// SetSymptoms records the symptoms answer. Unknown answers are rejected.
func (s *Store) SetSymptoms(ctx context.Context, value string) error {
	if !study.IsKnownAnswer(study.KnownSymptoms(), value) {
		return services.Wrap(services.ErrValidation, "history", "set symptoms", fmt.Sprintf("unknown symptoms %q", value), nil)
	}
	return s.setAnswer(ctx, answerSymptoms, value)
}

// Diagnosis returns the recorded diagnosis, if any.
func (s *Store) Diagnosis(ctx context.Context) (string, bool, error) {
	return s.answer(ctx, answerDiagnosis)
}

// Symptoms returns the recorded symptoms answer, if any.
func (s *Store) Symptoms(ctx context.Context) (string, bool, error) {
	return s.answer(ctx, answerSymptoms)
}

func (s *Store) setAnswer(ctx context.Context, kind, value string) error {
	_, err := s.exec(ctx, `INSERT INTO clinical_answers (kind, value, answered_at) VALUES (?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET value = excluded.value, answered_at = excluded.answered_at`,
		kind, value, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("store %s answer: %w", kind, err)
	}
	return nil
}

func (s *Store) answer(ctx context.Context, kind string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ensureContext(ctx), "SELECT value FROM clinical_answers WHERE kind = ?", kind).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load %s answer: %w", kind, err)
	}
	return value, true, nil
}
