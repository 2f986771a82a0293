package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"psorcast/internal/study"
)

// UpsertActivity stores the schedule entry for activity.Identifier.
func (s *Store) UpsertActivity(ctx context.Context, activity study.ScheduledActivity) error {
	if _, err := study.ParseActivityID(string(activity.Identifier)); err != nil {
		return err
	}
	_, err := s.exec(ctx, `INSERT INTO scheduled_activities (identifier, finished_on) VALUES (?, ?)
		ON CONFLICT(identifier) DO UPDATE SET finished_on = excluded.finished_on`,
		string(activity.Identifier), nullableTime(activity.FinishedOn))
	if err != nil {
		return fmt.Errorf("upsert activity: %w", err)
	}
	return nil
}

// MarkActivityFinished records at as the completion time of id.
func (s *Store) MarkActivityFinished(ctx context.Context, id study.ActivityID, at time.Time) error {
	return s.UpsertActivity(ctx, study.ScheduledActivity{Identifier: id, FinishedOn: &at})
}

// Activities returns the stored schedule in canonical order.
func (s *Store) Activities(ctx context.Context) ([]study.ScheduledActivity, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT identifier, finished_on FROM scheduled_activities")
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	byID := make(map[study.ActivityID]study.ScheduledActivity)
	var unknown []study.ScheduledActivity
	for rows.Next() {
		var (
			identifier string
			finished   sql.NullString
		)
		if err := rows.Scan(&identifier, &finished); err != nil {
			return nil, err
		}
		activity := study.ScheduledActivity{Identifier: study.ActivityID(identifier), FinishedOn: parseNullTime(finished)}
		if activity.Identifier.Known() {
			byID[activity.Identifier] = activity
		} else {
			unknown = append(unknown, activity)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	activities := make([]study.ScheduledActivity, 0, len(byID)+len(unknown))
	for _, id := range study.AllActivities() {
		if activity, ok := byID[id]; ok {
			activities = append(activities, activity)
		}
	}
	return append(activities, unknown...), nil
}
