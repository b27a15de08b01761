package persistence

import "context"

// ScheduleRule mirrors config.ScheduleRuleConfig but is the persisted form,
// so rules edited at runtime (not just at config load) survive a restart.
type ScheduleRule struct {
	Name      string
	Days      string // comma-separated, empty = all days
	StartTime string
	EndTime   string
	Enabled   bool
	Action    string
	SpeedBps  int64
}

func (s *Store) SaveScheduleRule(ctx context.Context, r *ScheduleRule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_rules (name, days, start_time, end_time, enabled, action, speed_bps)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			days = excluded.days,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			enabled = excluded.enabled,
			action = excluded.action,
			speed_bps = excluded.speed_bps`,
		r.Name, r.Days, r.StartTime, r.EndTime, boolToInt(r.Enabled), r.Action, r.SpeedBps,
	)
	return err
}

func (s *Store) ListScheduleRules(ctx context.Context) ([]*ScheduleRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, days, start_time, end_time, enabled, action, speed_bps FROM schedule_rules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScheduleRule
	for rows.Next() {
		var r ScheduleRule
		var enabled int
		if err := rows.Scan(&r.Name, &r.Days, &r.StartTime, &r.EndTime, &enabled, &r.Action, &r.SpeedBps); err != nil {
			return nil, err
		}
		r.Enabled = enabled != 0
		out = append(out, &r)
	}
	return out, rows.Err()
}
