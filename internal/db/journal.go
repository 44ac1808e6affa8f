package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/armguard/internal/arm"
)

// DefaultListLimit caps list queries when the caller passes a non-positive limit.
const DefaultListLimit = 100

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// Move is a journaled move.
type Move struct {
	ID         string    `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	From       string    `json:"from,omitempty"`
	Pose       string    `json:"pose"`
	Base       int       `json:"base"`
	Shoulder   int       `json:"shoulder"`
	Elbow      int       `json:"elbow"`
	Wrist      int       `json:"wrist"`
	Gripper    int       `json:"gripper"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// SafetyEvent is a journaled rejection, emergency condition or stop.
type SafetyEvent struct {
	ID         string    `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	Kind       string    `json:"kind"`
	Pose       string    `json:"pose,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// LinkLine is a stored firmware reply.
type LinkLine struct {
	ID         int64     `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	Line       string    `json:"line"`
}

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}

// RecordMove stores a dispatched move.
func (db *DB) RecordMove(m arm.MoveRecord) error {
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := db.Exec(
		`INSERT INTO moves (
			move_id, recorded_at, from_pose, pose_name,
			base, shoulder, elbow, wrist, gripper,
			outcome, error, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, unixMillis(m.At), m.From, m.Target.Name(),
		m.Target.Base(), m.Target.Shoulder(), m.Target.Elbow(), m.Target.Wrist(), m.Target.Gripper(),
		m.Outcome, m.Error, m.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert move: %w", err)
	}
	return nil
}

// RecordSafetyEvent stores a safety event.
func (db *DB) RecordSafetyEvent(e arm.SafetyEvent) error {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := db.Exec(
		`INSERT INTO safety_events (event_id, recorded_at, kind, pose_name, detail) VALUES (?, ?, ?, ?, ?)`,
		id, unixMillis(e.At), e.Kind, e.Pose, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to insert safety event: %w", err)
	}
	return nil
}

// RecordLinkResponse stores one firmware reply line verbatim.
func (db *DB) RecordLinkResponse(line string) error {
	_, err := db.Exec(`INSERT INTO link_log (recorded_at, line) VALUES (?, ?)`, time.Now().UnixMilli(), line)
	if err != nil {
		return fmt.Errorf("failed to insert link log line: %w", err)
	}
	return nil
}

// RecentMoves returns up to limit moves, newest first.
func (db *DB) RecentMoves(limit int) ([]Move, error) {
	rows, err := db.Query(
		`SELECT move_id, recorded_at, from_pose, pose_name,
			base, shoulder, elbow, wrist, gripper, outcome, error, duration_ms
		FROM moves ORDER BY recorded_at DESC, rowid DESC LIMIT ?`, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	moves := []Move{}
	for rows.Next() {
		var m Move
		var at int64
		if err := rows.Scan(&m.ID, &at, &m.From, &m.Pose,
			&m.Base, &m.Shoulder, &m.Elbow, &m.Wrist, &m.Gripper,
			&m.Outcome, &m.Error, &m.DurationMs); err != nil {
			return nil, err
		}
		m.RecordedAt = time.UnixMilli(at).UTC()
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

// RecentSafetyEvents returns up to limit events, newest first. A non-empty
// kind filters by event kind.
func (db *DB) RecentSafetyEvents(kind string, limit int) ([]SafetyEvent, error) {
	query := `SELECT event_id, recorded_at, kind, pose_name, detail FROM safety_events`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY recorded_at DESC, rowid DESC LIMIT ?`
	args = append(args, limitOrDefault(limit))

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []SafetyEvent{}
	for rows.Next() {
		var e SafetyEvent
		var at int64
		if err := rows.Scan(&e.ID, &at, &e.Kind, &e.Pose, &e.Detail); err != nil {
			return nil, err
		}
		e.RecordedAt = time.UnixMilli(at).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecentLinkLines returns up to limit firmware replies, newest first.
func (db *DB) RecentLinkLines(limit int) ([]LinkLine, error) {
	rows, err := db.Query(`SELECT log_id, recorded_at, line FROM link_log ORDER BY log_id DESC LIMIT ?`, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []LinkLine{}
	for rows.Next() {
		var l LinkLine
		var at int64
		if err := rows.Scan(&l.ID, &at, &l.Line); err != nil {
			return nil, err
		}
		l.RecordedAt = time.UnixMilli(at).UTC()
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// EventCounts returns the number of journaled safety events per kind.
func (db *DB) EventCounts() (map[string]int, error) {
	rows, err := db.Query(`SELECT kind, COUNT(*) FROM safety_events GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

var (
	_ arm.Recorder = (*DB)(nil)
)
