package events

import (
	"context"
	"database/sql"
)

// EventLog appends events to the event_log table.
type EventLog struct {
	db     *sql.DB
	siteID string
}

func NewEventLog(db *sql.DB, siteID string) *EventLog {
	if siteID == "" {
		siteID = "local"
	}
	return &EventLog{db: db, siteID: siteID}
}

func (r *EventLog) Publish(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		r.siteID, string(e.Type), e.Key, string(e.Data), e.CreatedAt)
	return err
}

// Since returns up to limit events with an offset greater than after, oldest first.
func (r *EventLog) Since(ctx context.Context, after int64, limit int) ([]Logged, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT "offset", typ, key, data, created_at FROM event_log
		 WHERE site_id = $1 AND "offset" > $2 ORDER BY "offset" ASC LIMIT $3`,
		r.siteID, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Logged
	for rows.Next() {
		var l Logged
		var typ, data string
		if err := rows.Scan(&l.Offset, &typ, &l.Key, &data, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Type = Type(typ)
		l.Data = []byte(data)
		out = append(out, l)
	}
	return out, rows.Err()
}

// Logged is an event as stored, with its log offset.
type Logged struct {
	Offset int64 `json:"offset"`
	Event
}
