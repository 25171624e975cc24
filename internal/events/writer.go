package events

import (
	"context"
	"database/sql"
	"time"
)

// Writer appends case history entries. Appends happen inside the
// caller's transaction so an event is never recorded for a change
// that rolled back.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, caseID, actorID, note string) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO case_events(case_id,ts,type,note,actor_id) VALUES (?,?,?,?,?)`,
		caseID, ts, evtType, note, actorID)
	return err
}
