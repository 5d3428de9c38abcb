package persist

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"accessplane/logger"
	"accessplane/models"
	"accessplane/store"
	"accessplane/storage/pools"
)

// SQLitePersister is the SQL-backed half of the Bulk Persister (§4.5),
// using the teacher's own storage driver dependency
// (github.com/mattn/go-sqlite3) rather than a hand-rolled binary format.
type SQLitePersister struct {
	db *sql.DB
}

// OpenSQLitePersister opens (creating if necessary) the events table at
// dsn, a standard database/sql data source name understood by the
// sqlite3 driver (e.g. "file:/var/accessplane/events.db?_journal=WAL").
func OpenSQLitePersister(dsn string) (*SQLitePersister, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, models.Wrap(models.CodeArgument, err, "opening sqlite persister")
	}
	if _, err := db.Exec(EventsSchemaSQL); err != nil {
		db.Close()
		return nil, models.Wrap(models.CodeArgument, err, "creating events schema")
	}
	return &SQLitePersister{db: db}, nil
}

// EventsSchemaSQL is the scripted template an Instance Manager (§4.10)
// runs against a freshly provisioned shard group's storage instance
// before handing it off to a SQLitePersister.
const EventsSchemaSQL = `
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	action      TEXT NOT NULL,
	payload     BLOB NOT NULL,
	occurred_at INTEGER NOT NULL,
	hash_code   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_occurred_at ON events(occurred_at);
`

// PersistEvents writes events within a single transaction. When
// ignoreDuplicates is true, re-flushing an already-persisted batch is
// idempotent because the insert uses INSERT OR IGNORE keyed on event id
// (§4.5) — a re-delivered event is silently dropped rather than
// producing a constraint-violation error.
func (p *SQLitePersister) PersistEvents(events []models.Event, ignoreDuplicates bool) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := p.db.Begin()
	if err != nil {
		return models.Wrap(models.CodeArgument, err, "beginning persist transaction")
	}

	insertSQL := "INSERT INTO events (id, kind, action, payload, occurred_at, hash_code) VALUES (?, ?, ?, ?, ?, ?)"
	if ignoreDuplicates {
		insertSQL = "INSERT OR IGNORE INTO events (id, kind, action, payload, occurred_at, hash_code) VALUES (?, ?, ?, ?, ?, ?)"
	}
	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		tx.Rollback()
		return models.Wrap(models.CodeArgument, err, "preparing insert statement")
	}
	defer stmt.Close()

	order, grouped := eventsInKindOrder(events)
	for _, kind := range order {
		for _, e := range grouped[kind] {
			buf := pools.GetBuffer()
			if err := json.NewEncoder(buf).Encode(e.Payload); err != nil {
				pools.PutBuffer(buf)
				tx.Rollback()
				return models.Wrap(models.CodeArgument, err, "marshalling event payload")
			}
			payload := append([]byte(nil), bytes.TrimRight(buf.Bytes(), "\n")...)
			pools.PutBuffer(buf)
			if _, err := stmt.Exec(e.ID, string(e.Kind), string(e.Action), payload, e.OccurredAt.UnixNano(), e.HashCode); err != nil {
				tx.Rollback()
				return models.Wrap(models.CodeArgument, err, fmt.Sprintf("inserting event %s", e.ID))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Wrap(models.CodeArgument, err, "committing persist transaction")
	}
	logger.Debug("[SQLitePersister] persisted %d events across %d categories", len(events), len(order))
	return nil
}

// Load replays persisted events, in occurred_at order, into target up
// to the requested boundary.
func (p *SQLitePersister) Load(target *store.Store, boundary LoadBoundary) (LoadResult, error) {
	query := "SELECT id, kind, action, payload, occurred_at, hash_code FROM events"
	var args []interface{}

	switch boundary.Mode {
	case BoundaryUpToEventID:
		query += " WHERE occurred_at <= (SELECT occurred_at FROM events WHERE id = ?)"
		args = append(args, boundary.UpToEventID)
	case BoundaryUpToTimestamp:
		query += " WHERE occurred_at <= ?"
		args = append(args, boundary.UpToTimestamp.UnixNano())
	}
	query += " ORDER BY occurred_at ASC"

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return LoadResult{}, models.Wrap(models.CodeArgument, err, "querying persisted events")
	}
	defer rows.Close()

	var result LoadResult
	count := 0
	for rows.Next() {
		var (
			id, kind, action string
			payload          []byte
			occurredAtNano   int64
			hashCode         int32
		)
		if err := rows.Scan(&id, &kind, &action, &payload, &occurredAtNano, &hashCode); err != nil {
			return LoadResult{}, models.Wrap(models.CodeArgument, err, "scanning persisted event")
		}
		var p2 models.Payload
		if err := json.Unmarshal(payload, &p2); err != nil {
			return LoadResult{}, models.Wrap(models.CodeArgument, err, "unmarshalling event payload")
		}
		occurredAt := time.Unix(0, occurredAtNano).UTC()
		e := models.Event{ID: id, Kind: models.Kind(kind), Action: models.Action(action), Payload: p2, OccurredAt: occurredAt, HashCode: hashCode}
		if err := target.Apply(e); err != nil {
			return LoadResult{}, models.Wrap(models.CodeArgument, err, fmt.Sprintf("replaying event %s", id))
		}
		result.BoundaryEventID = id
		result.BoundaryTimestamp = occurredAt
		count++
	}
	if count == 0 && boundary.Mode == BoundaryLatest {
		return LoadResult{}, models.ErrStorageEmpty
	}
	logger.Debug("[SQLitePersister] replayed %d events up to id=%s", count, result.BoundaryEventID)
	return result, nil
}

// Close closes the underlying database handle.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}

// EventsInRange reads events whose hashCode falls within [lo, hi], in
// occurred_at order, resuming after afterEventID (the "last copied event
// id" cursor of §4.9's CopyBatches step) so a split/merge orchestrator
// can page through a source shard's range without re-reading events it
// already copied. limit <= 0 means unbounded.
func (p *SQLitePersister) EventsInRange(lo, hi int32, afterEventID string, limit int) ([]models.Event, error) {
	query := "SELECT id, kind, action, payload, occurred_at, hash_code FROM events WHERE hash_code >= ? AND hash_code <= ?"
	args := []interface{}{lo, hi}
	if afterEventID != "" {
		query += " AND occurred_at > (SELECT occurred_at FROM events WHERE id = ?)"
		args = append(args, afterEventID)
	}
	query += " ORDER BY occurred_at ASC, id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, models.Wrap(models.CodeArgument, err, "querying events in range")
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var (
			id, kind, action string
			payload          []byte
			occurredAtNano   int64
			hashCode         int32
		)
		if err := rows.Scan(&id, &kind, &action, &payload, &occurredAtNano, &hashCode); err != nil {
			return nil, models.Wrap(models.CodeArgument, err, "scanning ranged event")
		}
		var p2 models.Payload
		if err := json.Unmarshal(payload, &p2); err != nil {
			return nil, models.Wrap(models.CodeArgument, err, "unmarshalling ranged event payload")
		}
		out = append(out, models.Event{
			ID: id, Kind: models.Kind(kind), Action: models.Action(action),
			Payload: p2, OccurredAt: time.Unix(0, occurredAtNano).UTC(), HashCode: hashCode,
		})
	}
	return out, nil
}

// DeleteRange removes every event whose hashCode falls within [lo, hi]
// (§4.9's DeleteFromSource step, run only after the target shard group
// has durably absorbed the range via CopyBatches/Cutover).
func (p *SQLitePersister) DeleteRange(lo, hi int32) error {
	_, err := p.db.Exec("DELETE FROM events WHERE hash_code >= ? AND hash_code <= ?", lo, hi)
	if err != nil {
		return models.Wrap(models.CodeArgument, err, "deleting event range")
	}
	logger.Debug("[SQLitePersister] deleted events with hashCode in [%d, %d]", lo, hi)
	return nil
}
