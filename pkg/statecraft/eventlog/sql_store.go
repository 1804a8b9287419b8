package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/statecraftio/statecraft/pkg/statecraft"
	"github.com/statecraftio/statecraft/pkg/statecraft/dbstore"
)

// SQLStore persists the event log table over a dbstore.Pool.
// Payload/context/meta/machine_value are stored as serialized JSON text.
type SQLStore struct {
	pool  *dbstore.Pool
	table string
}

// NewSQLStore returns a Store backed by pool, using the given table name
// (defaults to "statecraft_events" when empty).
func NewSQLStore(pool *dbstore.Pool, table string) *SQLStore {
	if table == "" {
		table = "statecraft_events"
	}
	return &SQLStore{pool: pool, table: table}
}

// Schema returns the DDL for the event log table, in a dialect-neutral
// subset that runs on sqlite3, pgx, and lib/pq alike.
func (s *SQLStore) Schema() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	root_event_id TEXT NOT NULL,
	sequence_number INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	machine_id TEXT NOT NULL,
	machine_value TEXT NOT NULL,
	source TEXT NOT NULL,
	type TEXT NOT NULL,
	payload TEXT,
	version INTEGER NOT NULL,
	context TEXT,
	meta TEXT
)`, s.table)
}

func (s *SQLStore) Append(ctx context.Context, events []statecraft.MachineEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsert := fmt.Sprintf(`INSERT INTO %s
		(id, root_event_id, sequence_number, created_at, machine_id, machine_value, source, type, payload, version, context, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		root_event_id=excluded.root_event_id, sequence_number=excluded.sequence_number,
		created_at=excluded.created_at, machine_id=excluded.machine_id,
		machine_value=excluded.machine_value, source=excluded.source, type=excluded.type,
		payload=excluded.payload, version=excluded.version, context=excluded.context, meta=excluded.meta`, s.table)

	for _, evt := range events {
		machineValue, err := json.Marshal(evt.MachineValue)
		if err != nil {
			return fmt.Errorf("eventlog: marshal machine_value: %w", err)
		}
		payload, err := marshalNullable(evt.Payload)
		if err != nil {
			return fmt.Errorf("eventlog: marshal payload: %w", err)
		}
		ctxDiff, err := marshalNullable(evt.Context)
		if err != nil {
			return fmt.Errorf("eventlog: marshal context: %w", err)
		}
		meta, err := marshalNullable(evt.Meta)
		if err != nil {
			return fmt.Errorf("eventlog: marshal meta: %w", err)
		}
		if _, err := tx.ExecContext(ctx, upsert,
			evt.ID, evt.RootEventID, evt.SequenceNumber, evt.CreatedAt.Format(timeLayout),
			evt.MachineID, string(machineValue), evt.Source.String(), evt.Type,
			payload, evt.Version, ctxDiff, meta,
		); err != nil {
			return fmt.Errorf("eventlog: append %s: %w", evt.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Load(ctx context.Context, rootEventID string) ([]statecraft.MachineEvent, error) {
	query := fmt.Sprintf(`SELECT id, root_event_id, sequence_number, created_at, machine_id, machine_value, source, type, payload, version, context, meta
		FROM %s WHERE root_event_id = ? ORDER BY sequence_number ASC`, s.table)
	rows, err := s.pool.Query(ctx, query, rootEventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []statecraft.MachineEvent
	for rows.Next() {
		var (
			evt                                       statecraft.MachineEvent
			createdAt, machineValue, source            string
			payload, ctxDiff, meta                     sql.NullString
		)
		if err := rows.Scan(&evt.ID, &evt.RootEventID, &evt.SequenceNumber, &createdAt,
			&evt.MachineID, &machineValue, &source, &evt.Type, &payload, &evt.Version, &ctxDiff, &meta); err != nil {
			return nil, err
		}
		evt.CreatedAt = mustParseTime(createdAt)
		evt.Source = parseSource(source)
		if err := json.Unmarshal([]byte(machineValue), &evt.MachineValue); err != nil {
			return nil, fmt.Errorf("eventlog: unmarshal machine_value: %w", err)
		}
		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &evt.Payload); err != nil {
				return nil, fmt.Errorf("eventlog: unmarshal payload: %w", err)
			}
		}
		if ctxDiff.Valid {
			if err := json.Unmarshal([]byte(ctxDiff.String), &evt.Context); err != nil {
				return nil, fmt.Errorf("eventlog: unmarshal context: %w", err)
			}
		}
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &evt.Meta); err != nil {
				return nil, fmt.Errorf("eventlog: unmarshal meta: %w", err)
			}
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, rootEventID string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE root_event_id = ?`, s.table), rootEventID)
	return err
}

func (s *SQLStore) LatestActivity(ctx context.Context, rootEventID string) (int64, bool, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT created_at FROM %s WHERE root_event_id = ? ORDER BY sequence_number DESC LIMIT 1`, s.table), rootEventID)
	var createdAt string
	if err := row.Scan(&createdAt); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return mustParseTime(createdAt).UnixNano(), true, nil
}

func marshalNullable(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func parseSource(s string) statecraft.EventSource {
	if s == "internal" {
		return statecraft.Internal
	}
	return statecraft.External
}
