package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"libraryhub/internal/postgres"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultTableName = "loan_events"

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrEmptyTableName      = errors.New("event table name must not be empty")
	ErrNoEvents            = errors.New("no events to append")
)

// Event is one immutable entry in an aggregate's history.
type Event struct {
	ID            int64                  `json:"id" db:"id"`
	AggregateID   uuid.UUID              `json:"aggregate_id" db:"aggregate_id"`
	AggregateType string                 `json:"aggregate_type" db:"aggregate_type"`
	EventType     string                 `json:"event_type" db:"event_type"`
	EventData     json.RawMessage        `json:"event_data" db:"event_data"`
	Metadata      map[string]interface{} `json:"metadata,omitempty" db:"-"`
	Version       int                    `json:"version" db:"version"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
}

// NewEvent marshals data into an event of the given type.
func NewEvent(eventType string, data interface{}) (Event, error) {
	payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return Event{EventType: eventType, EventData: payload}, nil
}

// EventStore appends and loads versioned aggregate histories.
type EventStore struct {
	db        *sqlx.DB
	tableName string
	tracer    trace.Tracer
}

// Option configures an EventStore.
type Option func(*EventStore) error

// WithTableName overrides the table events are stored in.
func WithTableName(tableName string) Option {
	return func(es *EventStore) error {
		if tableName == "" {
			return ErrEmptyTableName
		}
		es.tableName = tableName
		return nil
	}
}

// NewEventStore creates an event store on top of the shared connection pool.
func NewEventStore(db *sqlx.DB, options ...Option) (*EventStore, error) {
	es := &EventStore{
		db:        db,
		tableName: defaultTableName,
		tracer:    otel.Tracer("libraryhub/eventstore"),
	}
	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}
	return es, nil
}

// AppendEvents appends events in a transaction of its own.
func (es *EventStore) AppendEvents(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []Event) error {
	return postgres.InTx(ctx, es.db, func(tx *sqlx.Tx) error {
		return es.Append(ctx, tx, aggregateID, aggregateType, expectedVersion, events)
	})
}

// Append writes events inside the caller's transaction, so they commit or roll back
// together with the state change they describe. expectedVersion must equal the
// aggregate's current version.
func (es *EventStore) Append(ctx context.Context, tx *sqlx.Tx, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []Event) error {
	ctx, span := es.tracer.Start(ctx, "eventstore.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	if len(events) == 0 {
		return ErrNoEvents
	}

	var currentVersion int
	err := tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COALESCE(MAX(version), 0)
		FROM %s
		WHERE aggregate_id = $1
	`, pq.QuoteIdentifier(es.tableName)), aggregateID).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("query current version: %w", err)
	}

	if currentVersion != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, pq.QuoteIdentifier(es.tableName)))
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, event := range events {
		version := expectedVersion + i + 1
		metadataJSON, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata %d: %w", i, err)
		}

		var eventID int64
		err = stmt.QueryRowContext(
			ctx,
			aggregateID,
			aggregateType,
			event.EventType,
			string(event.EventData),
			string(metadataJSON),
			version,
			time.Now().UTC(),
		).Scan(&eventID)
		if err != nil {
			// Another writer took the same version between our check and insert.
			if postgres.IsUniqueViolation(err) {
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("insert event %d: %w", i, err)
		}

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.id", eventID),
			attribute.Int("event.version", version),
			attribute.String("event.type", event.EventType),
		))
	}

	span.SetAttributes(attribute.Bool("append.success", true))
	return nil
}

// LoadEvents returns an aggregate's events in version order. A toVersion of 0 means "up to the latest".
func (es *EventStore) LoadEvents(ctx context.Context, aggregateID uuid.UUID, fromVersion, toVersion int) ([]Event, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.load",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.Int("from.version", fromVersion),
			attribute.Int("to.version", toVersion),
		),
	)
	defer span.End()

	where := goqu.Ex{
		"aggregate_id": aggregateID,
		"version":      goqu.Op{"gte": fromVersion},
	}
	ds := postgres.Dialect.From(es.tableName).Prepared(true).
		Select("id", "aggregate_id", "aggregate_type", "event_type", "event_data", "metadata", "version", "created_at").
		Where(where).
		Order(goqu.C("version").Asc())
	if toVersion > 0 {
		ds = ds.Where(goqu.C("version").Lte(toVersion))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := es.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var eventData, metadataJSON []byte

		err := rows.Scan(
			&event.ID,
			&event.AggregateID,
			&event.AggregateType,
			&event.EventType,
			&eventData,
			&metadataJSON,
			&event.Version,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.EventData = eventData

		if len(metadataJSON) > 0 {
			if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}
