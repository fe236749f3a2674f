package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"cdpledger/core/events"
)

// ErrNotFound is returned when a queried record does not exist.
var ErrNotFound = errors.New("indexer: record not found")

// subjectKeys are the attributes naming the account an event concerns, in
// order of preference.
var subjectKeys = []string{"owner", "account", "redeemer", "liquidator"}

// Open connects to the database named by dsn. postgres:// URLs and key=value
// DSNs with a host select Postgres; anything else is a SQLite path.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("indexer: dsn required")
	}
	var dialector gorm.Dialector
	if isPostgres(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

func isPostgres(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=")
}

// Sink persists every emitted event. It implements events.Emitter; write
// failures are logged and counted since emitters cannot fail the ledger.
type Sink struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sequence uint64
	failures uint64
}

// NewSink resumes numbering after the highest stored sequence.
func NewSink(db *gorm.DB, log *slog.Logger) (*Sink, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	var last struct{ Max uint64 }
	if err := db.Model(&EventRecord{}).Select("COALESCE(MAX(sequence), 0) AS max").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("indexer: load sequence: %w", err)
	}
	return &Sink{
		db:       db,
		logger:   log.With(slog.String("component", "indexer")),
		now:      func() time.Time { return time.Now().UTC() },
		sequence: last.Max,
	}, nil
}

// SetClock overrides the timestamp source.
func (s *Sink) SetClock(now func() time.Time) {
	if s == nil || now == nil {
		return
	}
	s.now = now
}

// Failures returns the number of events that could not be stored.
func (s *Sink) Failures() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Emit implements events.Emitter.
func (s *Sink) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	if err := s.Record(context.Background(), evt); err != nil {
		s.mu.Lock()
		s.failures++
		s.mu.Unlock()
		s.logger.Error("index event", slog.String("event", evt.EventType()), slog.Any("error", err))
	}
}

// Record stores evt and, for trove updates, the trove projection.
func (s *Sink) Record(ctx context.Context, evt events.Event) error {
	rendered := events.Render(evt)
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	record := EventRecord{
		ID:         uuid.New(),
		Sequence:   s.sequence + 1,
		Type:       rendered.Type,
		Subject:    subject(rendered.Attributes),
		Attributes: string(attrs),
		CreatedAt:  ts,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if rendered.Type != events.TypeTroveUpdated {
			return nil
		}
		trove := TroveRecord{
			Owner:     rendered.Attributes["owner"],
			Status:    rendered.Attributes["status"],
			Coll:      rendered.Attributes["coll"],
			Debt:      rendered.Attributes["debt"],
			Stake:     rendered.Attributes["stake"],
			Operation: rendered.Attributes["operation"],
			UpdatedAt: ts,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner"}},
			UpdateAll: true,
		}).Create(&trove).Error
	})
	if err != nil {
		return fmt.Errorf("indexer: store %s: %w", rendered.Type, err)
	}
	s.sequence = record.Sequence
	return nil
}

func subject(attrs map[string]string) string {
	for _, key := range subjectKeys {
		if v := attrs[key]; v != "" {
			return v
		}
	}
	return ""
}

// Filter narrows an event query. Zero values match everything.
type Filter struct {
	Type    string
	Subject string
	After   uint64
	Limit   int
}

// Event is a stored event with decoded attributes.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Events returns stored events in sequence order.
func (s *Sink) Events(ctx context.Context, f Filter) ([]Event, error) {
	q := s.db.WithContext(ctx).Model(&EventRecord{}).Where("sequence > ?", f.After).Order("sequence ASC")
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Subject != "" {
		q = q.Where("subject = ?", f.Subject)
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var rows []EventRecord
	if err := q.Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		evt := Event{ID: row.ID, Sequence: row.Sequence, Type: row.Type, CreatedAt: row.CreatedAt}
		if err := json.Unmarshal([]byte(row.Attributes), &evt.Attributes); err != nil {
			return nil, fmt.Errorf("indexer: decode event %d: %w", row.Sequence, err)
		}
		out = append(out, evt)
	}
	return out, nil
}

// Trove returns the indexed projection of owner's trove.
func (s *Sink) Trove(ctx context.Context, owner string) (*TroveRecord, error) {
	var rec TroveRecord
	err := s.db.WithContext(ctx).Where("owner = ?", owner).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
