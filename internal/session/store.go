package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultSlot = "default"

// Store is the persistence boundary for the process-wide session.
type Store interface {
	Save(ctx context.Context, current Session) error
	Load(ctx context.Context) (Session, error)
	Clear(ctx context.Context) error
}

// Record is the durable row backing a saved session.
type Record struct {
	Slot             string `gorm:"column:slot;primaryKey;size:32;not null"`
	UserID           string `gorm:"column:user_id;size:190;not null"`
	Email            string `gorm:"column:user_email;size:320"`
	AccessToken      string `gorm:"column:access_token;type:text;not null"`
	ExpiresAtSeconds int64  `gorm:"column:expires_at_s;not null;default:0"`
	SavedAtSeconds   int64  `gorm:"column:saved_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "client_sessions"
}

// SQLiteStoreConfig describes the dependencies of the SQLite-backed store.
type SQLiteStoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// SQLiteStore keeps the session in the local database so it survives restarts.
type SQLiteStore struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewSQLiteStore constructs a store over an already migrated database.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("session: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Save replaces any stored session with the provided one.
func (s *SQLiteStore) Save(ctx context.Context, current Session) error {
	if err := current.Validate(); err != nil {
		return err
	}
	record := Record{
		Slot:           defaultSlot,
		UserID:         current.UserID,
		Email:          normalizeEmail(current.Email),
		AccessToken:    current.AccessToken,
		SavedAtSeconds: s.clock().UTC().Unix(),
	}
	if !current.ExpiresAt.IsZero() {
		record.ExpiresAtSeconds = current.ExpiresAt.UTC().Unix()
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).
		Error
	if err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	s.logger.Debug("session saved", zap.String("user_id", record.UserID))
	return nil
}

// Load returns the stored session. Expired sessions are cleared and reported as ErrSessionExpired.
func (s *SQLiteStore) Load(ctx context.Context) (Session, error) {
	var record Record
	err := s.db.WithContext(ctx).Where("slot = ?", defaultSlot).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: load: %w", err)
	}

	current := Session{
		UserID:      record.UserID,
		Email:       record.Email,
		AccessToken: record.AccessToken,
		SavedAt:     time.Unix(record.SavedAtSeconds, 0).UTC(),
	}
	if record.ExpiresAtSeconds > 0 {
		current.ExpiresAt = time.Unix(record.ExpiresAtSeconds, 0).UTC()
	}
	if current.AccessToken == "" {
		return Session{}, ErrNoSession
	}
	if current.Expired(s.clock()) {
		if clearErr := s.Clear(ctx); clearErr != nil {
			s.logger.Warn("failed to clear expired session", zap.Error(clearErr))
		}
		return Session{}, ErrSessionExpired
	}
	return current, nil
}

// Clear removes the stored session. Clearing an empty store is not an error.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("slot = ?", defaultSlot).Delete(&Record{}).Error; err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	s.logger.Debug("session cleared")
	return nil
}

// MemoryStore holds the session in process memory only.
type MemoryStore struct {
	mu      sync.RWMutex
	current *Session
	clock   func() time.Time
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{clock: clock}
}

func (m *MemoryStore) Save(_ context.Context, current Session) error {
	if err := current.Validate(); err != nil {
		return err
	}
	current.Email = normalizeEmail(current.Email)
	current.SavedAt = m.clock().UTC()
	m.mu.Lock()
	m.current = &current
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(_ context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Session{}, ErrNoSession
	}
	if m.current.Expired(m.clock()) {
		m.current = nil
		return Session{}, ErrSessionExpired
	}
	return *m.current, nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	return nil
}
