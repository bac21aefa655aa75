package bootstrap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Keyring-Network/gavryn-tutor/internal/config"
	"github.com/Keyring-Network/gavryn-tutor/internal/store"
	"github.com/Keyring-Network/gavryn-tutor/internal/store/jsonfile"
	"github.com/Keyring-Network/gavryn-tutor/internal/store/memory"
	"github.com/Keyring-Network/gavryn-tutor/internal/store/postgres"
	"github.com/Keyring-Network/gavryn-tutor/internal/store/sqlite"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendFile     = "file"
)

type ErrUnsupportedBackend struct {
	Kind    string
	Backend string
}

func (e ErrUnsupportedBackend) Error() string {
	return fmt.Sprintf("unsupported %s backend: %s", e.Kind, e.Backend)
}

// Opener constructors are variables so tests can avoid real databases.
var (
	openPostgres = func(conn string) (*postgres.PostgresStore, error) {
		return postgres.New(conn)
	}
	openSQLite = func(path string) (*sqlite.SQLiteStore, error) {
		return sqlite.New(path)
	}
	openFeedbackFile = func(path string) (*jsonfile.FeedbackFile, error) {
		return jsonfile.New(path)
	}
)

// Stores holds the session and feedback backends. A database shared by both is
// opened once.
type Stores struct {
	Sessions store.SessionStore
	Feedback store.FeedbackStore
	Probes   map[string]store.Pinger

	mem     *memory.MemoryStore
	pg      *postgres.PostgresStore
	sqlite  *sqlite.SQLiteStore
	closers []func() error
}

func OpenStores(cfg config.Config) (*Stores, error) {
	s := &Stores{Probes: map[string]store.Pinger{}}

	sessions, err := s.sessionStore(cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	feedback, err := s.feedbackStore(cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Sessions = sessions
	s.Feedback = feedback
	return s, nil
}

func (s *Stores) sessionStore(cfg config.Config) (store.SessionStore, error) {
	switch backend := normalizeBackend(cfg.SessionBackend, BackendMemory); backend {
	case BackendMemory:
		return s.memory(), nil
	case BackendPostgres:
		pg, err := s.postgres(cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		s.Probes["sessions"] = pg
		return pg, nil
	case BackendSQLite:
		db, err := s.sqliteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.Probes["sessions"] = db
		return db, nil
	default:
		return nil, ErrUnsupportedBackend{Kind: "session", Backend: backend}
	}
}

func (s *Stores) feedbackStore(cfg config.Config) (store.FeedbackStore, error) {
	switch backend := normalizeBackend(cfg.FeedbackBackend, BackendFile); backend {
	case BackendFile:
		file, err := openFeedbackFile(cfg.FeedbackPath)
		if err != nil {
			return nil, fmt.Errorf("open feedback file: %w", err)
		}
		s.Probes["feedback"] = file
		return file, nil
	case BackendMemory:
		return s.memory(), nil
	case BackendPostgres:
		pg, err := s.postgres(cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		s.Probes["feedback"] = pg
		return pg, nil
	case BackendSQLite:
		db, err := s.sqliteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.Probes["feedback"] = db
		return db, nil
	default:
		return nil, ErrUnsupportedBackend{Kind: "feedback", Backend: backend}
	}
}

func (s *Stores) memory() *memory.MemoryStore {
	if s.mem == nil {
		s.mem = memory.New()
	}
	return s.mem
}

func (s *Stores) postgres(conn string) (*postgres.PostgresStore, error) {
	if s.pg != nil {
		return s.pg, nil
	}
	pg, err := openPostgres(conn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	s.pg = pg
	s.closers = append(s.closers, pg.Close)
	return pg, nil
}

func (s *Stores) sqliteStore(path string) (*sqlite.SQLiteStore, error) {
	if s.sqlite != nil {
		return s.sqlite, nil
	}
	db, err := openSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	s.sqlite = db
	s.closers = append(s.closers, db.Close)
	return db, nil
}

func (s *Stores) Close() error {
	var errs []error
	for _, closer := range s.closers {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func normalizeBackend(value string, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}
