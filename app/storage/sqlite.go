package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/b1506704/Live2D-AI-Agent/app/agent"
)

//go:embed migrations/*.sql
var migrations embed.FS

var gooseMu sync.Mutex

// timeLayout is fixed width so created_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var _ Interface = &SQLiteStorage{}

type SQLiteStorage struct {
	db *sql.DB

	mu     sync.RWMutex
	closed bool
}

// DefaultPath is data/database.db under the working directory.
func DefaultPath() (string, error) {
	projectDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return filepath.Join(projectDir, "data", "database.db"), nil
}

func NewSQLiteStorage(ctx context.Context, dbPath string) (*SQLiteStorage, error) {
	if dbPath == "" {
		var err error
		if dbPath, err = DefaultPath(); err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("📂 Database path not set, using default")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", dbPath, err)
	}
	// modernc sqlite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err = runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", dbPath).Msg("✅ Execution archive ready")
	return &SQLiteStorage{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SaveExecution(ctx context.Context, rec agent.ExecutionRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	results, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	conversation, err := json.Marshal(rec.Conversation)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, task, state, completed, iterations, language, results, conversation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Task, string(rec.State), rec.Completed, rec.Iterations, rec.Language,
		string(results), string(conversation), rec.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		log.Warn().Err(err).Str("execution", rec.ID).Msg("⚠️ Error saving execution")
		return fmt.Errorf("insert execution: %w", err)
	}
	log.Debug().Str("execution", rec.ID).Msg("💾 Execution archived")
	return nil
}

// ListExecutions returns the newest records first. limit <= 0 means all.
func (s *SQLiteStorage) ListExecutions(ctx context.Context, limit int) ([]agent.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task, state, completed, iterations, language, results, conversation, created_at
		 FROM executions
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []agent.ExecutionRecord
	for rows.Next() {
		var (
			rec                   agent.ExecutionRecord
			state, createdAt      string
			results, conversation string
		)
		if err = rows.Scan(&rec.ID, &rec.Task, &state, &rec.Completed, &rec.Iterations, &rec.Language,
			&results, &conversation, &createdAt); err != nil {
			log.Warn().Err(err).Msg("⚠️ Error scanning execution row")
			continue
		}
		rec.State = agent.State(state)
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
		if err = json.Unmarshal([]byte(results), &rec.Results); err != nil {
			log.Warn().Err(err).Str("execution", rec.ID).Msg("⚠️ Corrupt results column")
		}
		if err = json.Unmarshal([]byte(conversation), &rec.Conversation); err != nil {
			log.Warn().Err(err).Str("execution", rec.ID).Msg("⚠️ Corrupt conversation column")
		}
		out = append(out, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type gooseLogger struct{}

func (gooseLogger) Fatalf(format string, v ...any) {
	log.Fatal().Msgf(format, v...)
}

func (gooseLogger) Printf(format string, v ...any) {
	log.Debug().Msgf(format, v...)
}
