package logs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	File   string `yaml:"file"`
	Pretty bool   `yaml:"pretty"`
	Buffer int    `yaml:"buffer" validate:"gte=0"`
}

// Logs owns the writers behind the global zerolog logger.
type Logs struct {
	Audit *AuditLogger
	file  *os.File
}

// Setup points the global logger at stdout, an optional file and an
// in-memory ring buffer of recent lines.
func Setup(cfg Config) (*Logs, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}
	if cfg.Buffer == 0 {
		cfg.Buffer = 200
	}

	l := &Logs{Audit: NewAuditLogger(cfg.Buffer)}

	var console io.Writer = os.Stdout
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
	}
	writers := []io.Writer{
		console,
		zerolog.ConsoleWriter{Out: l.Audit, NoColor: true, TimeFormat: time.DateTime},
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = file
		writers = append(writers, file)
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return l, nil
}

func (l *Logs) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
