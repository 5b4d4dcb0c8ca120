// Package log wraps a single process-wide zerolog.Logger behind the small
// prefix-style API the rest of the gateway calls into, so call sites never
// import zerolog directly.
package log

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
}

// Config selects level, format and redaction for the process-wide logger.
type Config struct {
	Level         string // debug|info|warn|error
	Format        string // pretty|json
	RedactSecrets bool
}

// Configure rebuilds the process-wide logger from a loaded configuration.
// Call once at startup, after the config file has been read.
func Configure(cfg Config) {
	var w io.Writer = os.Stderr
	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	if cfg.RedactSecrets {
		w = &redactingWriter{next: w}
	}

	logger = zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(cfg.Level))
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLogWriter overrides the destination writer, keeping the current level.
// Mainly used by tests that want to capture log output.
func SetLogWriter(w io.Writer) {
	if w == nil {
		return
	}
	logger = logger.Output(w)
}

// Log prints its arguments space-joined at info level, mirroring the
// teacher's fmt.Fprintln-style call sites.
func Log(a ...any) {
	logger.Info().Msg(strings.TrimRight(fmt.Sprintln(a...), "\n"))
}

func Logf(format string, a ...any)   { logger.Info().Msgf(format, a...) }
func Debugf(format string, a ...any) { logger.Debug().Msgf(format, a...) }
func Warnf(format string, a ...any)  { logger.Warn().Msgf(format, a...) }
func Errorf(format string, a ...any) { logger.Error().Msgf(format, a...) }

// Mcp logs a line from a child process's stderr when mcp-debug is enabled,
// prefixed per spec with "[mcp:<name>]".
func Mcp(childName, line string) {
	logger.Info().Msgf("[mcp:%s] %s", childName, line)
}

// redactingWriter scrubs secret-shaped substrings from free-form log lines
// before they reach the underlying writer, per spec §7: sensitive material
// (tokens, secrets, passwords, keys, pins) is redacted by regex substitution
// over each written line, masking the value after a secret-like key name
// (in "key=value" or JSON "key":"value" form) and any bearer credential.
type redactingWriter struct {
	next io.Writer
}

var (
	secretKV  = regexp.MustCompile(`(?i)("?(?:token|secret|password|api[_-]?key|pin)"?\s*[:=]\s*"?)([A-Za-z0-9._~+/=-]{4,})`)
	bearerHdr = regexp.MustCompile(`(?i)(Bearer\s+)([A-Za-z0-9._~+/=-]{8,})`)
)

func (r *redactingWriter) Write(p []byte) (int, error) {
	redacted := secretKV.ReplaceAll(p, []byte(`${1}***redacted***`))
	redacted = bearerHdr.ReplaceAll(redacted, []byte(`${1}***redacted***`))

	if _, err := r.next.Write(redacted); err != nil {
		return 0, err
	}
	return len(p), nil
}
