// Package audit records API request outcomes off the hot path.
package audit

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Entry is one authenticated request outcome. KeyID is empty for session
// callers and the scheduler sentinel for internal ones.
type Entry struct {
	UserID    string
	KeyID     string
	Method    string
	Path      string
	Status    int
	IPAddress string
	UserAgent string
}

type Logger struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewLogger(db *sql.DB, log zerolog.Logger) *Logger {
	return &Logger{db: db, log: log}
}

// Record writes the usage row and touches the key's last-used timestamp in
// the background so auditing never adds latency to the request. The touch is
// a natural no-op for the scheduler sentinel, which matches no stored key.
func (l *Logger) Record(entry Entry) {
	if entry.UserID == "" {
		return
	}
	id := "audit_" + uuid.New().String()
	now := time.Now().Unix()

	go func() {
		_, err := l.db.Exec(`
			INSERT INTO api_key_usage_log (id, user_id, key_id, method, path, status, ip_address, user_agent, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, entry.UserID, entry.KeyID, entry.Method, entry.Path, entry.Status, entry.IPAddress, entry.UserAgent, now)
		if err != nil {
			l.log.Error().Err(err).Str("path", entry.Path).Msg("usage log insert failed")
			return
		}

		if entry.KeyID != "" {
			if _, err := l.db.Exec(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, now, entry.KeyID); err != nil {
				l.log.Error().Err(err).Str("key_id", entry.KeyID).Msg("last used update failed")
			}
		}
	}()
}
