// Package audit provides structured audit logging for security-sensitive operations.
// It follows the WHO/WHAT/WHEN pattern for forensics.
package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/videocat/internal/auth"
	"github.com/ManuGH/videocat/internal/log"
	"github.com/rs/zerolog"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Authentication events
	EventAuthFailure EventType = "auth.failure"
	EventAuthMissing EventType = "auth.missing"

	// Catalog mutations
	EventVideoCreate EventType = "video.create"
	EventVideoDelete EventType = "video.delete"
)

// Event represents a structured audit event.
type Event struct {
	Timestamp  time.Time
	Type       EventType
	Actor      string // WHO: principal id, or the client address when unauthenticated
	Action     string // WHAT: human-readable action description
	Resource   string // request path or video reference
	Result     string // success, failure, denied
	RemoteAddr string
	UserAgent  string
	RequestID  string
	Details    map[string]string
}

// Logger provides audit logging functionality.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger with a dedicated "audit" component.
func NewLogger() *Logger {
	return NewLoggerWith(log.WithComponent("audit"))
}

// NewLoggerWith writes audit events to base.
func NewLoggerWith(base zerolog.Logger) *Logger {
	return &Logger{logger: base.With().Str("log_type", "audit").Logger()}
}

// Log writes an audit event to the audit log.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ev := l.logger.Info().
		Time("timestamp", event.Timestamp).
		Str("event_type", string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)

	if event.RemoteAddr != "" {
		ev.Str("remote_addr", event.RemoteAddr)
	}
	if event.UserAgent != "" {
		ev.Str("user_agent", event.UserAgent)
	}
	if event.RequestID != "" {
		ev.Str("request_id", event.RequestID)
	}
	for key, value := range event.Details {
		ev.Str(key, value)
	}

	ev.Msg("audit event")
}

// LogRequest fills the request metadata of event from r and logs it. The
// actor defaults to the authenticated principal, then the client address.
func (l *Logger) LogRequest(r *http.Request, event Event) {
	if event.RemoteAddr == "" {
		event.RemoteAddr = r.RemoteAddr
	}
	if event.UserAgent == "" {
		event.UserAgent = r.UserAgent()
	}
	if event.RequestID == "" {
		event.RequestID = log.RequestIDFromContext(r.Context())
	}
	if event.Resource == "" {
		event.Resource = r.URL.Path
	}
	if event.Actor == "" {
		if p := auth.PrincipalFrom(r.Context()); p != nil {
			event.Actor = p.ID
		} else {
			event.Actor = r.RemoteAddr
		}
	}
	l.Log(event)
}

// AuthFailure logs a request carrying a token that did not authenticate.
func (l *Logger) AuthFailure(r *http.Request, reason string) {
	l.LogRequest(r, Event{
		Type:    EventAuthFailure,
		Action:  "authentication failed",
		Result:  "failure",
		Details: map[string]string{"reason": reason},
	})
}

// AuthMissing logs a request without credentials.
func (l *Logger) AuthMissing(r *http.Request) {
	l.LogRequest(r, Event{
		Type:   EventAuthMissing,
		Action: "accessed endpoint without authentication",
		Result: "denied",
	})
}

// VideoCreated logs a successful upload. enqueued reports whether the
// processing jobs were scheduled.
func (l *Logger) VideoCreated(r *http.Request, videoID int64, title string, enqueued bool) {
	result := "success"
	if !enqueued {
		result = "partial"
	}
	l.LogRequest(r, Event{
		Type:     EventVideoCreate,
		Action:   "uploaded video",
		Resource: "video/" + strconv.FormatInt(videoID, 10),
		Result:   result,
		Details: map[string]string{
			"title":    title,
			"enqueued": strconv.FormatBool(enqueued),
		},
	})
}

// VideoDeleted logs a delete request. existed is false for repeats.
func (l *Logger) VideoDeleted(r *http.Request, videoID int64, existed bool) {
	result := "success"
	if !existed {
		result = "not_found"
	}
	l.LogRequest(r, Event{
		Type:     EventVideoDelete,
		Action:   "deleted video",
		Resource: "video/" + strconv.FormatInt(videoID, 10),
		Result:   result,
	})
}
