package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"ballotkey.org/internal/ids"
	"ballotkey.org/internal/obs"
)

type userIDKey struct{}

// WithUserID attaches the acting user's id to the context for audit logging.
func WithUserID(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the user id stored by WithUserID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(userIDKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// LogEvent writes an audit log entry enriched with request and user context.
// Callers must not pass secrets in fields.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid, ok := ids.RequestIDFromContext(ctx); ok {
		entry["request_id"] = rid
	}
	if userID, ok := UserIDFromContext(ctx); ok {
		entry["user_id"] = userID
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	entry["fields"] = copyFields

	obs.Write(entry)
	return nil
}
