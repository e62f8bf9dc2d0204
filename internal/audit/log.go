// Package audit mirrors security-relevant events onto the service log so
// operators can trace auth activity without a database query. The durable
// audit trail lives in the auth store; this package is the log-side echo.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"lovedev.org/internal/auth"
	"lovedev.org/internal/obs"
)

// LogEvent writes an audit log entry enriched with request and user context.
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
	meta := auth.RequestMetaFrom(ctx)
	if meta.RequestID != "" {
		entry["request_id"] = meta.RequestID
	}
	if meta.IPAddress != "" {
		entry["ip"] = meta.IPAddress
	}
	if id, ok := auth.IdentityFrom(ctx); ok {
		entry["user_id"] = id.Subject()
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
