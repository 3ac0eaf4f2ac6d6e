package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// WorkerID records the worker identifier under the key "worker_id".
func WorkerID(id string) slog.Attr {
	return slog.String("worker_id", id)
}

// NotificationID records the notification identifier under the key "notification_id".
func NotificationID(id string) slog.Attr {
	return slog.String("notification_id", id)
}

// DeviceToken records a device token under the key "device_token".
// Tokens are opaque provider credentials, so only a short prefix is logged.
func DeviceToken(token string) slog.Attr {
	const visible = 8
	if len(token) > visible {
		token = token[:visible] + "…"
	}
	return slog.String("device_token", token)
}

// Platform records the device platform under the key "platform".
func Platform(p string) slog.Attr {
	return slog.String("platform", p)
}

// Dependency records a downstream dependency name under the key "dependency".
func Dependency(name string) slog.Attr {
	return slog.String("dependency", name)
}

// Attempt records the delivery attempt number under the key "attempt".
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Count records a generic count under the key "count".
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}
