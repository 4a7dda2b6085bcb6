package ws

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConnInfo carries per-connection identity and correlation data for
// lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnInfo(r *http.Request, requestID, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      uuid.NewString(),
		DeviceID:    r.Header.Get("X-Device-Id"),
		IP:          clientIP(r),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}

func clientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
