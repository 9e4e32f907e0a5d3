package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// AccessLog is one request line.
type AccessLog struct {
	Time         time.Time
	Method       string
	Path         string
	Status       int
	Duration     int64
	RemoteIP     string
	UserAgent    string
	Profile      string
	Source       string
	Proxies      int
	RegionGroups int
	BytesWritten int64
}

// NewAccessLogger writes one JSON object per request to w. The timestamp is
// dropped when fields is non-empty and does not name "time".
func NewAccessLogger(w io.Writer, fields []string) *logrus.Logger {
	if w == nil {
		w = io.Discard
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	f := &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        logrus.FieldMap{logrus.FieldKeyMsg: "msg"},
	}
	if len(fields) > 0 && !lo.Contains(fields, "time") {
		f.DisableTimestamp = true
	}
	l.SetFormatter(f)
	return l
}

// fields renders e, keeping only the allowed keys when allowed is non-empty.
// "time" is owned by the formatter.
func (e AccessLog) fields(allowed []string) logrus.Fields {
	all := logrus.Fields{
		"method":        e.Method,
		"path":          e.Path,
		"status":        e.Status,
		"duration_ms":   e.Duration,
		"remote_ip":     e.RemoteIP,
		"user_agent":    e.UserAgent,
		"profile":       e.Profile,
		"source":        e.Source,
		"proxies":       e.Proxies,
		"region_groups": e.RegionGroups,
		"bytes_written": e.BytesWritten,
	}
	if e.Profile == "" {
		delete(all, "profile")
	}
	if e.Source == "" {
		delete(all, "source")
	}
	if len(allowed) == 0 {
		return all
	}
	out := make(logrus.Fields, len(allowed))
	for _, k := range allowed {
		if v, ok := all[k]; ok {
			out[k] = v
		}
	}
	return out
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int64
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}
