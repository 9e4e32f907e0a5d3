package handler

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fabian4/overwrite-homebrew-go/internal/config"
	"github.com/fabian4/overwrite-homebrew-go/internal/fetch"
	"github.com/fabian4/overwrite-homebrew-go/internal/lb"
	"github.com/fabian4/overwrite-homebrew-go/internal/metrics"
	"github.com/fabian4/overwrite-homebrew-go/internal/overwrite"
	"github.com/fabian4/overwrite-homebrew-go/internal/ratelimit"
	"github.com/fabian4/overwrite-homebrew-go/internal/router"
)

// Fixed paths served next to the profiles.
const (
	PathConvert = "/convert"
	PathHealth  = "/healthz"
	PathMetrics = "/metrics"
)

// AdHocProfile labels metrics and logs of POST /convert.
const AdHocProfile = "convert"

const (
	yamlContentType = "text/yaml; charset=utf-8"
	maxRequestBody  = 16 << 20
)

// Upstream response headers copied onto a profile response.
var passthroughHeaders = []string{"Subscription-Userinfo", "Profile-Update-Interval", "Profile-Web-Page-Url", "Content-Disposition"}

// State is everything a config reload replaces.
type State struct {
	Profiles        *router.Table
	balancers       map[string]lb.Balancer
	Defaults        config.Knobs
	RateLimit       config.RateLimitConfig
	UpstreamTimeout time.Duration
	AccessLogConfig config.AccessLogConfig
	accessLog       *logrus.Logger
	// ServeMetrics exposes /metrics on the main listener.
	ServeMetrics bool
}

type Converter struct {
	stateMu sync.RWMutex
	state   *State

	Engine    *overwrite.Engine
	Fetcher   *fetch.Client
	Limiter   *ratelimit.Limiter
	Metrics   *metrics.Registry
	Log       logrus.FieldLogger
	AccessOut io.Writer
}

func NewConverter(c *config.Config, eng *overwrite.Engine, f *fetch.Client, m *metrics.Registry, log logrus.FieldLogger, accessOut io.Writer) *Converter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if accessOut == nil {
		accessOut = io.Discard
	}
	cv := &Converter{
		Engine:    eng,
		Fetcher:   f,
		Limiter:   ratelimit.NewLimiter(),
		Metrics:   m,
		Log:       log,
		AccessOut: accessOut,
	}
	cv.state = cv.newState(c)
	return cv
}

func (cv *Converter) newState(c *config.Config) *State {
	lbs := make(map[string]lb.Balancer, len(c.Profiles))
	for _, p := range c.Profiles {
		lbs[p.Name] = lb.NewSmoothWRR(p.Sources, lb.DefaultOptions())
	}
	return &State{
		Profiles:        router.New(c.Profiles),
		balancers:       lbs,
		Defaults:        c.Defaults,
		RateLimit:       c.RateLimit,
		UpstreamTimeout: c.Timeouts.Upstream,
		AccessLogConfig: c.AccessLog,
		accessLog:       NewAccessLogger(cv.AccessOut, c.AccessLog.Fields),
		ServeMetrics:    c.Metrics.Address == "",
	}
}

// UpdateState swaps in a reloaded config. Mirror health starts over.
func (cv *Converter) UpdateState(c *config.Config) {
	newState := cv.newState(c)
	cv.stateMu.Lock()
	cv.state = newState
	cv.stateMu.Unlock()
}

var _ http.Handler = (*Converter)(nil)

func (cv *Converter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cv.stateMu.RLock()
	state := cv.state
	cv.stateMu.RUnlock()

	start := time.Now()
	lw := &loggingResponseWriter{ResponseWriter: w}
	entry := AccessLog{
		Time:      start,
		Method:    r.Method,
		Path:      r.URL.Path,
		RemoteIP:  clientIP(r.RemoteAddr),
		UserAgent: r.UserAgent(),
	}
	defer func() {
		entry.Status = lw.statusCode
		if entry.Status == 0 {
			entry.Status = http.StatusOK
		}
		entry.Duration = time.Since(start).Milliseconds()
		entry.BytesWritten = lw.bytes
		if state.AccessLogConfig.Enabled {
			state.accessLog.WithTime(entry.Time).WithFields(entry.fields(state.AccessLogConfig.Fields)).Info("access")
		}
		if cv.Metrics != nil && entry.Profile != "" {
			cv.Metrics.IncConversion(entry.Profile, strconv.Itoa(entry.Status))
			cv.Metrics.ObserveConversion(entry.Profile, time.Since(start))
		}
	}()

	switch r.URL.Path {
	case PathHealth:
		lw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(lw, "ok\n")
		return
	case PathMetrics:
		if state.ServeMetrics && cv.Metrics != nil {
			lw.Header().Set("Content-Type", "text/plain; version=0.0.4")
			cv.Metrics.WritePrometheus(lw)
			return
		}
		http.NotFound(lw, r)
		return
	case PathConvert:
		entry.Profile = AdHocProfile
		if r.Method != http.MethodPost {
			lw.Header().Set("Allow", http.MethodPost)
			http.Error(lw, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		if !cv.allow(state, entry.RemoteIP) {
			http.Error(lw, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		cv.convertBody(lw, r, state, &entry)
		return
	}

	p := state.Profiles.Match(r.Host, r.URL.Path)
	if p == nil {
		http.NotFound(lw, r)
		return
	}
	entry.Profile = p.Name
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		lw.Header().Set("Allow", "GET, HEAD")
		http.Error(lw, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if !cv.allow(state, entry.RemoteIP) {
		http.Error(lw, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	cv.convertProfile(lw, r, state, p, &entry)
}

func (cv *Converter) allow(state *State, ip string) bool {
	if state.RateLimit.RequestsPerSecond <= 0 {
		return true
	}
	return cv.Limiter.Allow(ip, ratelimit.Config{
		RequestsPerSecond: state.RateLimit.RequestsPerSecond,
		Burst:             state.RateLimit.Burst,
	})
}

func (cv *Converter) convertBody(w http.ResponseWriter, r *http.Request, state *State, entry *AccessLog) {
	in, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	knobs := state.Defaults.Merge(queryArgs(r))
	out, res, err := cv.Engine.Convert(in, knobs.Options())
	if err != nil {
		cv.Log.WithError(err).WithField("remote_ip", entry.RemoteIP).Debug("rejecting document")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cv.writeYAML(w, r, out, res, entry)
}

func (cv *Converter) convertProfile(w http.ResponseWriter, r *http.Request, state *State, p *config.Profile, entry *AccessLog) {
	ctx := r.Context()
	if state.UpstreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, state.UpstreamTimeout)
		defer cancel()
	}
	fr, err := cv.Fetcher.Fetch(ctx, state.balancers[p.Name])
	if cv.Metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		cv.Metrics.IncFetch(p.Name, result)
	}
	if err != nil {
		cv.Log.WithError(err).WithField("profile", p.Name).Warn("all upstream sources failed")
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	entry.Source = fr.Source.Redacted()

	knobs := p.Knobs.Merge(queryArgs(r))
	out, res, err := cv.Engine.Convert(fr.Body, knobs.Options())
	if err != nil {
		// The upstream answered with something that is not a subscription.
		cv.Log.WithError(err).WithFields(logrus.Fields{"profile": p.Name, "source": entry.Source}).Warn("upstream document rejected")
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	for _, k := range passthroughHeaders {
		if v := fr.Header.Get(k); v != "" {
			w.Header().Set(k, v)
		}
	}
	cv.writeYAML(w, r, out, res, entry)
}

func (cv *Converter) writeYAML(w http.ResponseWriter, r *http.Request, out []byte, res overwrite.Result, entry *AccessLog) {
	entry.Proxies = res.Proxies
	entry.RegionGroups = res.RegionGroups
	if cv.Metrics != nil {
		cv.Metrics.SetRegionGroups(entry.Profile, res.RegionGroups)
	}
	w.Header().Set("Content-Type", yamlContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(out)
}

// queryArgs keeps only the knob arguments, first value wins.
func queryArgs(r *http.Request) map[string]string {
	q := r.URL.Query()
	args := make(map[string]string, 3)
	for _, k := range []string{config.ArgMinCount, config.ArgGroupType, config.ArgGroupOverride} {
		if vs, ok := q[k]; ok && len(vs) > 0 {
			args[k] = vs[0]
		}
	}
	return args
}

func clientIP(remoteAddr string) string {
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return ip
}
