// Package fetch downloads upstream subscription documents from a set of
// weighted mirrors.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fabian4/overwrite-homebrew-go/internal/lb"
)

// ErrNoSource is returned when every mirror failed or is cooling down.
var ErrNoSource = errors.New("no upstream source available")

// Options tunes the shared transport.
type Options struct {
	// Dial/keepalive
	DialTimeout   time.Duration
	DialKeepAlive time.Duration

	// Pool sizing
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// Timeouts
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration // 0 to disable

	// Per-attempt deadline on top of the caller's context. 0 to disable.
	AttemptTimeout time.Duration

	MaxBodyBytes int64
	UserAgent    string

	InsecureSkipVerify bool
}

// DefaultOptions asks for the mihomo flavour of a subscription.
func DefaultOptions() Options {
	return Options{
		DialTimeout:           5 * time.Second,
		DialKeepAlive:         60 * time.Second,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		MaxBodyBytes:          16 << 20,
		UserAgent:             "clash.meta",
	}
}

// StatusError reports a non-2xx upstream answer.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.Code)
}

type Client struct {
	tr   *http.Transport
	opts Options
	log  logrus.FieldLogger
}

func NewClient(opts Options, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultOptions().MaxBodyBytes
	}
	dialer := &net.Dialer{
		Timeout:   opts.DialTimeout,
		KeepAlive: opts.DialKeepAlive,
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
		MaxIdleConns:          opts.MaxIdleConns,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       opts.IdleConnTimeout,
		TLSHandshakeTimeout:   opts.TLSHandshakeTimeout,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
	}
	return &Client{tr: tr, opts: opts, log: log}
}

// Result describes a successful fetch.
type Result struct {
	Body     []byte
	Header   http.Header
	Source   *url.URL
	Attempts int
}

// Fetch tries mirrors in balancer order until one answers with a 2xx status.
// Every healthy mirror is tried at most once per call.
func (c *Client) Fetch(ctx context.Context, b lb.Balancer) (Result, error) {
	var errs []error
	for i, ep := range b.Plan() {
		u := ep.URL()
		body, hdr, err := c.get(ctx, u)
		ep.Feedback(err == nil)
		if err == nil {
			return Result{Body: body, Header: hdr, Source: u, Attempts: i + 1}, nil
		}
		c.log.WithFields(logrus.Fields{"source": u.Redacted(), "attempt": i + 1}).
			WithError(err).Warn("upstream fetch failed")
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return Result{}, ErrNoSource
	}
	return Result{}, fmt.Errorf("%w: %w", ErrNoSource, errors.Join(errs...))
}

func (c *Client) get(ctx context.Context, u *url.URL) ([]byte, http.Header, error) {
	if c.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.AttemptTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	res, err := c.tr.RoundTrip(req)
	if err != nil {
		return nil, nil, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.WithError(err).Debug("closing upstream body")
		}
	}(res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, nil, &StatusError{URL: u.Redacted(), Code: res.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, c.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", u.Redacted(), err)
	}
	if int64(len(body)) > c.opts.MaxBodyBytes {
		return nil, nil, fmt.Errorf("%s: body exceeds %d bytes", u.Redacted(), c.opts.MaxBodyBytes)
	}
	return body, res.Header, nil
}

// CloseIdle drops pooled connections, used after a config reload.
func (c *Client) CloseIdle() {
	c.tr.CloseIdleConnections()
}
