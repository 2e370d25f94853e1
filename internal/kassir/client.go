// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package kassir is the client for the ticketing partner API: the city
// listing endpoint and the per-action availability endpoint.
package kassir

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/ManuGH/actionprobe/internal/domain/action"
	xglog "github.com/ManuGH/actionprobe/internal/log"
)

const (
	PathListActions  = "/json/get_all_actions_by_city"
	PathActionDetail = "/json/get_action_ext"

	OpListActions  = "list_actions"
	OpActionDetail = "action_detail"

	DefaultBaseURL = "https://api-alfa-test.kassir.ru"
	DefaultOrigin  = "https://alfa-test.kassir.ru"
	DefaultTimeout = 30 * time.Second

	maxBodyBytes    = 16 << 20
	maxErrorSnippet = 512
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Origin  string
	Referer string
	Timeout time.Duration

	// RequestsPerSecond caps outbound calls. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int

	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper
	Logger    *zerolog.Logger
}

// Client talks to the ticketing API over JSON POST requests.
type Client struct {
	base    string
	origin  string
	referer string
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// New validates opts and builds a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("kassir: invalid base URL %q", opts.BaseURL)
	}

	origin := opts.Origin
	if origin == "" {
		origin = DefaultOrigin
	}
	referer := opts.Referer
	if referer == "" {
		referer = strings.TrimRight(origin, "/") + "/"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(math.Max(1, math.Ceil(opts.RequestsPerSecond)))
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	logger := xglog.WithComponent("kassir")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Client{
		base:    base,
		origin:  origin,
		referer: referer,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		limiter: limiter,
		logger:  logger,
	}, nil
}

// BaseURL returns the normalised API base.
func (c *Client) BaseURL() string { return c.base }

// ListActions returns the actions of a city in upstream order.
func (c *Client) ListActions(ctx context.Context, apiKey, cityID string) ([]action.Action, error) {
	if err := action.ValidateID("city id", cityID); err != nil {
		return nil, fmt.Errorf("kassir: %s: %w", OpListActions, err)
	}

	var resp listResponse
	if err := c.post(ctx, OpListActions, PathListActions, listRequest{APIKey: apiKey, CityID: cityID}, &resp); err != nil {
		return nil, err
	}
	if msg := apiError(resp.Error); msg != "" {
		return nil, &RemoteError{Sentinel: ErrBadResponse, Op: OpListActions, HTTPStatus: http.StatusOK, Message: msg}
	}
	if resp.Decode == nil {
		return nil, &RemoteError{Sentinel: ErrBadResponse, Op: OpListActions, HTTPStatus: http.StatusOK, Message: "missing decode"}
	}

	out := make([]action.Action, 0, len(resp.Decode.Actions))
	for _, w := range resp.Decode.Actions {
		out = append(out, w.toAction(cityID))
	}

	c.logger.Info().
		Str(xglog.FieldEvent, "listing.fetched").
		Str(xglog.FieldCityID, cityID).
		Int("actions", len(out)).
		Msg("listing fetched")
	return out, nil
}

// GetActionDetail probes the availability of one action at one venue.
func (c *Client) GetActionDetail(ctx context.Context, apiKey, cityID, actionID, venueID string) (action.Detail, error) {
	for _, id := range [][2]string{{"city id", cityID}, {"action id", actionID}, {"venue id", venueID}} {
		if err := action.ValidateID(id[0], id[1]); err != nil {
			return action.Detail{}, fmt.Errorf("kassir: %s: %w", OpActionDetail, err)
		}
	}

	req := detailRequest{APIKey: apiKey, CityID: cityID, ActionID: actionID, VenueID: venueID}
	var resp detailResponse
	if err := c.post(ctx, OpActionDetail, PathActionDetail, req, &resp); err != nil {
		return action.Detail{}, err
	}
	if msg := apiError(resp.Error); msg != "" {
		return action.Detail{}, &RemoteError{Sentinel: ErrBadResponse, Op: OpActionDetail, HTTPStatus: http.StatusOK, Message: msg}
	}
	if resp.Decode == nil {
		return action.Detail{}, &RemoteError{Sentinel: ErrBadResponse, Op: OpActionDetail, HTTPStatus: http.StatusOK, Message: "missing decode"}
	}

	return action.Detail{
		ActionID:  actionID,
		Available: resp.Decode.Available,
		Raw:       resp.Decode.Action,
	}, nil
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &RemoteError{Sentinel: transportSentinel(ctx, err), Op: op, Message: "rate limiter", Err: err}
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("kassir: %s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("kassir: %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Origin", c.origin)
	req.Header.Set("Referer", c.referer)

	started := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		observe(op, 0, started)
		c.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "kassir.transport_error").
			Str(xglog.FieldOperation, op).
			Msg("ticketing API unreachable")
		return &RemoteError{Sentinel: transportSentinel(ctx, err), Op: op, Err: err}
	}
	defer func() { _ = res.Body.Close() }()
	observe(op, res.StatusCode, started)

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return &RemoteError{Sentinel: transportSentinel(ctx, err), Op: op, HTTPStatus: res.StatusCode, Err: err}
	}

	c.logger.Debug().
		Str(xglog.FieldEvent, "kassir.response").
		Str(xglog.FieldOperation, op).
		Int(xglog.FieldStatusCode, res.StatusCode).
		Dur("duration", time.Since(started)).
		Int("bytes", len(data)).
		Msg("ticketing API responded")

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &RemoteError{
			Sentinel:   sentinelForStatus(res.StatusCode),
			Op:         op,
			HTTPStatus: res.StatusCode,
			Message:    snippet(data),
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RemoteError{Sentinel: ErrBadResponse, Op: op, HTTPStatus: res.StatusCode, Err: err}
	}
	return nil
}

func transportSentinel(ctx context.Context, err error) error {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case errors.As(err, &ne) && ne.Timeout():
		return ErrTimeout
	default:
		return ErrUpstreamUnavailable
	}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorSnippet {
		s = s[:maxErrorSnippet] + "..."
	}
	return s
}
