// Package source implements C3, the upstream killmail source: an adaptive
// long-poll consumer of zKillboard's RedisQ feed. Grounded on the teacher's
// internal/zkillboard/services/redisq_consumer.go (adaptive time-to-wait
// long poll) and internal/zkillboard/dto/redisq.go (wire shapes) — the
// upstream protocol is unchanged, only the destination of a pulled
// killmail differs (a typed Event returned to the ingestion loop, not a
// direct Mongo write).
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	killmodels "skirmish/internal/killmail/models"
	"skirmish/pkg/config"
)

// tracedTransport wraps the default transport with otelhttp instrumentation
// when telemetry is enabled, matching pkg/esigateway's same gate.
func tracedTransport() http.RoundTripper {
	if !config.GetBoolEnv("ENABLE_TELEMETRY", true) {
		return http.DefaultTransport
	}
	return otelhttp.NewTransport(http.DefaultTransport)
}

// KillmailSource is the capability interface C4's ingestion loop programs
// against. Pull blocks for at most the source's configured long-poll
// window and returns (nil, nil) when no killmail was waiting.
type KillmailSource interface {
	Pull(ctx context.Context) (*killmodels.Event, error)
}

// Config configures a RedisQSource.
type Config struct {
	Endpoint      string
	QueueID       string
	UserAgent     string
	TTWMin        int // seconds, lower bound of adaptive wait
	TTWMax        int // seconds, upper bound after NullThreshold consecutive empties
	NullThreshold int
	HTTPTimeout   time.Duration
}

// DefaultConfig mirrors the teacher's RedisQ defaults.
func DefaultConfig() Config {
	return Config{
		Endpoint:      "https://zkillredisq.stream/listen.php",
		UserAgent:     "skirmish/1.0",
		TTWMin:        1,
		TTWMax:        10,
		NullThreshold: 5,
		HTTPTimeout:   30 * time.Second,
	}
}

// RedisQSource polls zKillboard's RedisQ long-poll endpoint.
type RedisQSource struct {
	httpClient *http.Client
	cfg        Config

	mu         sync.Mutex
	nullStreak int
	ttw        int
	lastPoll   time.Time

	// Metrics, grounded on the teacher's RedisQConsumer.ConsumerMetrics
	// (atomic.Int64 counters read directly by a status endpoint, no
	// Prometheus indirection needed for point-in-time values like these).
	totalPolls     atomic.Int64
	nullResponses  atomic.Int64
	killmailsFound atomic.Int64
	httpErrors     atomic.Int64
	decodeErrors   atomic.Int64
	lastEventID    atomic.Int64
}

// Status is a point-in-time snapshot of the consumer, grounded on the
// teacher's dto.ServiceStatusResponse/ServiceMetrics returned by
// RedisQConsumer.GetStatus.
type Status struct {
	QueueID        string     `json:"queue_id"`
	Endpoint       string     `json:"endpoint"`
	CurrentTTW     int        `json:"current_ttw"`
	TTWMin         int        `json:"ttw_min"`
	TTWMax         int        `json:"ttw_max"`
	NullThreshold  int        `json:"null_threshold"`
	NullStreak     int        `json:"null_streak"`
	LastPoll       *time.Time `json:"last_poll,omitempty"`
	LastEventID    *int64     `json:"last_event_id,omitempty"`
	TotalPolls     int64      `json:"total_polls"`
	NullResponses  int64      `json:"null_responses"`
	KillmailsFound int64      `json:"killmails_found"`
	HTTPErrors     int64      `json:"http_errors"`
	DecodeErrors   int64      `json:"decode_errors"`
}

// Status returns the consumer's current state for the operator-facing
// /ingestion/status endpoint.
func (s *RedisQSource) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		QueueID:        s.cfg.QueueID,
		Endpoint:       s.cfg.Endpoint,
		CurrentTTW:     s.ttw,
		TTWMin:         s.cfg.TTWMin,
		TTWMax:         s.cfg.TTWMax,
		NullThreshold:  s.cfg.NullThreshold,
		NullStreak:     s.nullStreak,
		TotalPolls:     s.totalPolls.Load(),
		NullResponses:  s.nullResponses.Load(),
		KillmailsFound: s.killmailsFound.Load(),
		HTTPErrors:     s.httpErrors.Load(),
		DecodeErrors:   s.decodeErrors.Load(),
	}
	if !s.lastPoll.IsZero() {
		lp := s.lastPoll
		st.LastPoll = &lp
	}
	if id := s.lastEventID.Load(); id != 0 {
		st.LastEventID = &id
	}
	return st
}

// NewRedisQSource builds a source. If cfg.QueueID is empty one is derived
// from the hostname and process start time, matching the teacher's
// per-instance queue sharding convention.
func NewRedisQSource(cfg Config) *RedisQSource {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultConfig().Endpoint
	}
	if cfg.TTWMin <= 0 {
		cfg.TTWMin = DefaultConfig().TTWMin
	}
	if cfg.TTWMax <= 0 {
		cfg.TTWMax = DefaultConfig().TTWMax
	}
	if cfg.NullThreshold <= 0 {
		cfg.NullThreshold = DefaultConfig().NullThreshold
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultConfig().HTTPTimeout
	}
	if cfg.QueueID == "" {
		hostname, _ := os.Hostname()
		cfg.QueueID = fmt.Sprintf("skirmish-%s-%d", hostname, time.Now().UnixNano())
	}

	return &RedisQSource{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout, Transport: tracedTransport()},
		cfg:        cfg,
		ttw:        cfg.TTWMin,
	}
}

// Pull performs one long-poll request. A nil package (no killmail waiting)
// returns (nil, nil); the caller is expected to call Pull again
// immediately, the adaptive wait is what throttles the actual request
// rate.
func (s *RedisQSource) Pull(ctx context.Context) (*killmodels.Event, error) {
	ttw := s.currentTTW()
	url := fmt.Sprintf("%s?queueID=%s&ttw=%d", s.cfg.Endpoint, s.cfg.QueueID, ttw)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	s.totalPolls.Add(1)
	s.mu.Lock()
	s.lastPoll = time.Now()
	s.mu.Unlock()

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.httpErrors.Add(1)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.httpErrors.Add(1)
		return nil, &UpstreamHttpError{Status: resp.StatusCode}
	}

	var envelope redisQResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		s.decodeErrors.Add(1)
		return nil, &DecodeError{Err: err}
	}

	if envelope.Package == nil {
		s.recordNull()
		s.nullResponses.Add(1)
		return nil, nil
	}

	event, err := parseEvent(envelope.Package)
	if err != nil {
		return nil, err
	}

	s.recordHit()
	s.killmailsFound.Add(1)
	s.lastEventID.Store(event.EventID)
	return &event, nil
}

func (s *RedisQSource) currentTTW() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttw
}

func (s *RedisQSource) recordNull() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nullStreak++
	if s.nullStreak >= s.cfg.NullThreshold {
		s.ttw = s.cfg.TTWMax
	}
}

func (s *RedisQSource) recordHit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nullStreak = 0
	s.ttw = s.cfg.TTWMin
}
