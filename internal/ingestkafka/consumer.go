// Package ingestkafka adapts internal/ingest.Store to a Kafka front door:
// one message per TestRun, bearer-token authenticated, per-source
// rate-limited. Grounded on the teacher's cmd/ingester (a stub wiring
// segmentio/kafka-go as a declared but unused dependency) and
// internal/storage's bcrypt/rate-limit primitives, adapted to the message
// shape this spec actually ingests instead of an HTTP request shape.
package ingestkafka

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ventifact/ventifact/internal/ingest"
)

// headerAuthorization is the Kafka message header carrying the bearer
// token, mirroring the HTTP Authorization header convention the teacher
// uses for its API key middleware.
const headerAuthorization = "Authorization"

// ErrUnauthorized is returned when a message's bearer token does not match
// the configured shared token.
var ErrUnauthorized = errors.New("ingestkafka: unauthorized")

// ErrRateLimited is returned when a source exceeds its configured
// throughput. Run treats it as skippable: the message is committed and
// dropped, not redelivered.
var ErrRateLimited = errors.New("ingestkafka: rate limited")

// wireTestRun is the JSON envelope carried on the Kafka topic. Field names
// are the wire contract; internal/ingest.TestRun is the domain model these
// map onto.
type wireTestRun struct {
	Source    string       `json:"source"`
	ExtID     int64        `json:"ext_id"`
	Timestamp time.Time    `json:"timestamp"`
	Branch    string       `json:"branch,omitempty"`
	CommitID  string       `json:"commit_id"` // hex-encoded
	Results   []wireResult `json:"results"`
}

type wireResult struct {
	Title  string `json:"title"`
	Passed bool   `json:"passed"`
}

func (w wireTestRun) toDomain() (ingest.TestRun, error) {
	commitID, err := hex.DecodeString(w.CommitID)
	if err != nil {
		return ingest.TestRun{}, fmt.Errorf("%w: commit_id is not valid hex: %v", ingest.ErrExternalInput, err)
	}

	results := make([]ingest.TestResult, len(w.Results))
	for i, r := range w.Results {
		results[i] = ingest.TestResult{Title: r.Title, Passed: r.Passed}
	}

	return ingest.TestRun{
		ID:        ingest.RunID{Source: ingest.Source(w.Source), ExtID: w.ExtID},
		Timestamp: w.Timestamp,
		Branch:    w.Branch,
		CommitID:  commitID,
		Results:   results,
	}, nil
}

// Consumer reads TestRun events off a Kafka topic and ingests them through
// an ingest.Store.
type Consumer struct {
	reader  *kafka.Reader
	store   ingest.Store
	auth    *TokenAuthenticator
	limiter *SourceRateLimiter
	logger  *slog.Logger
}

// Config configures a Consumer.
type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	SharedToken string
	SourceRPS   int
}

// Option configures optional Consumer fields.
type Option func(*Consumer)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) { c.logger = logger }
}

// NewConsumer constructs a Consumer, hashing the shared token once and
// wiring up the reader and rate limiter.
func NewConsumer(cfg Config, store ingest.Store, opts ...Option) (*Consumer, error) {
	auth, err := NewTokenAuthenticator(cfg.SharedToken)
	if err != nil {
		return nil, fmt.Errorf("ingestkafka: configure authenticator: %w", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	c := &Consumer{
		reader:  reader,
		store:   store,
		auth:    auth,
		limiter: NewSourceRateLimiter(cfg.SourceRPS),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Close releases the reader and rate limiter.
func (c *Consumer) Close() error {
	c.limiter.Close()
	return c.reader.Close()
}

// Run consumes messages until ctx is cancelled or a fatal error occurs.
// Already-applied duplicates are a successful no-op insert and are committed
// like any other success. Messages that fail with a skippable error
// (malformed payloads, unauthorized, rate-limited, constraint violations —
// see isSkippable) are committed and skipped; any other error, such as a
// transient database error, leaves the message uncommitted so the consumer
// group redelivers it.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return fmt.Errorf("ingestkafka: fetch message: %w", err)
		}

		if err := c.handle(ctx, msg); err != nil {
			if isSkippable(err) {
				c.logger.WarnContext(ctx, "skipping message", slog.String("error", err.Error()))

				if commitErr := c.reader.CommitMessages(ctx, msg); commitErr != nil {
					return fmt.Errorf("ingestkafka: commit skipped message: %w", commitErr)
				}

				continue
			}

			c.logger.ErrorContext(ctx, "leaving message uncommitted for redelivery", slog.String("error", err.Error()))

			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("ingestkafka: commit message: %w", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	if token, ok := c.authenticate(msg); !ok {
		c.logger.WarnContext(ctx, "rejected message with invalid bearer token", slog.String("token", MaskToken(token)))

		return ErrUnauthorized
	}

	var wire wireTestRun
	if err := json.Unmarshal(msg.Value, &wire); err != nil {
		return fmt.Errorf("%w: %v", ingest.ErrExternalInput, err)
	}

	if !c.limiter.Allow(wire.Source) {
		return fmt.Errorf("%w: source %q", ErrRateLimited, wire.Source)
	}

	run, err := wire.toDomain()
	if err != nil {
		return err
	}

	if err := c.store.InsertTestRun(ctx, run); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "ingested test run",
		slog.String("source", wire.Source),
		slog.Int64("ext_id", wire.ExtID),
	)

	return nil
}

// authenticate returns the presented bearer token (for masked logging on
// rejection) and whether it matched the configured shared token.
func (c *Consumer) authenticate(msg kafka.Message) (string, bool) {
	for _, h := range msg.Headers {
		if h.Key == headerAuthorization {
			token := string(h.Value)
			return token, c.auth.Authenticate(token)
		}
	}

	return "", false
}

// isSkippable reports whether err represents a message that will never
// succeed on redelivery (bad input, bad auth, over quota) as opposed to a
// transient condition worth retrying.
func isSkippable(err error) bool {
	return errors.Is(err, ingest.ErrExternalInput) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ingest.ErrConstraintViolation)
}
