// Package session records build runs and their convergence passes as an
// append-only JetStream event log, and rebuilds history from it.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/mark3labs/agitegen/internal/logger"
	"github.com/mark3labs/agitegen/internal/nats"
)

// Event represents a generic event stored in the JetStream event log.
type Event struct {
	ID        string          `json:"id"`        // NATS message sequence ID
	Timestamp time.Time       `json:"timestamp"` // When the event occurred
	Run       string          `json:"run"`       // Build run ID
	Type      string          `json:"type"`      // Event type: build, pass
	Action    string          `json:"action"`    // start, record, finish
	Meta      json.RawMessage `json:"meta"`      // Action-specific metadata
	Data      string          `json:"data"`      // Primary content
}

// Store manages build history through JetStream event sourcing.
type Store struct {
	js     jetstream.JetStream
	stream jetstream.Stream
}

// NewStore creates a new Store instance with the given JetStream context and stream.
func NewStore(js jetstream.JetStream, stream jetstream.Stream) *Store {
	return &Store{
		js:     js,
		stream: stream,
	}
}

// PublishEvent appends an event to the log under agitegen.{run}.{type}.
func (s *Store) PublishEvent(ctx context.Context, event Event) (*jetstream.PubAck, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := nats.SubjectForEvent(event.Run, event.Type)
	logger.Debug("Publishing event: run=%s type=%s action=%s", event.Run, event.Type, event.Action)

	ack, err := s.js.Publish(ctx, subject, data)
	if err != nil {
		logger.Error("Failed to publish event to subject %s: %v", subject, err)
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}
	return ack, nil
}

// Build is a build run reconstructed from its events.
type Build struct {
	Run       string    `json:"run"`
	Project   string    `json:"project"`
	Backend   string    `json:"backend"`
	Framework string    `json:"framework"`
	MaxPasses int       `json:"max_passes"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Outcome   string    `json:"outcome"` // "" while running
	Passes    []*Pass   `json:"passes"`
}

// Pass is one convergence pass of a build.
type Pass struct {
	Number    int           `json:"number"`
	Model     string        `json:"model,omitempty"`
	Unmet     []string      `json:"unmet,omitempty"`
	TestsOK   bool          `json:"tests_ok"`
	Edited    bool          `json:"edited"`
	Changed   []string      `json:"changed,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Apply applies an event to the build.
func (b *Build) Apply(event Event) {
	switch event.Type {
	case nats.EventTypeBuild:
		b.applyBuildEvent(event)
	case nats.EventTypePass:
		b.applyPassEvent(event)
	}
}

func (b *Build) applyBuildEvent(event Event) {
	switch event.Action {
	case "start":
		var meta BuildInfo
		if err := json.Unmarshal(event.Meta, &meta); err != nil {
			logger.Warn("Malformed build start event %s: %v", event.ID, err)
		}
		b.Project = meta.Project
		b.Backend = meta.Backend
		b.Framework = meta.Framework
		b.MaxPasses = meta.MaxPasses
		b.StartedAt = event.Timestamp

	case "finish":
		b.Outcome = event.Data
		b.EndedAt = event.Timestamp
	}
}

func (b *Build) applyPassEvent(event Event) {
	if event.Action != "record" {
		return
	}
	var p Pass
	if err := json.Unmarshal(event.Meta, &p); err != nil {
		logger.Warn("Malformed pass event %s: %v", event.ID, err)
		return
	}
	p.Timestamp = event.Timestamp
	b.Passes = append(b.Passes, &p)
}

// LoadBuild reconstructs one build run from its events. A run with no
// events yields a Build with only Run set.
func (s *Store) LoadBuild(ctx context.Context, run string) (*Build, error) {
	builds, err := s.replay(ctx, nats.SubjectForRun(run))
	if err != nil {
		return nil, err
	}
	if b, ok := builds[run]; ok {
		return b, nil
	}
	return &Build{Run: run}, nil
}

// ListBuilds returns up to limit builds, most recent first. limit <= 0
// means all.
func (s *Store) ListBuilds(ctx context.Context, limit int) ([]*Build, error) {
	builds, err := s.replay(ctx, nats.AllSubjects)
	if err != nil {
		return nil, err
	}

	list := make([]*Build, 0, len(builds))
	for _, b := range builds {
		list = append(list, b)
	}
	slices.SortFunc(list, func(a, b *Build) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// replay reads every event matching subject and reduces them per run.
func (s *Store) replay(ctx context.Context, subject string) (map[string]*Build, error) {
	consumer, err := s.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: subject,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	builds := map[string]*Build{}
	const batchSize = 1000
	malformed := 0
	for {
		msgs, err := consumer.FetchNoWait(batchSize)
		if err != nil {
			break
		}

		count := 0
		for msg := range msgs.Messages() {
			count++
			var event Event
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				malformed++
				_ = msg.Ack()
				continue
			}
			if event.ID == "" {
				if meta, err := msg.Metadata(); err == nil {
					event.ID = fmt.Sprintf("%d", meta.Sequence.Stream)
				}
			}

			b, ok := builds[event.Run]
			if !ok {
				b = &Build{Run: event.Run}
				builds[event.Run] = b
			}
			b.Apply(event)
			_ = msg.Ack()
		}
		if count < batchSize {
			break
		}
	}

	if malformed > 0 {
		logger.Warn("Skipped %d malformed events while loading history", malformed)
	}
	return builds, nil
}
