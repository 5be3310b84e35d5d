package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mark3labs/agitegen/internal/nats"
)

// Build outcomes.
const (
	OutcomeConverged    = "converged"
	OutcomeNotConverged = "not_converged"
	OutcomeFailed       = "failed"
)

// BuildInfo describes a build when it starts.
type BuildInfo struct {
	Project   string `json:"project"`
	Backend   string `json:"backend"`
	Framework string `json:"framework"`
	MaxPasses int    `json:"max_passes"`
}

// NewRunID returns an identifier for a build run. It is safe to use as a
// NATS subject token.
func NewRunID() string {
	return uuid.NewString()
}

// BuildStart records the start of a build run.
func (s *Store) BuildStart(ctx context.Context, run string, info BuildInfo) error {
	meta, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal build info: %w", err)
	}
	_, err = s.PublishEvent(ctx, Event{
		Run:    run,
		Type:   nats.EventTypeBuild,
		Action: "start",
		Meta:   meta,
		Data:   info.Project,
	})
	return err
}

// RecordPass records one convergence pass.
func (s *Store) RecordPass(ctx context.Context, run string, p Pass) error {
	meta, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal pass: %w", err)
	}
	_, err = s.PublishEvent(ctx, Event{
		Run:    run,
		Type:   nats.EventTypePass,
		Action: "record",
		Meta:   meta,
		Data:   fmt.Sprintf("pass %d", p.Number),
	})
	return err
}

// BuildFinish records how a build ended.
func (s *Store) BuildFinish(ctx context.Context, run, outcome string) error {
	_, err := s.PublishEvent(ctx, Event{
		Run:    run,
		Type:   nats.EventTypeBuild,
		Action: "finish",
		Meta:   json.RawMessage(`{}`),
		Data:   outcome,
	})
	return err
}
