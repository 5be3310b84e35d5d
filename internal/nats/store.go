package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName    = "agitegen_events"
	subjectPrefix = "agitegen"

	// Event types
	EventTypeBuild = "build"
	EventTypePass  = "pass"
)

// SubjectForRun returns the wildcard subject for all events of a build run.
// Example: "agitegen.<run>.>"
func SubjectForRun(run string) string {
	return fmt.Sprintf("%s.%s.>", subjectPrefix, run)
}

// SubjectForEvent returns the subject for one event type of a build run.
// Example: "agitegen.<run>.pass"
func SubjectForEvent(run, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, run, eventType)
}

// AllSubjects matches every event of every run.
const AllSubjects = subjectPrefix + ".>"

// SetupStream creates or updates the stream holding build events, with
// 30-day retention.
func SetupStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	return js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{AllSubjects},
		Storage:  jetstream.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
}
