package quota

import (
	"context"

	"github.com/mark3labs/agitegen/internal/logger"
)

// Meter measures OpenRouter credit spent between Start and Finish.
type Meter struct {
	guard *Guard
	start Usage
	ok    bool
}

// StartMeter snapshots the available credit. A failed snapshot only
// disables the report.
func (g *Guard) StartMeter(ctx context.Context) *Meter {
	m := &Meter{guard: g}
	if g.apiKey == "" {
		return m
	}
	u, err := g.Usage(ctx)
	if err != nil {
		logger.Warn("quota: cost meter disabled: %v", err)
		return m
	}
	m.start, m.ok = u, true
	return m
}

// Finish returns the credit spent since StartMeter. ok is false when either
// snapshot failed.
func (m *Meter) Finish(ctx context.Context) (spent float64, ok bool) {
	if !m.ok {
		return 0, false
	}
	end, err := m.guard.Usage(ctx)
	if err != nil {
		logger.Warn("quota: cost meter: %v", err)
		return 0, false
	}
	return m.start.Available - end.Available, true
}
