// Package orchestrator runs the convergence loop: check requirements, run
// the local tests, and hand whatever is still wrong to the editor until the
// project is green or the pass limit is reached.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mark3labs/agitegen/internal/agent"
	"github.com/mark3labs/agitegen/internal/config"
	"github.com/mark3labs/agitegen/internal/console"
	ierr "github.com/mark3labs/agitegen/internal/errors"
	"github.com/mark3labs/agitegen/internal/hooks"
	"github.com/mark3labs/agitegen/internal/logger"
	"github.com/mark3labs/agitegen/internal/nats"
	"github.com/mark3labs/agitegen/internal/requirements"
	"github.com/mark3labs/agitegen/internal/session"
	"github.com/mark3labs/agitegen/internal/template"
	"github.com/mark3labs/agitegen/internal/testrun"
)

// ErrNotConverged is returned when the last pass ends with unmet
// requirements or failing tests.
var ErrNotConverged = errors.New("project did not converge within the pass limit")

const (
	// DefaultMaxPasses bounds the loop when Config.MaxPasses is unset.
	DefaultMaxPasses = 5
	// tailLines of the failing test log go into the editor payload.
	tailLines = 100
	// docChunks from the docs store go into the editor payload.
	docChunks = 3
)

// Checker computes the unmet requirement symbols.
type Checker interface {
	Unmet(ctx context.Context, root string, reqs []requirements.Requirement) ([]string, error)
}

// Tester runs the local test sequence.
type Tester interface {
	Run(ctx context.Context, root, framework string) (testrun.Outcome, error)
}

// Editor applies one edit instruction with the given model.
type Editor interface {
	Edit(ctx context.Context, model, message string) error
}

// Recorder persists build history.
type Recorder interface {
	BuildStart(ctx context.Context, run string, info session.BuildInfo) error
	RecordPass(ctx context.Context, run string, p session.Pass) error
	BuildFinish(ctx context.Context, run, outcome string) error
}

// DocsFunc returns up to n stored doc chunks for root.
type DocsFunc func(root string, n int) ([]string, error)

// Config holds configuration for the orchestrator.
type Config struct {
	Root          string // project root
	Backend       string // supabase, firebase or none
	Framework     string // test runner tag
	MaxPasses     int
	PlanningModel string // model for the first edit
	DebugModel    string // model for later edits
	DataDir       string // relative to Root unless absolute

	Checker Checker
	Tester  Tester
	Editor  Editor
	Docs    DocsFunc      // optional
	Hooks   *hooks.Config // optional
	HookRun *hooks.Executor

	// History opens the embedded event store in DataDir/nats when Recorder
	// is nil. Watch records changed files per pass.
	History  bool
	Recorder Recorder
	Watch    bool
	Console  *console.Console
}

// Payload is the JSON message handed to the editor.
type Payload struct {
	Unmet            []string `json:"unmet,omitempty"`
	FailingTestsTail string   `json:"failing_tests_tail,omitempty"`
	Docs             []string `json:"docs,omitempty"`
	Hooks            string   `json:"hooks,omitempty"`
}

// Result summarises a finished loop.
type Result struct {
	RunID     string
	Passes    int // passes started
	Edits     int // editor invocations
	Converged bool
}

// Orchestrator manages the convergence loop and the resources it owns.
type Orchestrator struct {
	cfg      Config
	out      *console.Console
	reqs     []requirements.Requirement
	runID    string
	events   *nats.Embedded
	recorder Recorder
	watcher  *agent.Watcher
	stopped  bool
}

// New creates a new Orchestrator with the given configuration.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Checker == nil || cfg.Tester == nil || cfg.Editor == nil {
		return nil, errors.New("orchestrator needs a checker, a tester and an editor")
	}
	if cfg.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		cfg.Root = wd
	}
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = DefaultMaxPasses
	}
	if cfg.DataDir == "" {
		cfg.DataDir = config.Defaults().DataDir
	}
	if !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(cfg.Root, cfg.DataDir)
	}
	if cfg.Backend == "" {
		cfg.Backend = config.BackendNone
	}
	if cfg.Console == nil {
		cfg.Console = console.Default
	}

	return &Orchestrator{
		cfg:      cfg,
		out:      cfg.Console,
		runID:    session.NewRunID(),
		recorder: cfg.Recorder,
	}, nil
}

// Start loads the requirements and opens the event store and watcher.
// Neither the store nor the watcher is required; failures only warn.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.reqs = requirements.Load(o.cfg.Root)
	logger.Info("Starting build %s in %s with %d requirements", o.runID, o.cfg.Root, len(o.reqs))

	if o.recorder == nil && o.cfg.History {
		dir := filepath.Join(o.cfg.DataDir, "nats")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create event store directory: %w", err)
		}
		events, err := nats.Open(ctx, dir)
		if err != nil {
			logger.Warn("Build history disabled: %v", err)
			o.out.Warn("Build history disabled: %v", err)
		} else {
			o.events = events
			o.recorder = session.NewStore(events.JS, events.Stream)
		}
	}

	if o.cfg.Watch {
		rel, _ := filepath.Rel(o.cfg.Root, o.cfg.DataDir)
		w, err := agent.NewWatcher(o.cfg.Root, filepath.ToSlash(rel), "embeddings")
		if err == nil {
			err = w.Start()
		}
		if err != nil {
			logger.Warn("Changed-file tracking disabled: %v", err)
		} else {
			o.watcher = w
		}
	}

	o.record(func() error {
		return o.recorder.BuildStart(ctx, o.runID, session.BuildInfo{
			Project:   filepath.Base(o.cfg.Root),
			Backend:   o.cfg.Backend,
			Framework: o.cfg.Framework,
			MaxPasses: o.cfg.MaxPasses,
		})
	})
	return nil
}

// Run executes up to MaxPasses passes. It returns ErrNotConverged when the
// limit is reached without a green pass.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: o.runID}

	for pass := 1; pass <= o.cfg.MaxPasses; pass++ {
		res.Passes = pass
		o.out.Step("Pass %d/%d", pass, o.cfg.MaxPasses)
		start := time.Now()

		// The editor may rewrite requirements.md, so it is re-read every pass.
		o.reqs = requirements.Load(o.cfg.Root)
		unmet, err := o.cfg.Checker.Unmet(ctx, o.cfg.Root, o.reqs)
		if err != nil {
			o.finish(ctx, session.OutcomeFailed)
			return res, fmt.Errorf("pass %d: checking requirements: %w", pass, err)
		}
		outcome, err := o.cfg.Tester.Run(ctx, o.cfg.Root, o.cfg.Framework)
		if err != nil {
			o.finish(ctx, session.OutcomeFailed)
			return res, fmt.Errorf("pass %d: running tests: %w", pass, err)
		}
		logger.Info("Pass %d: %d unmet, tests ok=%v", pass, len(unmet), outcome.Success)

		if len(unmet) == 0 && outcome.Success {
			o.recordPass(ctx, session.Pass{Number: pass, TestsOK: true, Duration: time.Since(start)})
			o.finish(ctx, session.OutcomeConverged)
			o.out.Success("All requirements met and tests passing after %d pass(es)", pass)
			res.Converged = true
			return res, nil
		}

		if len(unmet) > 0 {
			o.out.Warn("%d unmet requirement(s): %v", len(unmet), unmet)
		}

		payload, err := o.payload(ctx, pass, unmet, outcome)
		if err != nil {
			o.finish(ctx, session.OutcomeFailed)
			return res, err
		}
		message, err := json.Marshal(payload)
		if err != nil {
			o.finish(ctx, session.OutcomeFailed)
			return res, fmt.Errorf("encoding payload: %w", err)
		}

		model := o.cfg.DebugModel
		if pass == 1 {
			model = o.cfg.PlanningModel
		}
		o.drain()

		o.out.Step("Editing with %s", model)
		err = ierr.Recover(func() error {
			return o.cfg.Editor.Edit(ctx, model, string(message))
		})
		res.Edits++
		if err != nil {
			var panicErr *ierr.PanicError
			if errors.As(err, &panicErr) {
				logger.Error("Pass %d editor panicked: %s", pass, panicErr.StackTrace)
			}
			o.finish(ctx, session.OutcomeFailed)
			return res, fmt.Errorf("pass %d: %w", pass, err)
		}

		if err := o.postPass(ctx, pass); err != nil {
			o.finish(ctx, session.OutcomeFailed)
			return res, err
		}

		o.recordPass(ctx, session.Pass{
			Number:   pass,
			Model:    model,
			Unmet:    unmet,
			TestsOK:  outcome.Success,
			Edited:   true,
			Changed:  o.drain(),
			Duration: time.Since(start),
		})
	}

	o.finish(ctx, session.OutcomeNotConverged)
	o.out.Error("Still not green after %d passes", o.cfg.MaxPasses)
	return res, ErrNotConverged
}

// Stop releases the watcher and event store. Multiple calls are safe.
func (o *Orchestrator) Stop() error {
	if o.stopped {
		return nil
	}
	o.stopped = true

	multiErr := &ierr.MultiError{}
	if o.watcher != nil {
		multiErr.Append(o.watcher.Close())
	}
	if o.events != nil {
		if err := o.events.Close(); err != nil {
			multiErr.Append(fmt.Errorf("event store shutdown failed: %w", err))
		}
	}
	logger.Info("Build %s stopped", o.runID)
	return multiErr.ErrorOrNil()
}

// RunID identifies this build in the history.
func (o *Orchestrator) RunID() string { return o.runID }

// payload assembles the editor message for a failing pass and writes the
// full test log for later inspection.
func (o *Orchestrator) payload(ctx context.Context, pass int, unmet []string, outcome testrun.Outcome) (Payload, error) {
	p := Payload{Unmet: unmet}

	if !outcome.Success {
		p.FailingTestsTail = testrun.Tail(outcome.Log, tailLines)
		if path, err := o.writeLog(pass, outcome.Log); err != nil {
			logger.Warn("Could not write test log: %v", err)
		} else {
			o.out.Muted("Full test log: %s", path)
		}
	}

	if o.cfg.Backend != config.BackendNone && o.cfg.Docs != nil {
		chunks, err := o.cfg.Docs(o.cfg.Root, docChunks)
		if err != nil {
			logger.Warn("Could not read docs store: %v", err)
		}
		p.Docs = chunks
	}

	if o.cfg.Hooks != nil && o.cfg.HookRun != nil && len(o.cfg.Hooks.Hooks.PrePass) > 0 {
		out, err := o.cfg.HookRun.ExecuteAllPiped(ctx, o.cfg.Hooks.Hooks.PrePass, o.vars(pass))
		if err != nil {
			return p, fmt.Errorf("pass %d: pre-pass hooks: %w", pass, err)
		}
		p.Hooks = out
	}
	return p, nil
}

func (o *Orchestrator) postPass(ctx context.Context, pass int) error {
	if o.cfg.Hooks == nil || o.cfg.HookRun == nil || len(o.cfg.Hooks.Hooks.PostPass) == 0 {
		return nil
	}
	out, err := o.cfg.HookRun.ExecuteAll(ctx, o.cfg.Hooks.Hooks.PostPass, o.vars(pass))
	if err != nil {
		return fmt.Errorf("pass %d: post-pass hooks: %w", pass, err)
	}
	logger.Debug("Post-pass hook output: %s", out)
	return nil
}

func (o *Orchestrator) vars(pass int) template.Variables {
	return template.Variables{
		Project: filepath.Base(o.cfg.Root),
		Backend: o.cfg.Backend,
		Pass:    strconv.Itoa(pass),
		Root:    o.cfg.Root,
	}
}

// LogPath returns where the failing test log of a pass is written.
func (o *Orchestrator) LogPath(pass int) string {
	return filepath.Join(o.cfg.DataDir, "logs", fmt.Sprintf("pass-%d.log", pass))
}

func (o *Orchestrator) writeLog(pass int, log string) (string, error) {
	path := o.LogPath(pass)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte(log+"\n"), 0644)
}

func (o *Orchestrator) drain() []string {
	if o.watcher == nil {
		return nil
	}
	return o.watcher.Drain()
}

func (o *Orchestrator) recordPass(ctx context.Context, p session.Pass) {
	o.record(func() error { return o.recorder.RecordPass(ctx, o.runID, p) })
}

func (o *Orchestrator) finish(ctx context.Context, outcome string) {
	o.record(func() error { return o.recorder.BuildFinish(ctx, o.runID, outcome) })
}

// record runs fn against the recorder; history is best-effort.
func (o *Orchestrator) record(fn func() error) {
	if o.recorder == nil {
		return
	}
	if err := fn(); err != nil {
		logger.Warn("Build history: %v", err)
	}
}
