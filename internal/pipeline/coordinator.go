package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	drepo "PatternPulse/internal/domain/repository"
	applogger "PatternPulse/pkg/logger"
)

// ErrUnknownStage reports a RunPartial bound naming an unregistered stage.
var ErrUnknownStage = errors.New("pipeline: unknown stage")

// StageResult captures one stage invocation.
type StageResult struct {
	Stage       string            `json:"stage"`
	Success     bool              `json:"success"`
	Output      any               `json:"-"`
	Error       string            `json:"error,omitempty"`
	Elapsed     time.Duration     `json:"elapsed"`
	Warnings    []string          `json:"warnings,omitempty"`
	SubFailures map[string]string `json:"sub_failures,omitempty"`
}

// Result is the outcome of a full or partial pipeline run.
type Result struct {
	Success     bool          `json:"success"`
	Output      any           `json:"-"`
	FailedStage string        `json:"failed_stage,omitempty"`
	Stages      []StageResult `json:"stages"`
}

// CoordinatorOption configures Coordinator.
type CoordinatorOption func(*Coordinator)

// WithContinueOnError makes the coordinator run every stage even after
// failures, feeding the last successful output forward. Meant for
// full-pipeline diagnostics, not production throughput.
func WithContinueOnError() CoordinatorOption {
	return func(c *Coordinator) { c.stopOnError = false }
}

// WithLogger sets the structured logger.
func WithLogger(l *applogger.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics sets the metrics recorder for stage durations.
func WithMetrics(m drepo.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// Coordinator sequences registered stages, threading each stage's output
// into the next stage's input. It holds stages behind the Stage interface
// and is unaware of concrete implementations.
type Coordinator struct {
	stages      []Stage
	index       map[string]int
	stopOnError bool
	logger      *applogger.Logger
	metrics     drepo.Metrics
}

// NewCoordinator creates an empty coordinator with stop-on-error policy.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		index:       make(map[string]int),
		stopOnError: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register appends a stage. Re-registering a name replaces the earlier
// stage in place (hot-swap), keeping its position in the order.
func (c *Coordinator) Register(s Stage) {
	if i, ok := c.index[s.Name()]; ok {
		c.stages[i] = s
		return
	}
	c.index[s.Name()] = len(c.stages)
	c.stages = append(c.stages, s)
}

// StageNames returns registered stage names in execution order.
func (c *Coordinator) StageNames() []string {
	names := make([]string, 0, len(c.stages))
	for _, s := range c.stages {
		names = append(names, s.Name())
	}
	return names
}

// Run executes every registered stage in order. An empty stage list passes
// input through unchanged with success. A failing stage never skips
// bookkeeping: elapsed time and the captured error land in the run context
// regardless of the outcome.
func (c *Coordinator) Run(ctx context.Context, input any, pc *Context) *Result {
	return c.runRange(ctx, input, pc, 0, len(c.stages))
}

// RunPartial executes the contiguous sub-range of stages from start to end
// (inclusive, by name). Empty bounds default to the first/last stage. An
// unknown stage name is a configuration error.
func (c *Coordinator) RunPartial(ctx context.Context, input any, pc *Context, start, end string) (*Result, error) {
	lo, hi := 0, len(c.stages)
	if start != "" {
		i, ok := c.index[start]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStage, start)
		}
		lo = i
	}
	if end != "" {
		i, ok := c.index[end]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStage, end)
		}
		hi = i + 1
	}
	if lo >= hi {
		return nil, fmt.Errorf("%w: start %q is after end %q", ErrUnknownStage, start, end)
	}
	return c.runRange(ctx, input, pc, lo, hi), nil
}

func (c *Coordinator) runRange(ctx context.Context, input any, pc *Context, lo, hi int) *Result {
	res := &Result{Success: true, Output: input}

	current := input
	for _, s := range c.stages[lo:hi] {
		sr := c.invoke(ctx, s, current, pc)
		res.Stages = append(res.Stages, sr)

		if sr.Success {
			current = sr.Output
			res.Output = current
			continue
		}

		res.Success = false
		if res.FailedStage == "" {
			res.FailedStage = sr.Stage
		}
		if c.stopOnError {
			break
		}
		// continue-on-error: the last successful output keeps flowing
	}
	return res
}

// invoke wraps one stage call: timing into the context always, failure
// captured into the result, panics converted into stage errors.
func (c *Coordinator) invoke(ctx context.Context, s Stage, input any, pc *Context) StageResult {
	start := time.Now()
	out, err := c.execute(ctx, s, input, pc)
	elapsed := time.Since(start)

	pc.RecordTiming(s.Name(), elapsed)
	if c.metrics != nil {
		c.metrics.RecordStageDuration(s.Name(), elapsed.Seconds())
	}

	sr := StageResult{
		Stage:       s.Name(),
		Elapsed:     elapsed,
		Warnings:    pc.stageWarnings(s.Name()),
		SubFailures: pc.stageSubFailures(s.Name()),
	}
	if err != nil {
		sr.Error = err.Error()
		pc.AddError(s.Name(), err.Error())
		if c.logger != nil {
			c.logger.Warn("stage failed",
				applogger.String("stage", s.Name()),
				applogger.String("symbol", pc.Symbol),
				applogger.String("correlation_id", pc.CorrelationID),
				applogger.Error(err))
		}
		return sr
	}
	sr.Success = true
	sr.Output = out
	return sr
}

func (c *Coordinator) execute(ctx context.Context, s Stage, input any, pc *Context) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panic: %v", s.Name(), r)
		}
	}()
	return s.Execute(ctx, input, pc)
}
