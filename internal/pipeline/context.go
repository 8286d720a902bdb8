package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// StageError is one captured per-stage failure.
type StageError struct {
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// StageTiming records elapsed wall time of one stage invocation.
type StageTiming struct {
	Stage   string        `json:"stage"`
	Elapsed time.Duration `json:"elapsed"`
}

type metaEntry struct {
	key   string
	value any
}

// Context carries per-run state through every stage. It is owned exclusively
// by one run and must not be shared across runs. Error and timing lists are
// append-only for the run's duration.
type Context struct {
	CorrelationID string
	Symbol        string
	Timeframe     string

	meta        []metaEntry
	metaIdx     map[string]int
	errors      []StageError
	timings     []StageTiming
	warnings    map[string][]string
	subFailures map[string]map[string]string
}

// NewContext creates a run context with a fresh correlation id.
func NewContext(symbol, timeframe string) *Context {
	return &Context{
		CorrelationID: uuid.NewString(),
		Symbol:        symbol,
		Timeframe:     timeframe,
		metaIdx:       make(map[string]int),
	}
}

// Set stores auxiliary cross-stage data. Insertion order is preserved;
// setting an existing key updates it in place.
func (c *Context) Set(key string, value any) {
	if i, ok := c.metaIdx[key]; ok {
		c.meta[i].value = value
		return
	}
	c.metaIdx[key] = len(c.meta)
	c.meta = append(c.meta, metaEntry{key: key, value: value})
}

// Get returns auxiliary data by key.
func (c *Context) Get(key string) (any, bool) {
	i, ok := c.metaIdx[key]
	if !ok {
		return nil, false
	}
	return c.meta[i].value, true
}

// Keys returns metadata keys in insertion order.
func (c *Context) Keys() []string {
	keys := make([]string, 0, len(c.meta))
	for _, e := range c.meta {
		keys = append(keys, e.key)
	}
	return keys
}

// AddError appends a stage failure record.
func (c *Context) AddError(stage, message string) {
	c.errors = append(c.errors, StageError{Stage: stage, Message: message, At: time.Now()})
}

// Errors returns all recorded stage failures.
func (c *Context) Errors() []StageError { return c.errors }

// RecordTiming appends a stage timing record.
func (c *Context) RecordTiming(stage string, elapsed time.Duration) {
	c.timings = append(c.timings, StageTiming{Stage: stage, Elapsed: elapsed})
}

// Timings returns all recorded stage timings.
func (c *Context) Timings() []StageTiming { return c.timings }

// AddWarning attaches a non-fatal note to the current stage's result.
func (c *Context) AddWarning(stage, message string) {
	if c.warnings == nil {
		c.warnings = make(map[string][]string)
	}
	c.warnings[stage] = append(c.warnings[stage], message)
}

// AddSubFailure records a named partial failure inside an otherwise
// completed stage (e.g. one of several lookback windows missing data).
func (c *Context) AddSubFailure(stage, name, message string) {
	if c.subFailures == nil {
		c.subFailures = make(map[string]map[string]string)
	}
	if c.subFailures[stage] == nil {
		c.subFailures[stage] = make(map[string]string)
	}
	c.subFailures[stage][name] = message
}

func (c *Context) stageWarnings(stage string) []string {
	return c.warnings[stage]
}

func (c *Context) stageSubFailures(stage string) map[string]string {
	return c.subFailures[stage]
}
