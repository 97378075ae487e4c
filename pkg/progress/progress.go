package progress

import (
	"github.com/rs/zerolog"
)

// Sink consumes unit-of-work counts from a long-running operation.
// Implementations must tolerate Add after Done; extra units are ignored.
type Sink interface {
	// Add records n completed units of work.
	Add(n int)

	// Done marks the operation complete, clamping the count to the total.
	Done()
}

// Counter is a pure counting sink. The count never exceeds the total and
// never decreases.
type Counter struct {
	total   int
	current int
	done    bool
}

// NewCounter creates a counter sink for total units of work. A total of
// zero is legal and reports 100% immediately.
func NewCounter(total int) *Counter {
	if total < 0 {
		total = 0
	}
	return &Counter{total: total}
}

// Add records n completed units. Negative n is ignored.
func (c *Counter) Add(n int) {
	if c.done || n <= 0 {
		return
	}
	c.current += n
	if c.current > c.total {
		c.current = c.total
	}
}

// Done clamps the count to the total and freezes the counter.
func (c *Counter) Done() {
	c.current = c.total
	c.done = true
}

// Current returns the number of completed units.
func (c *Counter) Current() int {
	return c.current
}

// Total returns the total number of units.
func (c *Counter) Total() int {
	return c.total
}

// Percent returns completion as a percentage. An empty counter is complete.
func (c *Counter) Percent() float64 {
	if c.total == 0 {
		return 100.0
	}
	return float64(c.current) / float64(c.total) * 100
}

// LogSink counts units and logs completion percentage at step boundaries.
// It exists for headless runs where no interactive display is attached.
type LogSink struct {
	counter  *Counter
	logger   zerolog.Logger
	label    string
	step     float64
	lastStep float64
}

// NewLogSink creates a sink that logs label progress every step percent.
// A step of 0 defaults to 25.
func NewLogSink(logger zerolog.Logger, label string, total int, step float64) *LogSink {
	if step <= 0 {
		step = 25
	}
	return &LogSink{
		counter: NewCounter(total),
		logger:  logger,
		label:   label,
		step:    step,
	}
}

// Add records n completed units, logging when a step boundary is crossed.
func (s *LogSink) Add(n int) {
	s.counter.Add(n)
	s.maybeLog()
}

// Done marks the operation complete and logs the final state.
func (s *LogSink) Done() {
	s.counter.Done()
	s.logger.Info().
		Str("task", s.label).
		Int("completed", s.counter.Current()).
		Int("total", s.counter.Total()).
		Msg("complete")
}

func (s *LogSink) maybeLog() {
	pct := s.counter.Percent()
	if pct-s.lastStep < s.step {
		return
	}
	s.lastStep = pct
	s.logger.Debug().
		Str("task", s.label).
		Int("completed", s.counter.Current()).
		Int("total", s.counter.Total()).
		Float64("percent", pct).
		Msg("progress")
}

// Multi fans out to several sinks.
type Multi []Sink

// Add forwards n to every sink.
func (m Multi) Add(n int) {
	for _, s := range m {
		s.Add(n)
	}
}

// Done forwards completion to every sink.
func (m Multi) Done() {
	for _, s := range m {
		s.Done()
	}
}

// Discard is a Sink that ignores everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Add(int) {}
func (discard) Done()   {}
