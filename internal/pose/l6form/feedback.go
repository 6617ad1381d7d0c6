package l6form

import (
	"time"

	"github.com/banshee-data/physio.track/internal/timeutil"
)

// Severity classifies a feedback message for the host UI.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Feedback is one advisory message.
type Feedback struct {
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	Score    float64   `json:"score"`
	At       time.Time `json:"at"`
}

// Advise maps an average score to the message for its band:
// >=80 excellent, >=60 good, >=40 needs improvement, otherwise poor.
func Advise(avg float64) (string, Severity) {
	switch {
	case avg >= 80:
		return "Excellent form! Keep it up!", SeveritySuccess
	case avg >= 60:
		return "Good form, maintain your posture", SeveritySuccess
	case avg >= 40:
		return "Form needs improvement - check your posture", SeverityWarning
	default:
		return "Poor form detected - slow down and focus on technique", SeverityError
	}
}

// DefaultFeedbackInterval is the minimum spacing between two messages.
const DefaultFeedbackInterval = 2 * time.Second

// FeedbackPolicy emits at most one message per interval, measured on the
// clock's monotonic reading. The first evaluation with at least one sample
// always emits. It is not safe for concurrent use.
type FeedbackPolicy struct {
	interval time.Duration
	clock    timeutil.Clock
	last     time.Time
	emitted  bool
}

// NewFeedbackPolicy returns a policy throttled to interval.
func NewFeedbackPolicy(interval time.Duration, clock timeutil.Clock) *FeedbackPolicy {
	if interval <= 0 {
		interval = DefaultFeedbackInterval
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &FeedbackPolicy{interval: interval, clock: clock}
}

// Evaluate returns the feedback for avg, the mean of samples scores, and
// true when a message is due. With no samples nothing is emitted.
func (p *FeedbackPolicy) Evaluate(avg float64, samples int) (Feedback, bool) {
	if samples <= 0 {
		return Feedback{}, false
	}
	now := p.clock.Now()
	if p.emitted && now.Sub(p.last) < p.interval {
		return Feedback{}, false
	}
	p.last = now
	p.emitted = true
	msg, sev := Advise(avg)
	return Feedback{Message: msg, Severity: sev, Score: avg, At: now}, true
}

// Interval returns the throttle interval.
func (p *FeedbackPolicy) Interval() time.Duration { return p.interval }

// Reset forgets the last emission so the next evaluation may emit at once.
func (p *FeedbackPolicy) Reset() {
	p.last = time.Time{}
	p.emitted = false
}
