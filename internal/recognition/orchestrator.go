package recognition

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy is the orchestration configuration, read once at startup.
type Policy struct {
	// Primary is tried first, Fallback second when the primary result
	// does not qualify. Every other available backend follows in
	// registry order.
	Primary  string
	Fallback string
	// Timeout bounds each single backend attempt.
	Timeout time.Duration
	// MinConfidence is the threshold a reported confidence must reach
	// for a result to win without further fallback.
	MinConfidence float64
}

// Outcome is a winning recognition result plus how it was obtained.
type Outcome struct {
	Result       *Result `json:"result"`
	ServiceUsed  string  `json:"service_used"`
	FallbackUsed bool    `json:"fallback_used"`
}

// Orchestrator drives backend attempts for one image: primary, then
// fallback, then the remaining backends, under a per-attempt timeout
// and a confidence threshold. Backends never run concurrently with
// each other; the inter-backend order encodes cost and trust.
type Orchestrator struct {
	backends map[string]Backend
	order    []string
	policy   Policy
}

// NewOrchestrator builds an orchestrator over an explicitly owned
// backend map. order lists the backend names by trust (usually the
// registry order); names absent from the map are skipped.
func NewOrchestrator(backends map[string]Backend, order []string, policy Policy) *Orchestrator {
	if policy.Timeout <= 0 {
		policy.Timeout = 30 * time.Second
	}
	return &Orchestrator{backends: backends, order: order, policy: policy}
}

// candidate is a retained non-qualifying result, in attempt order.
type candidate struct {
	name   string
	result *Result
}

// Recognize runs the fallback chain for one image and returns the
// winning result. It fails with AllBackendsFailedError only when every
// attempt produced an error; a low-confidence result is a normal,
// retained candidate and the best one is returned when no attempt
// reaches the threshold.
func (o *Orchestrator) Recognize(ctx context.Context, in Input, opts Options) (*Outcome, error) {
	var candidates []candidate
	var failures []AttemptError
	attempted := make(map[string]bool)

	sequence := o.sequence()
	for _, name := range sequence {
		if attempted[name] {
			continue
		}
		attempted[name] = true

		backend := o.backends[name]
		result, err := o.attempt(ctx, name, backend, in, opts)
		if err != nil {
			slog.Warn("Backend attempt failed", "backend", name, "error", err)
			failures = append(failures, AttemptError{Backend: name, Err: err})
			continue
		}

		if o.qualifies(result, backend.Describe()) {
			return &Outcome{
				Result:       result,
				ServiceUsed:  name,
				FallbackUsed: name != o.policy.Primary,
			}, nil
		}

		slog.Info("Backend result below threshold, retained as candidate",
			"backend", name,
			"confidence", result.Confidence,
			"min_confidence", o.policy.MinConfidence,
		)
		candidates = append(candidates, candidate{name: name, result: result})
	}

	if len(candidates) == 0 {
		return nil, &AllBackendsFailedError{Attempts: failures}
	}

	// No attempt reached the threshold: take the highest reported
	// confidence, ties broken by earliest attempt.
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.result.Confidence > best.result.Confidence {
			best = c
		}
	}

	attemptCount := len(candidates) + len(failures)
	return &Outcome{
		Result:       best.result,
		ServiceUsed:  best.name,
		FallbackUsed: !(best.name == o.policy.Primary && attemptCount == 1),
	}, nil
}

// sequence yields the attempt order: primary, fallback, then every
// other available backend in trust order.
func (o *Orchestrator) sequence() []string {
	seq := make([]string, 0, len(o.backends))
	seen := make(map[string]bool)

	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		if _, ok := o.backends[name]; !ok {
			return
		}
		seen[name] = true
		seq = append(seq, name)
	}

	add(o.policy.Primary)
	add(o.policy.Fallback)
	for _, name := range o.order {
		add(name)
	}
	return seq
}

// qualifies applies the threshold test. A backend that declares it
// cannot report confidence and returned 0 is treated as unknown, not
// worst-case: its non-empty text qualifies.
func (o *Orchestrator) qualifies(result *Result, d Descriptor) bool {
	if result.Text == "" {
		return false
	}
	if result.Confidence >= o.policy.MinConfidence {
		return true
	}
	return !d.SupportsConfidence && result.Confidence == 0
}

type attemptReply struct {
	result *Result
	err    error
}

// attempt validates the input, then races one Process call against the
// per-attempt timer. A result arriving after the timer fired is
// discarded via the buffered channel and never overwrites the
// decision.
func (o *Orchestrator) attempt(ctx context.Context, name string, backend Backend, in Input, opts Options) (*Result, error) {
	if v := backend.Validate(in); !v.Valid {
		return nil, &ValidationError{Backend: name, Reason: v.Reason}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, o.policy.Timeout)
	defer cancel()

	replies := make(chan attemptReply, 1)
	go func() {
		result, err := backend.Process(attemptCtx, in, opts)
		replies <- attemptReply{result: result, err: err}
	}()

	select {
	case reply := <-replies:
		if reply.err != nil {
			var pe *ProcessingError
			if errors.As(reply.err, &pe) {
				return nil, reply.err
			}
			return nil, &ProcessingError{Backend: name, Err: reply.err}
		}
		return reply.result, nil
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Backend: name, After: o.policy.Timeout}
		}
		return nil, attemptCtx.Err()
	}
}
