package recognition

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestRecognition(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Recognition Suite")
}

// mockBackend records Process calls and plays back a canned result.
type mockBackend struct {
	name               string
	supportsConfidence bool
	result             *Result
	err                error
	delay              time.Duration
	invalidReason      string
	processCalls       int
}

func (m *mockBackend) Initialize(creds Credentials) bool { return true }

func (m *mockBackend) Validate(in Input) Validation {
	if m.invalidReason != "" {
		return Validation{Valid: false, Reason: m.invalidReason}
	}
	return Validation{Valid: true, FileSize: int64(len(in.Data)), FileFormat: ".png"}
}

func (m *mockBackend) Process(ctx context.Context, in Input, opts Options) (*Result, error) {
	m.processCalls++
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockBackend) Describe() Descriptor {
	return Descriptor{
		Name:               m.name,
		Kind:               KindLocal,
		SupportsConfidence: m.supportsConfidence,
		MaxInputBytes:      50 << 20,
		SupportedFormats:   []string{".png", ".jpg"},
	}
}

func textResult(text string, confidence float64) *Result {
	return &Result{Text: text, Confidence: confidence}
}

var _ = Describe("Orchestrator", func() {
	var (
		primary   *mockBackend
		secondary *mockBackend
		tertiary  *mockBackend
		policy    Policy
		input     Input
	)

	BeforeEach(func() {
		primary = &mockBackend{name: "primary", supportsConfidence: true, result: textResult("primary text", 0.95)}
		secondary = &mockBackend{name: "secondary", supportsConfidence: true, result: textResult("secondary text", 0.90)}
		tertiary = &mockBackend{name: "tertiary", supportsConfidence: true, result: textResult("tertiary text", 0.85)}
		policy = Policy{
			Primary:       "primary",
			Fallback:      "secondary",
			Timeout:       time.Second,
			MinConfidence: 0.6,
		}
		input = Input{Data: []byte("fake image"), Filename: "receipt.png"}
	})

	newOrchestrator := func() *Orchestrator {
		return NewOrchestrator(map[string]Backend{
			"primary":   primary,
			"secondary": secondary,
			"tertiary":  tertiary,
		}, []string{"primary", "secondary", "tertiary"}, policy)
	}

	recognize := func() (*Outcome, error) {
		return newOrchestrator().Recognize(context.Background(), input, Options{})
	}

	When("the primary result meets the threshold", func() {
		It("returns the primary result", func() {
			outcome, err := recognize()
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Result.Text).To(Equal("primary text"))
			Expect(outcome.ServiceUsed).To(Equal("primary"))
			Expect(outcome.FallbackUsed).To(BeFalse())
		})

		It("never calls the other backends", func() {
			_, err := recognize()
			Expect(err).NotTo(HaveOccurred())
			Expect(primary.processCalls).To(Equal(1))
			Expect(secondary.processCalls).To(Equal(0))
			Expect(tertiary.processCalls).To(Equal(0))
		})
	})

	When("the primary backend errors", func() {
		BeforeEach(func() {
			primary.err = errors.New("quota exhausted")
		})

		It("falls back and flags the fallback", func() {
			outcome, err := recognize()
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.ServiceUsed).To(Equal("secondary"))
			Expect(outcome.FallbackUsed).To(BeTrue())
			Expect(outcome.Result.Text).To(Equal("secondary text"))
		})
	})

	When("the primary result is below the threshold", func() {
		BeforeEach(func() {
			primary.result = textResult("blurry", 0.2)
		})

		It("tries the fallback and returns its qualifying result", func() {
			outcome, err := recognize()
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.ServiceUsed).To(Equal("secondary"))
			Expect(outcome.FallbackUsed).To(BeTrue())
			Expect(primary.processCalls).To(Equal(1))
			Expect(secondary.processCalls).To(Equal(1))
		})
	})

	When("no attempt reaches the threshold", func() {
		BeforeEach(func() {
			primary.result = textResult("primary text", 0.3)
			secondary.result = textResult("secondary text", 0.5)
			tertiary.result = textResult("tertiary text", 0.4)
		})

		It("returns the highest-confidence candidate", func() {
			outcome, err := recognize()
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.ServiceUsed).To(Equal("secondary"))
			Expect(outcome.Result.Confidence).To(BeNumerically("~", 0.5, 1e-9))
			Expect(outcome.FallbackUsed).To(BeTrue())
		})

		It("breaks confidence ties toward the earliest attempt", func() {
			secondary.result = textResult("secondary text", 0.3)
			tertiary.result = textResult("tertiary text", 0.3)
			outcome, err := recognize()
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.ServiceUsed).To(Equal("primary"))
		})
	})

	When("only the primary backend exists and its result is weak", func() {
		It("returns the result without flagging a fallback", func() {
			primary.result = textResult("weak", 0.2)
			o := NewOrchestrator(map[string]Backend{"primary": primary}, []string{"primary"}, policy)
			outcome, err := o.Recognize(context.Background(), input, Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.ServiceUsed).To(Equal("primary"))
			Expect(outcome.FallbackUsed).To(BeFalse())
		})
	})

	When("a backend cannot report confidence", func() {
		BeforeEach(func() {
			primary.supportsConfidence = false
			primary.result = textResult("llm transcript", 0)
		})

		It("accepts its non-empty text as qualifying", func() {
			outcome, err := recognize()
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.ServiceUsed).To(Equal("primary"))
			Expect(outcome.FallbackUsed).To(BeFalse())
			Expect(secondary.processCalls).To(Equal(0))
		})

		It("still falls back on empty text", func() {
			primary.result = textResult("", 0)
			outcome, err := recognize()
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.ServiceUsed).To(Equal("secondary"))
		})
	})

	When("every backend errors", func() {
		BeforeEach(func() {
			primary.err = errors.New("boom")
			secondary.err = errors.New("boom")
			tertiary.err = errors.New("boom")
		})

		It("returns AllBackendsFailedError with one entry per attempt", func() {
			outcome, err := recognize()
			Expect(outcome).To(BeNil())
			var allFailed *AllBackendsFailedError
			Expect(errors.As(err, &allFailed)).To(BeTrue())
			Expect(allFailed.Attempts).To(HaveLen(3))
			Expect(allFailed.Attempts[0].Backend).To(Equal("primary"))
		})
	})

	When("a backend exceeds the per-attempt timeout", func() {
		BeforeEach(func() {
			policy.Timeout = 20 * time.Millisecond
			primary.delay = 500 * time.Millisecond
		})

		It("moves on to the fallback", func() {
			outcome, err := recognize()
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.ServiceUsed).To(Equal("secondary"))
			Expect(outcome.FallbackUsed).To(BeTrue())
		})

		It("reports the timeout as such when nothing else is available", func() {
			o := NewOrchestrator(map[string]Backend{"primary": primary}, []string{"primary"}, policy)
			_, err := o.Recognize(context.Background(), input, Options{})
			var allFailed *AllBackendsFailedError
			Expect(errors.As(err, &allFailed)).To(BeTrue())
			Expect(allFailed.Attempts).To(HaveLen(1))
			var timeout *TimeoutError
			Expect(errors.As(allFailed.Attempts[0].Err, &timeout)).To(BeTrue())
			Expect(timeout.Backend).To(Equal("primary"))
		})
	})

	When("a backend rejects the input during validation", func() {
		BeforeEach(func() {
			primary.invalidReason = "unsupported format"
		})

		It("skips its engine entirely and continues the chain", func() {
			outcome, err := recognize()
			Expect(err).NotTo(HaveOccurred())
			Expect(primary.processCalls).To(Equal(0))
			Expect(outcome.ServiceUsed).To(Equal("secondary"))
		})
	})

	When("the fallback names the primary", func() {
		BeforeEach(func() {
			policy.Fallback = "primary"
			primary.err = errors.New("down")
		})

		It("attempts each backend at most once", func() {
			outcome, err := recognize()
			Expect(err).NotTo(HaveOccurred())
			Expect(primary.processCalls).To(Equal(1))
			Expect(outcome.ServiceUsed).To(Equal("secondary"))
		})
	})

	When("the policy names a missing backend", func() {
		BeforeEach(func() {
			policy.Fallback = "nonexistent"
		})

		It("skips it without error", func() {
			primary.result = textResult("weak", 0.1)
			outcome, err := recognize()
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.ServiceUsed).To(Equal("secondary"))
		})
	})
})
