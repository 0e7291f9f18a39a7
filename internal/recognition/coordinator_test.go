package recognition

import (
	"context"
	"time"

	"github.com/agext/levenshtein"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Coordinator", func() {
	var (
		backends []Backend
		opts     []Option
		ctx      context.Context
		img      Image
		result   FusionResult
		err      error
	)

	BeforeEach(func() {
		ctx = context.Background()
		img = Image{Data: []byte("already-a-png"), ContentType: "image/png"}
		opts = []Option{WithTimeout(100 * time.Millisecond)}
	})

	JustBeforeEach(func() {
		coordinator, newErr := NewCoordinator(backends, opts...)
		Expect(newErr).NotTo(HaveOccurred())
		result, err = coordinator.Fuse(ctx, img)
	})

	When("one of three backends times out", func() {
		var slow *mockBackend

		BeforeEach(func() {
			slow = &mockBackend{name: "slow", delay: 5 * time.Second, fragments: []Fragment{{Text: "never", Confidence: 1}}}
			backends = []Backend{
				&mockBackend{name: "first", fragments: []Fragment{
					{Text: "WILD HORSE BREWING CO LTD", Confidence: 0.9},
					{Text: "Total Due: £118.08", Confidence: 0.7},
				}},
				slow,
				&mockBackend{name: "third", fragments: []Fragment{
					{Text: "WILD HORSE BREWING CO LTD", Confidence: 0.6},
				}},
			}
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should fuse the text of the two backends that answered", func() {
			Expect(result.Text).To(Equal("WILD HORSE BREWING CO LTD\nTotal Due: £118.08\nWILD HORSE BREWING CO LTD"))
			Expect(result.PerBackend).To(HaveLen(2))
			Expect(result.PerBackend).NotTo(HaveKey("slow"))
		})

		It("should average the confidences of the remaining backends", func() {
			Expect(result.AvgConfidence).To(BeNumerically("~", 0.7, 1e-9))
		})

		It("should compute agreement from the remaining pair", func() {
			expected := levenshtein.Similarity("WILD HORSE BREWING CO LTD\nTotal Due: £118.08", "WILD HORSE BREWING CO LTD", nil)
			Expect(result.EngineAgreement).To(BeNumerically("~", expected, 1e-9))
			Expect(result.EngineAgreement).To(BeNumerically(">", 0))
			Expect(result.EngineAgreement).To(BeNumerically("<", 1))
		})
	})

	When("every backend fails", func() {
		BeforeEach(func() {
			backends = []Backend{
				&mockBackend{name: "a", err: errBackend},
				&mockBackend{name: "b", fragments: []Fragment{{Text: "   ", Confidence: 0.9}}},
			}
		})

		It("should return ErrAllBackendsFailed", func() {
			Expect(err).To(MatchError(ErrAllBackendsFailed))
		})

		It("should return an empty zero-confidence result", func() {
			Expect(result.Text).To(BeEmpty())
			Expect(result.AvgConfidence).To(BeZero())
			Expect(result.EngineAgreement).To(BeZero())
			Expect(result.Responded()).To(BeZero())
		})
	})

	When("fragments fall below the confidence floor", func() {
		BeforeEach(func() {
			backends = []Backend{
				&mockBackend{name: "a", fragments: []Fragment{
					{Text: "smudge", Confidence: 0.05},
					{Text: "INVOICE 42", Confidence: 0.9},
				}},
				&mockBackend{name: "b", fragments: []Fragment{{Text: "speck", Confidence: 0.02}}},
			}
		})

		It("should drop them before averaging", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Text).To(Equal("INVOICE 42"))
			Expect(result.AvgConfidence).To(BeNumerically("~", 0.9, 1e-9))
		})

		It("should treat a backend with only dropped fragments as silent", func() {
			Expect(result.PerBackend).To(HaveLen(1))
			Expect(result.EngineAgreement).To(BeZero())
		})
	})

	When("the first registered backend is the slowest to answer", func() {
		BeforeEach(func() {
			backends = []Backend{
				&mockBackend{name: "a", delay: 20 * time.Millisecond, fragments: []Fragment{{Text: "first", Confidence: 0.8}}},
				&mockBackend{name: "b", fragments: []Fragment{{Text: "second", Confidence: 0.8}}},
			}
		})

		It("should keep registration order in the fused text", func() {
			Expect(result.Text).To(Equal("first\nsecond"))
		})
	})

	When("the caller's deadline expires mid-flight", func() {
		var cancel context.CancelFunc

		BeforeEach(func() {
			opts = []Option{WithTimeout(5 * time.Second)}
			ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
			backends = []Backend{
				&mockBackend{name: "fast", fragments: []Fragment{{Text: "partial page", Confidence: 0.75}}},
				&mockBackend{name: "slow", delay: 5 * time.Second, fragments: []Fragment{{Text: "x", Confidence: 1}}},
			}
		})

		AfterEach(func() {
			cancel()
		})

		It("should fall back to what was already recognized", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Text).To(Equal("partial page"))
			Expect(result.AvgConfidence).To(BeNumerically("~", 0.75, 1e-9))
		})
	})

	When("a backend ignores cancellation", func() {
		var stubborn *stubbornBackend

		BeforeEach(func() {
			stubborn = &stubbornBackend{release: make(chan struct{})}
			opts = []Option{WithTimeout(30 * time.Millisecond)}
			backends = []Backend{
				stubborn,
				&mockBackend{name: "ok", fragments: []Fragment{{Text: "readable", Confidence: 0.8}}},
			}
		})

		AfterEach(func() {
			close(stubborn.release)
		})

		It("should abandon it at the deadline", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.PerBackend).To(HaveKey("ok"))
			Expect(result.PerBackend).NotTo(HaveKey("stubborn"))
		})
	})
})

var _ = Describe("NewCoordinator", func() {
	When("no backends are given", func() {
		It("should return ErrNoBackends", func() {
			_, err := NewCoordinator(nil)
			Expect(err).To(MatchError(ErrNoBackends))
		})
	})

	It("should report backend names in registration order", func() {
		c, err := NewCoordinator([]Backend{&mockBackend{name: "b"}, &mockBackend{name: "a"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Backends()).To(Equal([]string{"b", "a"}))
	})
})

var _ = Describe("Agreement", func() {
	It("should be zero for fewer than two texts", func() {
		Expect(Agreement(nil)).To(BeZero())
		Expect(Agreement([]string{"only one"})).To(BeZero())
	})

	It("should be one for identical texts", func() {
		Expect(Agreement([]string{"Total £10.00", "Total £10.00", "Total £10.00"})).To(BeNumerically("~", 1.0, 1e-9))
	})

	It("should stay within bounds for unrelated texts", func() {
		a := Agreement([]string{"==========", "1234567890", ""})
		Expect(a).To(BeNumerically(">=", 0))
		Expect(a).To(BeNumerically("<=", 1))
	})
})
