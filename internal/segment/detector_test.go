package segment

import (
	"strings"

	"github.com/shopspring/decimal"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Detector", func() {
	var (
		detector Detector
		seg      Segment
	)

	BeforeEach(func() {
		detector = DefaultDetector()
		seg = NewDefaultSegmenter().Segment(twoInvoiceText)[0]
	})

	When("the segment is a plausible invoice", func() {
		It("should accept it", func() {
			Expect(detector.IsInvoice(seg)).To(BeTrue())
			Expect(detector.Reject(seg)).To(BeEmpty())
		})
	})

	When("the trimmed text is under the minimum length", func() {
		BeforeEach(func() {
			seg.Text = "   RED DRAGON DISPENSE LIMITED   "
		})

		It("should reject it", func() {
			Expect(detector.IsInvoice(seg)).To(BeFalse())
			Expect(detector.Reject(seg)).To(Equal("too short"))
		})
	})

	When("the confidence is below the threshold", func() {
		BeforeEach(func() {
			seg.Confidence = 0.2
		})

		It("should reject it", func() {
			Expect(detector.Reject(seg)).To(Equal("low confidence"))
		})
	})

	When("there is neither an invoice indicator nor a supplier", func() {
		BeforeEach(func() {
			seg = Segment{
				Text:            strings.Repeat("kegs and casks delivered ", 6),
				Confidence:      0.3,
				TotalCandidates: []decimal.Decimal{decimal.NewFromInt(40)},
				DateCandidates:  []string{"01/02/2025"},
			}
		})

		It("should reject it", func() {
			Expect(detector.Reject(seg)).To(Equal("no invoice or supplier signal"))
		})
	})
})

var _ = Describe("Merge", func() {
	var segments []Segment

	BeforeEach(func() {
		segments = NewDefaultSegmenter().Segment(twoInvoiceText)
	})

	It("should join the texts in order", func() {
		merged := Merge(segments)
		Expect(merged.Text).To(Equal(twoInvoiceText))
		Expect(merged.StartLine).To(Equal(0))
		Expect(merged.EndLine).To(Equal(8))
	})

	It("should union the candidate sets", func() {
		merged := Merge(segments)
		Expect(merged.SupplierCandidates).To(Equal([]string{"RED DRAGON DISPENSE LIMITED", "WILD HORSE BREWING CO LTD"}))
		Expect(merged.TotalCandidates).To(HaveLen(2))
	})

	It("should not duplicate shared candidates", func() {
		merged := Merge([]Segment{segments[0], segments[0]})
		Expect(merged.SupplierCandidates).To(HaveLen(1))
		Expect(merged.TotalCandidates).To(HaveLen(1))
	})

	It("should average the confidences", func() {
		a := Segment{Text: "a", EndLine: 1, Confidence: 0.2}
		b := Segment{Text: "b", StartLine: 1, EndLine: 2, Confidence: 0.6}
		Expect(Merge([]Segment{a, b}).Confidence).To(BeNumerically("~", 0.4, 1e-9))
	})

	It("should return an empty segment for no input", func() {
		Expect(Merge(nil).Text).To(BeEmpty())
	})
})
