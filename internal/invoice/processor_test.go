package invoice

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-tracker/internal/confidence"
	"github.com/zombor/invoice-tracker/internal/document"
	"github.com/zombor/invoice-tracker/internal/extract"
	"github.com/zombor/invoice-tracker/internal/recognition"
)

const concreteInvoice = "WILD HORSE BREWING CO LTD\nInvoice Number: INV-2025-001\nDate: 15/08/2025\nTotal Amount Due: £118.08"

var twoInvoices = strings.Join([]string{
	"RED DRAGON DISPENSE LIMITED",
	"Unit 4 Bridge Street, Bangor, Gwynedd LL57 1AB",
	"Cellar cleaning and line maintenance for the month of August",
	"Four hours on site with two engineers and all chemicals supplied",
	"Payment by bank transfer within thirty days to the account below",
	"Amount payable £118.08",
	"WILD HORSE BREWING CO LTD",
	"Stable Yard, Llandeilo, Carmarthenshire SA19 6AA",
	"Twelve casks of best bitter delivered to the cellar on Friday",
	"Empty casks collected and credited against the next delivery",
	"Payment by bank transfer within thirty days to the account below",
	"Amount payable £240.00",
}, "\n")

// each half is accepted as a segment but too short to survive the filter
var twoFragments = strings.Join([]string{
	"RED DRAGON DISPENSE LIMITED",
	"Unit 4 Bridge Street, Bangor, Gwynedd LL57 1AB",
	"Cellar cleaning and line maintenance £118.08",
	"Payment by bank transfer within thirty days",
	"WILD HORSE BREWING CO LTD",
	"Stable Yard, Llandeilo, Carmarthenshire SA19 6AA",
	"Twelve casks of best bitter £240.00",
	"Payment by bank transfer within thirty days",
}, "\n")

// the header names a supplier but reads like a table column
var tableWordSupplier = strings.Join([]string{
	"Total Brewing Solutions Ltd",
	"Stable Yard, Llandeilo, Carmarthenshire SA19 6AA",
	"Twelve casks of best bitter delivered to the cellar on Friday",
	"Empty casks collected and credited against the next delivery",
	"Payment by bank transfer within thirty days to the account below",
	"Amount payable £240.00",
}, "\n")

var deliveryNote = strings.Join([]string{
	"WILD HORSE BREWING CO LTD",
	"Stable Yard, Llandeilo, Carmarthenshire SA19 6AA",
	"Qty Code Description Price",
	"12 BB-9 Best bitter nine gallon cask £62.50",
	"2 GAS-CO2 Carbon dioxide cylinder £18.00",
	"Payment by bank transfer within thirty days to the account below",
	"Amount payable £786.00",
}, "\n")

// mockReader is a mock implementation of document.Reader
type mockReader struct {
	doc   *document.Document
	err   error
	paths []string
}

func (m *mockReader) Read(ctx context.Context, path string) (*document.Document, error) {
	m.paths = append(m.paths, path)
	return m.doc, m.err
}

var _ = Describe("Processor", func() {
	var (
		processor *Processor
		results   []InvoiceResult
		summary   Summary
	)

	BeforeEach(func() {
		processor = NewProcessor()
	})

	Describe("ProcessText", func() {
		var text string

		JustBeforeEach(func() {
			results, summary = processor.ProcessText(context.Background(), text)
		})

		When("given a single short invoice", func() {
			BeforeEach(func() {
				text = concreteInvoice
			})

			It("should return exactly one result", func() {
				Expect(results).To(HaveLen(1))
			})

			It("should extract every field", func() {
				r := results[0]
				Expect(r.SupplierName).To(Equal("WILD HORSE BREWING CO LTD"))
				Expect(r.InvoiceNumber).To(Equal("INV-2025-001"))
				Expect(r.InvoiceDate).To(Equal("2025-08-15"))
				Expect(r.TotalAmount.Equal(decimal.RequireFromString("118.08"))).To(BeTrue())
			})

			It("should be confident and pass validation", func() {
				Expect(results[0].Confidence).To(BeNumerically(">=", 0.7))
				Expect(results[0].ValidationPassed).To(BeTrue())
			})

			It("should merge the one-line segments", func() {
				Expect(summary.Segments).To(Equal(4))
				Expect(summary.ValidatedSegments).To(BeZero())
				Expect(summary.Merged).To(BeTrue())
				Expect(summary.Fallback).To(BeFalse())
				Expect(summary.Results).To(Equal(1))
				Expect(results[0].ExtractionMethod).To(Equal(MethodMerged))
				Expect(results[0].SegmentText).To(Equal(concreteInvoice))
			})

			It("should record the scoring factors", func() {
				Expect(results[0].Factors).To(HaveKeyWithValue(confidence.OCRQuality, confidence.NeutralOCRQuality))
				Expect(results[0].Fields).To(HaveLen(4))
			})
		})

		When("given two complete invoices", func() {
			BeforeEach(func() {
				text = twoInvoices
			})

			It("should return one result per invoice in line order", func() {
				Expect(results).To(HaveLen(2))
				Expect(results[0].SupplierName).To(Equal("Red Dragon Dispense Limited"))
				Expect(results[0].TotalAmount.Equal(decimal.RequireFromString("118.08"))).To(BeTrue())
				Expect(results[0].ExtractionMethod).To(Equal("segment_1"))
				Expect(results[1].SupplierName).To(Equal("WILD HORSE BREWING CO LTD"))
				Expect(results[1].TotalAmount.Equal(decimal.RequireFromString("240.00"))).To(BeTrue())
				Expect(results[1].ExtractionMethod).To(Equal("segment_2"))
				Expect(results[0].StartLine).To(BeNumerically("<", results[1].StartLine))
			})

			It("should not merge", func() {
				Expect(summary.Segments).To(Equal(2))
				Expect(summary.ValidatedSegments).To(Equal(2))
				Expect(summary.Merged).To(BeFalse())
			})

			It("should keep the segment prior as the quality score", func() {
				Expect(results[0].QualityScore).To(BeNumerically("~", 0.4, 1e-9))
			})
		})

		When("every segment result fails the quality filter", func() {
			BeforeEach(func() {
				text = twoFragments
			})

			It("should return exactly one merged result", func() {
				Expect(summary.ValidatedSegments).To(Equal(2))
				Expect(results).To(HaveLen(1))
				Expect(summary.Merged).To(BeTrue())
				Expect(results[0].ExtractionMethod).To(Equal(MethodMerged))
			})

			It("should extract from the merged text", func() {
				r := results[0]
				Expect(r.SupplierName).To(Equal("Red Dragon Dispense Limited"))
				Expect(r.TotalAmount.Equal(decimal.RequireFromString("240.00"))).To(BeTrue())
				Expect(r.SegmentText).To(Equal(twoFragments))
				Expect(DefaultQualityFilter().Keep(r)).To(BeTrue())
			})
		})

		When("the supplier fails validation", func() {
			BeforeEach(func() {
				text = tableWordSupplier
			})

			It("should not report the rejected supplier", func() {
				Expect(results).To(HaveLen(1))
				Expect(results[0].SupplierName).To(Equal(UnknownSupplier))
				Expect(results[0].Fields[extract.Supplier].BusinessRuleCompliance).To(BeFalse())
				Expect(results[0].ValidationPassed).To(BeFalse())
			})

			It("should drop the segment result and fall back to the merge", func() {
				Expect(summary.ValidatedSegments).To(Equal(1))
				Expect(summary.Merged).To(BeTrue())
				Expect(results[0].ExtractionMethod).To(Equal(MethodMerged))
				Expect(results[0].TotalAmount.Equal(decimal.RequireFromString("240.00"))).To(BeTrue())
			})
		})

		When("the invoice has a priced table", func() {
			BeforeEach(func() {
				text = deliveryNote
			})

			It("should parse each row into a line item", func() {
				Expect(results).To(HaveLen(1))
				items := results[0].LineItems
				Expect(items).To(HaveLen(2))
				Expect(items[0].Quantity).To(Equal(12))
				Expect(items[0].Code).To(Equal("BB-9"))
				Expect(items[0].Description).To(Equal("Best bitter nine gallon cask"))
				Expect(items[0].Total.Equal(decimal.RequireFromString("750.00"))).To(BeTrue())
				Expect(items[1].Code).To(Equal("GAS-CO2"))
				Expect(items[1].Total.Equal(decimal.RequireFromString("36.00"))).To(BeTrue())
			})
		})

		When("the context is already cancelled", func() {
			BeforeEach(func() {
				text = ""
			})

			JustBeforeEach(func() {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				results, summary = processor.ProcessText(ctx, twoInvoices)
			})

			It("should skip the segments and return the sentinel", func() {
				Expect(summary.ValidatedSegments).To(Equal(2))
				Expect(results).To(Equal([]InvoiceResult{Sentinel()}))
				Expect(summary.Fallback).To(BeTrue())
			})
		})

		When("the text is empty", func() {
			BeforeEach(func() {
				text = ""
			})

			It("should return the sentinel", func() {
				Expect(results).To(Equal([]InvoiceResult{Sentinel()}))
				Expect(summary.Fallback).To(BeTrue())
				Expect(summary.Segments).To(BeZero())
			})
		})

		When("nothing can be extracted", func() {
			BeforeEach(func() {
				text = "thanks for your custom\nsee you soon"
			})

			It("should return the sentinel after trying a merge", func() {
				Expect(results).To(HaveLen(1))
				Expect(results[0].SupplierName).To(Equal(UnknownSupplier))
				Expect(results[0].Confidence).To(Equal(SentinelConfidence))
				Expect(results[0].ValidationPassed).To(BeFalse())
				Expect(summary.Merged).To(BeTrue())
				Expect(summary.Fallback).To(BeTrue())
			})
		})

		DescribeTable("always returns at least one bounded result",
			func(input string) {
				results, _ := processor.ProcessText(context.Background(), input)
				Expect(results).NotTo(BeEmpty())
				for _, r := range results {
					Expect(r.Confidence).To(BeNumerically(">=", 0))
					Expect(r.Confidence).To(BeNumerically("<=", 1))
				}
			},
			Entry("whitespace", "  \n\t\n"),
			Entry("only separators", "==========\n----------\n**********"),
			Entry("only numbers", "1234567890\n0987654321"),
			Entry("only currency symbols", "£ $ €"),
			Entry("single letter", "x"),
			Entry("table header", "Qty Price BREWING LTD Total"),
		)

		When("segments are processed one at a time", func() {
			BeforeEach(func() {
				processor = NewProcessor(WithWorkers(1))
				text = twoInvoices
			})

			It("should return the same results", func() {
				Expect(results).To(HaveLen(2))
				Expect(results[0].ExtractionMethod).To(Equal("segment_1"))
			})
		})
	})

	Describe("ProcessDocument", func() {
		var reader *mockReader

		BeforeEach(func() {
			reader = &mockReader{}
			processor = NewProcessor(WithReader(reader))
		})

		JustBeforeEach(func() {
			results, summary = processor.ProcessDocument(context.Background(), "/scans/invoice.png")
		})

		When("the reader fails", func() {
			BeforeEach(func() {
				reader.err = errors.New("corrupt file")
			})

			It("should return the sentinel", func() {
				Expect(reader.paths).To(Equal([]string{"/scans/invoice.png"}))
				Expect(results).To(Equal([]InvoiceResult{Sentinel()}))
				Expect(summary.Fallback).To(BeTrue())
				Expect(summary.Results).To(Equal(1))
			})
		})

		When("the document was recognized by several backends", func() {
			BeforeEach(func() {
				reader.doc = &document.Document{
					Path: "/scans/invoice.png",
					Pages: []document.Page{{
						Number: 1,
						Text:   concreteInvoice,
						Source: document.SourceOCR,
						Fusion: &recognition.FusionResult{
							Text:            concreteInvoice,
							AvgConfidence:   0.9,
							EngineAgreement: 0.7,
							PerBackend: map[string]recognition.BackendOutput{
								"tesseract": {Text: concreteInvoice, Confidence: 0.9},
								"gemini":    {Text: concreteInvoice, Confidence: 0.9},
							},
						},
					}},
				}
			})

			It("should score OCR quality from the fusion", func() {
				Expect(results).To(HaveLen(1))
				Expect(results[0].Factors[confidence.OCRQuality]).To(BeNumerically("~", 0.8, 1e-9))
				Expect(results[0].InvoiceNumber).To(Equal("INV-2025-001"))
			})
		})
	})
})

var _ = Describe("OCRQuality", func() {
	It("should be neutral without recognition", func() {
		Expect(OCRQuality(nil)).To(Equal(confidence.NeutralOCRQuality))
	})

	It("should average the pages", func() {
		single := recognition.FusionResult{AvgConfidence: 0.6, PerBackend: map[string]recognition.BackendOutput{"tesseract": {}}}
		failed := recognition.FusionResult{PerBackend: map[string]recognition.BackendOutput{}}
		Expect(OCRQuality([]recognition.FusionResult{single, failed})).To(BeNumerically("~", 0.3, 1e-9))
	})
})

var _ = Describe("QualityFilter", func() {
	var (
		filter QualityFilter
		result InvoiceResult
	)

	BeforeEach(func() {
		filter = DefaultQualityFilter()
		result = InvoiceResult{
			SupplierName: "Red Dragon Dispense Limited",
			TotalAmount:  decimal.RequireFromString("118.08"),
			Confidence:   0.5,
			SegmentText:  strings.Repeat("x", 200),
		}
	})

	It("should keep a complete result", func() {
		Expect(filter.Keep(result)).To(BeTrue())
	})

	It("should drop low confidence", func() {
		result.Confidence = 0.39
		Expect(filter.Keep(result)).To(BeFalse())
	})

	It("should drop short segments", func() {
		result.SegmentText = "  " + strings.Repeat("x", 199) + "  "
		Expect(filter.Keep(result)).To(BeFalse())
	})

	It("should drop results without a supplier", func() {
		result.SupplierName = UnknownSupplier
		Expect(filter.Keep(result)).To(BeFalse())
	})

	It("should drop results without a total", func() {
		result.TotalAmount = decimal.Zero
		Expect(filter.Keep(result)).To(BeFalse())
	})

	It("should filter in order", func() {
		weak := result
		weak.Confidence = 0.1
		second := result
		second.StartLine = 9
		Expect(filter.Filter([]InvoiceResult{result, weak, second})).To(Equal([]InvoiceResult{result, second}))
	})
})
