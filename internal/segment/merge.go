package segment

import "strings"

// Merge joins segments into one, in the order given. Candidate sets are
// unioned without duplicates and the confidence is the mean of the inputs.
func Merge(segments []Segment) Segment {
	if len(segments) == 0 {
		return Segment{}
	}

	texts := make([]string, 0, len(segments))
	merged := Segment{
		StartLine: segments[0].StartLine,
		EndLine:   segments[len(segments)-1].EndLine,
	}
	seenTotals := map[string]bool{}
	var confSum float64
	for _, s := range segments {
		texts = append(texts, s.Text)
		confSum += s.Confidence
		for _, v := range s.InvoiceIndicators {
			merged.InvoiceIndicators = appendUnique(merged.InvoiceIndicators, v)
		}
		for _, v := range s.SupplierCandidates {
			merged.SupplierCandidates = appendUnique(merged.SupplierCandidates, v)
		}
		for _, v := range s.DateCandidates {
			merged.DateCandidates = appendUnique(merged.DateCandidates, v)
		}
		for _, v := range s.TotalCandidates {
			if key := v.String(); !seenTotals[key] {
				seenTotals[key] = true
				merged.TotalCandidates = append(merged.TotalCandidates, v)
			}
		}
	}
	merged.Text = strings.Join(texts, "\n")
	merged.Confidence = clamp(confSum / float64(len(segments)))
	return merged
}
