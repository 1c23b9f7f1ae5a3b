// Package scorer implements BM25 term scoring over the simplified inverted
// index. The index stores bare document ids, so term frequency is fixed at
// 1 for every posting; this is a documented limitation of the index format,
// not something the scorer may compensate for.
package scorer

import "math"

// BM25 parameters.
const (
	K1 = 1.5
	B  = 0.75
)

// IDF computes the inverse document frequency for a term occurring in
// docFreq documents out of totalDocs. totalDocs is floored to 1 so an empty
// corpus cannot push the ratio negative.
func IDF(totalDocs, docFreq int64) float64 {
	if totalDocs < 1 {
		totalDocs = 1
	}
	n := float64(docFreq)
	return math.Log((float64(totalDocs)-n+0.5)/(n+0.5) + 1)
}

// Score computes the BM25 contribution of one term to one document.
// docLen of 0 (or negative) is replaced with avgdl, matching the fallback
// for documents whose length is unresolvable.
func Score(idf, docLen, avgdl float64) float64 {
	if docLen <= 0 {
		docLen = avgdl
	}
	// tf = 1, so the numerator reduces to idf*(k1+1) and the tf term in the
	// denominator to 1.
	denominator := 1 + K1*(1-B+B*(docLen/avgdl))
	return idf * (K1 + 1) / denominator
}
