package domain

import "testing"

func TestNextStatusThreshold(t *testing.T) {
	cases := []struct {
		name    string
		current ProcessingStatus
		outcome ParseOutcome
		want    ProcessingStatus
	}{
		{"at threshold completes", StatusProcessing, ParseOutcome{Confidence: 70}, StatusCompleted},
		{"below threshold needs review", StatusProcessing, ParseOutcome{Confidence: 69}, StatusNeedsReview},
		{"zero confidence needs review", StatusProcessing, ParseOutcome{Confidence: 0}, StatusNeedsReview},
		{"failure wins over confidence", StatusProcessing, ParseOutcome{Failed: true, Confidence: 95}, StatusFailed},
		{"pending can fail directly", StatusPending, ParseOutcome{Failed: true}, StatusFailed},
		{"completed is terminal", StatusCompleted, ParseOutcome{Failed: true}, StatusCompleted},
		{"needs_review is terminal", StatusNeedsReview, ParseOutcome{Confidence: 99}, StatusNeedsReview},
		{"failed is terminal", StatusFailed, ParseOutcome{Confidence: 99}, StatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextStatus(tc.current, tc.outcome); got != tc.want {
				t.Fatalf("NextStatus(%s, %+v) = %s, want %s", tc.current, tc.outcome, got, tc.want)
			}
		})
	}
}

func TestMetadataMergeKeepsParseFields(t *testing.T) {
	base := DocumentMetadata{WordCount: 120}
	merged := base.Merge(DocumentMetadata{
		VectorIDs:  []string{"a", "b"},
		Vectorized: true,
		ChunkCount: 2,
	})

	if merged.WordCount != 120 {
		t.Fatalf("word count lost in merge: %+v", merged)
	}
	if !merged.Vectorized || merged.ChunkCount != 2 || len(merged.VectorIDs) != 2 {
		t.Fatalf("vector fields not merged: %+v", merged)
	}
}

func TestMetadataMergeIgnoresZeroValues(t *testing.T) {
	base := DocumentMetadata{WordCount: 120, Vectorized: true, ChunkCount: 3}
	merged := base.Merge(DocumentMetadata{})
	if merged.WordCount != 120 || !merged.Vectorized || merged.ChunkCount != 3 {
		t.Fatalf("zero-value merge must be a no-op, got %+v", merged)
	}
}

func TestCommitmentEligible(t *testing.T) {
	eligible := map[DocumentType]bool{
		TypeAwardLetter: true,
		TypeAgreement:   true,
		TypeApplication: false,
		TypeReport:      false,
		TypeOther:       false,
	}
	for docType, want := range eligible {
		if got := docType.CommitmentEligible(); got != want {
			t.Fatalf("%s.CommitmentEligible() = %v, want %v", docType, got, want)
		}
	}
}

func TestValidDocumentType(t *testing.T) {
	if !ValidDocumentType(TypeBudget) {
		t.Fatalf("budget must be a valid type")
	}
	if ValidDocumentType("spreadsheet") {
		t.Fatalf("unknown type must be rejected")
	}
}
