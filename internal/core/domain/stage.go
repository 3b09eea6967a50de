package domain

// Best-effort stages never propagate errors. Their outcome is a tagged
// result: either work happened, or Skip explains why it did not.

type SkipReason string

const (
	SkipNotConfigured   SkipReason = "not_configured"
	SkipTextTooShort    SkipReason = "text_too_short"
	SkipNoChunks        SkipReason = "no_chunks"
	SkipTypeNotEligible SkipReason = "type_not_eligible"
	SkipGrantNotAwarded SkipReason = "grant_not_awarded"
	SkipStageError      SkipReason = "stage_error"
)

type StageSkip struct {
	Reason SkipReason `json:"reason"`
	Error  string     `json:"error,omitempty"`
}

type VectorizeResult struct {
	Skip       *StageSkip `json:"skip,omitempty"`
	ChunkCount int        `json:"chunk_count,omitempty"`
	VectorIDs  []string   `json:"vector_ids,omitempty"`
}

func (r VectorizeResult) Indexed() bool { return r.Skip == nil }

type ExtractionResult struct {
	Skip            *StageSkip `json:"skip,omitempty"`
	CommitmentCount int        `json:"commitment_count,omitempty"`
}

func (r ExtractionResult) Extracted() bool { return r.Skip == nil }

type NotifyResult struct {
	Skip       *StageSkip `json:"skip,omitempty"`
	Dispatched int        `json:"dispatched"`
}

// PipelineReport is the per-job diagnostic summary. The document row
// carries the user-visible state; this is for logs and metrics only.
type PipelineReport struct {
	DocumentID string           `json:"document_id"`
	Status     ProcessingStatus `json:"status"`
	Confidence int              `json:"confidence"`
	Vectorize  VectorizeResult  `json:"vectorize"`
	Extraction ExtractionResult `json:"extraction"`
	Notify     NotifyResult     `json:"notify"`
}

func skipFor(reason SkipReason, err error) *StageSkip {
	s := &StageSkip{Reason: reason}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

func SkippedVectorize(reason SkipReason, err error) VectorizeResult {
	return VectorizeResult{Skip: skipFor(reason, err)}
}

func SkippedExtraction(reason SkipReason, err error) ExtractionResult {
	return ExtractionResult{Skip: skipFor(reason, err)}
}

func SkippedNotify(reason SkipReason, err error) NotifyResult {
	return NotifyResult{Skip: skipFor(reason, err)}
}
