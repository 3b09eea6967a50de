package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/grantsignal/grantsignal/internal/core/domain"
	"github.com/grantsignal/grantsignal/internal/core/ports"
)

const stepParse = "parse"

const notifyFanOutLimit = 4

// ProcessUploadUseCase runs the six-stage pipeline for one uploaded
// document. Stages 1-3 (fetch, parse, persist) are load-bearing and
// propagate; stages 4-6 (vectorize, extract commitments, notify) absorb
// their own failures.
type ProcessUploadUseCase struct {
	docs          ports.DocumentRepository
	compliance    ports.ComplianceRepository
	notifications ports.NotificationRepository
	storage       ports.ObjectStorage
	parser        ports.DocumentParser
	chunker       ports.Chunker
	embedder      ports.Embedder
	vectors       ports.VectorStore
	extractor     ports.CommitmentExtractor
	webhook       ports.WebhookEmitter
	dispatcher    ports.NotificationDispatcher
	steps         ports.StepCache
	logger        *slog.Logger
	now           func() time.Time
}

// Options carries the optional collaborators. A nil VectorStore means
// semantic indexing is not configured and stage 4 is a no-op skip; a
// nil WebhookEmitter or StepCache simply disables that concern.
type Options struct {
	Vectors ports.VectorStore
	Webhook ports.WebhookEmitter
	Steps   ports.StepCache
	Logger  *slog.Logger
	Now     func() time.Time
}

func NewProcessUploadUseCase(
	docs ports.DocumentRepository,
	compliance ports.ComplianceRepository,
	notifications ports.NotificationRepository,
	storage ports.ObjectStorage,
	parser ports.DocumentParser,
	chunker ports.Chunker,
	embedder ports.Embedder,
	extractor ports.CommitmentExtractor,
	dispatcher ports.NotificationDispatcher,
	opts Options,
) *ProcessUploadUseCase {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ProcessUploadUseCase{
		docs:          docs,
		compliance:    compliance,
		notifications: notifications,
		storage:       storage,
		parser:        parser,
		chunker:       chunker,
		embedder:      embedder,
		vectors:       opts.Vectors,
		extractor:     extractor,
		webhook:       opts.Webhook,
		dispatcher:    dispatcher,
		steps:         opts.Steps,
		logger:        logger,
		now:           now,
	}
}

// Process executes the pipeline. The returned error is non-nil only for
// load-bearing failures, which makes the whole job eligible for retry.
func (uc *ProcessUploadUseCase) Process(ctx context.Context, evt domain.UploadedEvent) (domain.PipelineReport, error) {
	report := domain.PipelineReport{DocumentID: evt.DocumentID}

	result, err := uc.fetchAndParse(ctx, evt)
	if err != nil {
		return report, err
	}

	status, confidence, err := uc.persistParseResult(ctx, evt, result)
	if err != nil {
		return report, err
	}
	report.Status = status
	report.Confidence = confidence

	doc, loadErr := uc.docs.GetByID(ctx, evt.OrganizationID, evt.DocumentID)
	if loadErr != nil {
		// The terminal status is already persisted, so the processed
		// event still goes out (built from data in hand); the stages
		// that need the fresh row degrade together.
		uc.logger.Error("reload document after parse", "document_id", evt.DocumentID, "error", loadErr)
		uc.emitProcessed(ctx, evt, nil, status, confidence, result)
		report.Vectorize = domain.SkippedVectorize(domain.SkipStageError, loadErr)
		report.Extraction = domain.SkippedExtraction(domain.SkipStageError, loadErr)
		report.Notify = domain.SkippedNotify(domain.SkipStageError, loadErr)
		return report, nil
	}

	uc.emitProcessed(ctx, evt, doc, status, confidence, result)

	report.Vectorize = uc.vectorize(ctx, doc, result.Text)
	report.Extraction = uc.extractCommitments(ctx, evt)
	report.Notify = uc.notifyMembers(ctx, evt.OrganizationID, evt.DocumentID, status)

	return report, nil
}

// fetchAndParse covers stages 1 and 2. A cached parse result from a
// prior attempt short-circuits both the download and the parse.
func (uc *ProcessUploadUseCase) fetchAndParse(ctx context.Context, evt domain.UploadedEvent) (domain.ParseResult, error) {
	if cached, ok := uc.cachedParse(ctx, evt.DocumentID); ok {
		uc.logger.Info("reusing cached parse result", "document_id", evt.DocumentID)
		return cached, nil
	}

	raw, err := uc.storage.Fetch(ctx, evt.StorageKey)
	if err != nil {
		uc.markFailedFallback(ctx, evt, fmt.Sprintf("Failed to download source file: %v", err))
		return domain.ParseResult{}, domain.WrapError(domain.ErrStorageFetch, "fetch source object", err)
	}

	result, err := uc.parser.Parse(ctx, raw, evt.MimeType)
	if err != nil {
		uc.markFailedFallback(ctx, evt, fmt.Sprintf("Failed to parse document: %v", err))
		return domain.ParseResult{}, domain.WrapError(domain.ErrParse, "parse document", err)
	}

	uc.cacheParse(ctx, evt.DocumentID, result)
	return result, nil
}

// persistParseResult is stage 3: one atomic, tenant-scoped write that
// sets text, confidence, metadata, warnings and the terminal status.
func (uc *ProcessUploadUseCase) persistParseResult(ctx context.Context, evt domain.UploadedEvent, result domain.ParseResult) (domain.ProcessingStatus, int, error) {
	confidence := int(math.Round(result.Confidence))
	status := domain.NextStatus(domain.StatusProcessing, domain.ParseOutcome{Confidence: confidence})

	update := domain.ParseUpdate{
		Status:      status,
		Confidence:  confidence,
		Text:        result.Text,
		Metadata:    domain.DocumentMetadata{WordCount: result.WordCount},
		Warnings:    result.Warnings,
		ProcessedAt: uc.now(),
	}
	if err := uc.docs.UpdateParseResult(ctx, evt.OrganizationID, evt.DocumentID, update); err != nil {
		uc.markFailedFallback(ctx, evt, fmt.Sprintf("Failed to save processing results: %v", err))
		return "", 0, fmt.Errorf("persist parse result: %w", err)
	}
	return status, confidence, nil
}

// markFailedFallback is the best-effort write after a fatal stage. Its
// own failure is logged and swallowed so the original error stays the
// one that propagates.
func (uc *ProcessUploadUseCase) markFailedFallback(ctx context.Context, evt domain.UploadedEvent, warning string) {
	if err := uc.docs.MarkFailed(ctx, evt.OrganizationID, evt.DocumentID, warning); err != nil {
		uc.logger.Error("mark document failed", "document_id", evt.DocumentID, "error", err)
	}
}

// emitProcessed fires the webhook once the parse result is durable. A
// nil doc means the reload failed; name and type are then omitted
// rather than holding the event hostage to a lagging read.
func (uc *ProcessUploadUseCase) emitProcessed(ctx context.Context, evt domain.UploadedEvent, doc *domain.Document, status domain.ProcessingStatus, confidence int, result domain.ParseResult) {
	if uc.webhook == nil {
		return
	}
	processed := domain.ProcessedEvent{
		Type:        domain.NotificationDocumentProcessed,
		DocumentID:  evt.DocumentID,
		Status:      status,
		Confidence:  confidence,
		HasWarnings: len(result.Warnings) > 0,
		ProcessedAt: uc.now(),
	}
	if doc != nil {
		processed.Name = doc.Name
		processed.DocType = doc.Type
	}
	if err := uc.webhook.EmitProcessed(ctx, processed); err != nil {
		uc.logger.Warn("emit processed webhook", "document_id", evt.DocumentID, "error", err)
	}
}

// vectorize is stage 4. Best-effort: the document stays searchable by
// name even if semantic indexing never completes.
func (uc *ProcessUploadUseCase) vectorize(ctx context.Context, doc *domain.Document, text string) domain.VectorizeResult {
	if uc.vectors == nil {
		return domain.SkippedVectorize(domain.SkipNotConfigured, nil)
	}
	if len([]rune(text)) < domain.MinIndexableChars {
		return domain.SkippedVectorize(domain.SkipTextTooShort, nil)
	}

	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return domain.SkippedVectorize(domain.SkipNoChunks, nil)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		uc.logger.Warn("embed chunks", "document_id", doc.ID, "error", err)
		return domain.SkippedVectorize(domain.SkipStageError, err)
	}
	if len(vectors) != len(chunks) {
		err := fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks))
		uc.logger.Warn("embed chunks", "document_id", doc.ID, "error", err)
		return domain.SkippedVectorize(domain.SkipStageError, err)
	}

	ids, err := uc.vectors.UpsertChunks(ctx, doc, chunks, vectors)
	if err != nil {
		uc.logger.Warn("upsert chunk vectors", "document_id", doc.ID, "error", err)
		return domain.SkippedVectorize(domain.SkipStageError, err)
	}

	meta := domain.DocumentMetadata{
		VectorIDs:  ids,
		Vectorized: true,
		ChunkCount: len(chunks),
	}
	if err := uc.docs.MergeMetadata(ctx, doc.OrganizationID, doc.ID, meta); err != nil {
		uc.logger.Warn("merge vector metadata", "document_id", doc.ID, "error", err)
		return domain.SkippedVectorize(domain.SkipStageError, err)
	}

	return domain.VectorizeResult{ChunkCount: len(chunks), VectorIDs: ids}
}

// extractCommitments is stage 5. Two gates: document type must be an
// award letter or agreement, and the linked grant must be awarded.
func (uc *ProcessUploadUseCase) extractCommitments(ctx context.Context, evt domain.UploadedEvent) domain.ExtractionResult {
	doc, grant, err := uc.docs.GetWithGrant(ctx, evt.OrganizationID, evt.DocumentID)
	if err != nil {
		uc.logger.Warn("reload document for extraction", "document_id", evt.DocumentID, "error", err)
		return domain.SkippedExtraction(domain.SkipStageError, err)
	}

	if !doc.Type.CommitmentEligible() {
		return domain.SkippedExtraction(domain.SkipTypeNotEligible, nil)
	}
	if grant == nil || grant.Status != domain.GrantAwarded {
		return domain.SkippedExtraction(domain.SkipGrantNotAwarded, nil)
	}

	text := ""
	if doc.ExtractedText != nil {
		text = *doc.ExtractedText
	}
	commitments, err := uc.extractor.Extract(ctx, doc, grant, text)
	if err != nil {
		uc.logger.Warn("extract commitments", "document_id", doc.ID, "error", err)
		return domain.SkippedExtraction(domain.SkipStageError, err)
	}

	if err := uc.compliance.ReplaceExtractedForDocument(ctx, doc.ID, grant.ID, commitments); err != nil {
		uc.logger.Warn("persist commitments", "document_id", doc.ID, "error", err)
		return domain.SkippedExtraction(domain.SkipStageError, err)
	}

	audit := domain.ComplianceAudit{
		OrganizationID: evt.OrganizationID,
		Action:         domain.AuditActionCommitmentScan,
		Actor:          domain.ExtractedBySystem,
		DocumentID:     doc.ID,
		GrantID:        grant.ID,
		CommitmentCnt:  len(commitments),
		CreatedAt:      uc.now(),
	}
	if err := uc.compliance.InsertAudit(ctx, audit); err != nil {
		uc.logger.Warn("insert compliance audit", "document_id", doc.ID, "error", err)
		return domain.SkippedExtraction(domain.SkipStageError, err)
	}

	return domain.ExtractionResult{CommitmentCount: len(commitments)}
}

// notifyMembers is stage 6: fan out an intent to every opted-in member.
func (uc *ProcessUploadUseCase) notifyMembers(ctx context.Context, organizationID, documentID string, status domain.ProcessingStatus) domain.NotifyResult {
	recipients, err := uc.notifications.ListRecipients(ctx, organizationID)
	if err != nil {
		uc.logger.Warn("list notification recipients", "organization_id", organizationID, "error", err)
		return domain.SkippedNotify(domain.SkipStageError, err)
	}

	var (
		mu         sync.Mutex
		dispatched int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(notifyFanOutLimit)
	for _, r := range recipients {
		if !r.WantsDocumentProcessed() {
			continue
		}
		g.Go(func() error {
			intent := domain.NotificationIntent{
				Type:           domain.NotificationDocumentProcessed,
				OrganizationID: organizationID,
				DocumentID:     documentID,
				UserID:         r.UserID,
				Email:          r.Email,
				Status:         status,
			}
			dispatchErr := uc.dispatcher.Dispatch(gctx, intent)

			logEntry := domain.NotificationLog{
				OrganizationID: organizationID,
				UserID:         r.UserID,
				Type:           domain.NotificationDocumentProcessed,
				Subject:        "Document processing finished",
				Success:        dispatchErr == nil,
				Metadata: map[string]string{
					"document_id": documentID,
					"status":      string(status),
				},
				CreatedAt: uc.now(),
			}
			if dispatchErr != nil {
				logEntry.Error = dispatchErr.Error()
				uc.logger.Warn("dispatch notification intent", "user_id", r.UserID, "error", dispatchErr)
			}
			if err := uc.notifications.InsertLog(gctx, logEntry); err != nil {
				uc.logger.Warn("insert notification log", "user_id", r.UserID, "error", err)
			}

			if dispatchErr == nil {
				mu.Lock()
				dispatched++
				mu.Unlock()
			}
			// Per-recipient failures are recorded, not propagated.
			return nil
		})
	}
	_ = g.Wait()

	return domain.NotifyResult{Dispatched: dispatched}
}

func (uc *ProcessUploadUseCase) cachedParse(ctx context.Context, documentID string) (domain.ParseResult, bool) {
	if uc.steps == nil {
		return domain.ParseResult{}, false
	}
	payload, ok, err := uc.steps.Get(ctx, documentID, stepParse)
	if err != nil {
		uc.logger.Warn("read step cache", "document_id", documentID, "error", err)
		return domain.ParseResult{}, false
	}
	if !ok {
		return domain.ParseResult{}, false
	}
	var result domain.ParseResult
	if err := json.Unmarshal(payload, &result); err != nil {
		uc.logger.Warn("decode cached parse result", "document_id", documentID, "error", err)
		return domain.ParseResult{}, false
	}
	return result, true
}

func (uc *ProcessUploadUseCase) cacheParse(ctx context.Context, documentID string, result domain.ParseResult) {
	if uc.steps == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		uc.logger.Warn("encode parse result for step cache", "document_id", documentID, "error", err)
		return
	}
	if err := uc.steps.Put(ctx, documentID, stepParse, payload); err != nil {
		uc.logger.Warn("write step cache", "document_id", documentID, "error", err)
	}
}
