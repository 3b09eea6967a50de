package usecase

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/grantsignal/grantsignal/internal/core/domain"
	"github.com/grantsignal/grantsignal/internal/core/ports"
)

type docRepoFake struct {
	doc     *domain.Document
	grant   *domain.Grant
	created []*domain.Document

	getErr          error
	getWithGrantErr error
	updateErr       error
	mergeErr        error
	markFailedErr   error

	updates     []domain.ParseUpdate
	merged      []domain.DocumentMetadata
	failedWarns []string
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.created = append(f.created, doc)
	return nil
}

func (f *docRepoFake) GetByID(context.Context, string, string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	copyDoc := *f.doc
	return &copyDoc, nil
}

func (f *docRepoFake) GetWithGrant(context.Context, string, string) (*domain.Document, *domain.Grant, error) {
	if f.getWithGrantErr != nil {
		return nil, nil, f.getWithGrantErr
	}
	copyDoc := *f.doc
	if f.grant == nil {
		return &copyDoc, nil, nil
	}
	copyGrant := *f.grant
	return &copyDoc, &copyGrant, nil
}

func (f *docRepoFake) UpdateParseResult(_ context.Context, _, _ string, update domain.ParseUpdate) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, update)
	return nil
}

func (f *docRepoFake) MergeMetadata(_ context.Context, _, _ string, meta domain.DocumentMetadata) error {
	if f.mergeErr != nil {
		return f.mergeErr
	}
	f.merged = append(f.merged, meta)
	return nil
}

func (f *docRepoFake) MarkFailed(_ context.Context, _, _ string, warning string) error {
	f.failedWarns = append(f.failedWarns, warning)
	return f.markFailedErr
}

type complianceFake struct {
	replaceErr error
	auditErr   error

	replaced [][]domain.Commitment
	audits   []domain.ComplianceAudit
}

func (f *complianceFake) ReplaceExtractedForDocument(_ context.Context, _, _ string, commitments []domain.Commitment) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced = append(f.replaced, commitments)
	return nil
}

func (f *complianceFake) InsertAudit(_ context.Context, audit domain.ComplianceAudit) error {
	if f.auditErr != nil {
		return f.auditErr
	}
	f.audits = append(f.audits, audit)
	return nil
}

type notificationRepoFake struct {
	mu         sync.Mutex
	recipients []domain.Recipient
	listErr    error
	logs       []domain.NotificationLog
}

func (f *notificationRepoFake) ListRecipients(context.Context, string) ([]domain.Recipient, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.recipients, nil
}

func (f *notificationRepoFake) InsertLog(_ context.Context, logEntry domain.NotificationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, logEntry)
	return nil
}

func (f *notificationRepoFake) ListLogs(context.Context, string, int) ([]domain.NotificationLog, error) {
	return nil, nil
}

type storageFake struct {
	data       []byte
	fetchErr   error
	saveErr    error
	fetchCalls int
	savedKeys  []string
}

func (f *storageFake) Save(_ context.Context, key string, _ io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.savedKeys = append(f.savedKeys, key)
	return nil
}

func (f *storageFake) Fetch(context.Context, string) ([]byte, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.data, nil
}

type parserFake struct {
	result domain.ParseResult
	err    error
}

func (f *parserFake) Parse(context.Context, []byte, string) (domain.ParseResult, error) {
	if f.err != nil {
		return domain.ParseResult{}, f.err
	}
	return f.result, nil
}

type chunkerFake struct {
	chunks []ports.Chunk
}

func (f *chunkerFake) Split(string) []ports.Chunk { return f.chunks }

type embedderFake struct {
	vectors [][]float32
	err     error
}

func (f *embedderFake) Embed(context.Context, []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

type vectorStoreFake struct {
	ids []string
	err error
}

func (f *vectorStoreFake) UpsertChunks(context.Context, *domain.Document, []ports.Chunk, [][]float32) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ids, nil
}

type commitmentExtractorFake struct {
	commitments []domain.Commitment
	err         error
}

func (f *commitmentExtractorFake) Extract(context.Context, *domain.Document, *domain.Grant, string) ([]domain.Commitment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.commitments, nil
}

type dispatcherFake struct {
	mu      sync.Mutex
	err     error
	intents []domain.NotificationIntent
}

func (f *dispatcherFake) Dispatch(_ context.Context, intent domain.NotificationIntent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.intents = append(f.intents, intent)
	return nil
}

type webhookFake struct {
	err    error
	events []domain.ProcessedEvent
}

func (f *webhookFake) EmitProcessed(_ context.Context, evt domain.ProcessedEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, evt)
	return nil
}

type stepCacheFake struct {
	entries map[string][]byte
	puts    int
}

func (f *stepCacheFake) Get(_ context.Context, documentID, step string) ([]byte, bool, error) {
	payload, ok := f.entries[documentID+"/"+step]
	return payload, ok, nil
}

func (f *stepCacheFake) Put(_ context.Context, documentID, step string, payload []byte) error {
	if f.entries == nil {
		f.entries = map[string][]byte{}
	}
	f.entries[documentID+"/"+step] = payload
	f.puts++
	return nil
}

type pipelineFixture struct {
	docs          *docRepoFake
	compliance    *complianceFake
	notifications *notificationRepoFake
	storage       *storageFake
	parser        *parserFake
	chunker       *chunkerFake
	embedder      *embedderFake
	vectors       *vectorStoreFake
	extractor     *commitmentExtractorFake
	dispatcher    *dispatcherFake
}

func longText() string {
	return strings.Repeat("grant deliverables due each quarter ", 10)
}

func optedIn() *domain.NotificationPreferences {
	return &domain.NotificationPreferences{DocumentProcessed: true}
}

func newPipelineFixture() *pipelineFixture {
	text := longText()
	return &pipelineFixture{
		docs: &docRepoFake{
			doc: &domain.Document{
				ID:             "doc-1",
				OrganizationID: "org-1",
				Name:           "award.pdf",
				Type:           domain.TypeAwardLetter,
				ExtractedText:  &text,
			},
			grant: &domain.Grant{ID: "grant-1", Status: domain.GrantAwarded},
		},
		compliance: &complianceFake{},
		notifications: &notificationRepoFake{
			recipients: []domain.Recipient{
				{UserID: "user-1", Email: "one@example.org", Preferences: optedIn()},
			},
		},
		storage: &storageFake{data: []byte("raw bytes")},
		parser: &parserFake{result: domain.ParseResult{
			Text:       text,
			Confidence: 82.4,
			WordCount:  60,
		}},
		chunker:    &chunkerFake{chunks: []ports.Chunk{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}}},
		embedder:   &embedderFake{vectors: [][]float32{{1}, {2}}},
		vectors:    &vectorStoreFake{ids: []string{"v-0", "v-1"}},
		extractor:  &commitmentExtractorFake{commitments: []domain.Commitment{{Description: "submit Q1 report"}}},
		dispatcher: &dispatcherFake{},
	}
}

func (fx *pipelineFixture) build(opts Options) *ProcessUploadUseCase {
	if opts.Vectors == nil && fx.vectors != nil {
		opts.Vectors = fx.vectors
	}
	return NewProcessUploadUseCase(
		fx.docs, fx.compliance, fx.notifications,
		fx.storage, fx.parser, fx.chunker, fx.embedder, fx.extractor, fx.dispatcher,
		opts,
	)
}

func uploadEvent() domain.UploadedEvent {
	return domain.UploadedEvent{
		DocumentID:     "doc-1",
		OrganizationID: "org-1",
		StorageKey:     "org-1/doc-1_award.pdf",
		MimeType:       "application/pdf",
		EnqueuedAt:     time.Now().UTC(),
	}
}

func TestProcessFullPipelineSuccess(t *testing.T) {
	fx := newPipelineFixture()
	uc := fx.build(Options{})

	report, err := uc.Process(context.Background(), uploadEvent())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if report.Status != domain.StatusCompleted {
		t.Fatalf("expected completed status, got %s", report.Status)
	}
	if report.Confidence != 82 {
		t.Fatalf("expected confidence rounded to 82, got %d", report.Confidence)
	}

	if len(fx.docs.updates) != 1 {
		t.Fatalf("expected one parse-result write, got %d", len(fx.docs.updates))
	}
	update := fx.docs.updates[0]
	if update.Status != domain.StatusCompleted || update.Confidence != 82 {
		t.Fatalf("unexpected persisted update: %+v", update)
	}

	if report.Vectorize.Skip != nil {
		t.Fatalf("expected vectorize to run, skipped: %+v", report.Vectorize.Skip)
	}
	if len(fx.docs.merged) != 1 || !fx.docs.merged[0].Vectorized || fx.docs.merged[0].ChunkCount != 2 {
		t.Fatalf("unexpected merged metadata: %+v", fx.docs.merged)
	}

	if report.Extraction.Skip != nil {
		t.Fatalf("expected extraction to run, skipped: %+v", report.Extraction.Skip)
	}
	if len(fx.compliance.replaced) != 1 || len(fx.compliance.audits) != 1 {
		t.Fatalf("expected commitments replaced and audit written, got %d/%d",
			len(fx.compliance.replaced), len(fx.compliance.audits))
	}
	audit := fx.compliance.audits[0]
	if audit.Actor != domain.ExtractedBySystem || audit.CommitmentCnt != 1 {
		t.Fatalf("unexpected audit entry: %+v", audit)
	}

	if report.Notify.Dispatched != 1 {
		t.Fatalf("expected 1 dispatched notification, got %d", report.Notify.Dispatched)
	}
	if len(fx.notifications.logs) != 1 || !fx.notifications.logs[0].Success {
		t.Fatalf("unexpected notification logs: %+v", fx.notifications.logs)
	}
}

func TestProcessLowConfidenceNeedsReview(t *testing.T) {
	fx := newPipelineFixture()
	fx.parser.result.Confidence = 69.4
	uc := fx.build(Options{})

	report, err := uc.Process(context.Background(), uploadEvent())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if report.Status != domain.StatusNeedsReview {
		t.Fatalf("expected needs_review, got %s", report.Status)
	}
	if report.Confidence != 69 {
		t.Fatalf("expected confidence 69, got %d", report.Confidence)
	}
}

func TestProcessConfidenceRoundsUpAcrossThreshold(t *testing.T) {
	fx := newPipelineFixture()
	fx.parser.result.Confidence = 69.5
	uc := fx.build(Options{})

	report, err := uc.Process(context.Background(), uploadEvent())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if report.Status != domain.StatusCompleted || report.Confidence != 70 {
		t.Fatalf("expected completed at 70, got %s/%d", report.Status, report.Confidence)
	}
}

func TestProcessFetchErrorMarksFailed(t *testing.T) {
	fx := newPipelineFixture()
	fx.storage.fetchErr = errors.New("bucket unreachable")
	uc := fx.build(Options{})

	_, err := uc.Process(context.Background(), uploadEvent())
	if !domain.IsKind(err, domain.ErrStorageFetch) {
		t.Fatalf("expected storage-fetch error, got %v", err)
	}
	if len(fx.docs.failedWarns) != 1 || !strings.Contains(fx.docs.failedWarns[0], "Failed to download") {
		t.Fatalf("expected failed-download warning, got %+v", fx.docs.failedWarns)
	}
	if len(fx.docs.updates) != 0 {
		t.Fatalf("expected no parse-result write after fetch failure")
	}
}

func TestProcessParseErrorMarksFailed(t *testing.T) {
	fx := newPipelineFixture()
	fx.parser.err = errors.New("corrupt file")
	uc := fx.build(Options{})

	_, err := uc.Process(context.Background(), uploadEvent())
	if !domain.IsKind(err, domain.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if len(fx.docs.failedWarns) != 1 || !strings.Contains(fx.docs.failedWarns[0], "Failed to parse") {
		t.Fatalf("expected failed-parse warning, got %+v", fx.docs.failedWarns)
	}
}

func TestProcessPersistErrorPropagatesEvenIfFallbackFails(t *testing.T) {
	fx := newPipelineFixture()
	fx.docs.updateErr = errors.New("deadlock detected")
	fx.docs.markFailedErr = errors.New("connection lost")
	uc := fx.build(Options{})

	_, err := uc.Process(context.Background(), uploadEvent())
	if err == nil || !strings.Contains(err.Error(), "deadlock detected") {
		t.Fatalf("expected the persist error to propagate, got %v", err)
	}
}

func TestProcessVectorizeNotConfigured(t *testing.T) {
	fx := newPipelineFixture()
	fx.vectors = nil
	uc := fx.build(Options{})

	report, err := uc.Process(context.Background(), uploadEvent())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if report.Vectorize.Skip == nil || report.Vectorize.Skip.Reason != domain.SkipNotConfigured {
		t.Fatalf("expected not_configured skip, got %+v", report.Vectorize)
	}
}

func TestProcessVectorizeSkipsShortText(t *testing.T) {
	fx := newPipelineFixture()
	fx.parser.result.Text = "too short to embed"
	uc := fx.build(Options{})

	report, err := uc.Process(context.Background(), uploadEvent())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if report.Vectorize.Skip == nil || report.Vectorize.Skip.Reason != domain.SkipTextTooShort {
		t.Fatalf("expected text_too_short skip, got %+v", report.Vectorize)
	}
	if len(fx.docs.merged) != 0 {
		t.Fatalf("expected no metadata merge for skipped vectorize")
	}
}

func TestProcessVectorizeAbsorbsEmbedError(t *testing.T) {
	fx := newPipelineFixture()
	fx.embedder.err = errors.New("model overloaded")
	uc := fx.build(Options{})

	report, err := uc.Process(context.Background(), uploadEvent())
	if err != nil {
		t.Fatalf("embed failure must not fail the job, got %v", err)
	}
	if report.Vectorize.Skip == nil || report.Vectorize.Skip.Reason != domain.SkipStageError {
		t.Fatalf("expected stage_error skip, got %+v", report.Vectorize)
	}
	if report.Status != domain.StatusCompleted {
		t.Fatalf("document status must stay completed, got %s", report.Status)
	}
}

func TestProcessExtractionSkipsIneligibleType(t *testing.T) {
	fx := newPipelineFixture()
	fx.docs.doc.Type = domain.TypeReport
	uc := fx.build(Options{})

	report, err := uc.Process(context.Background(), uploadEvent())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if report.Extraction.Skip == nil || report.Extraction.Skip.Reason != domain.SkipTypeNotEligible {
		t.Fatalf("expected type_not_eligible skip, got %+v", report.Extraction)
	}
	if len(fx.compliance.replaced) != 0 {
		t.Fatalf("extractor must not run for ineligible types")
	}
}

func TestProcessExtractionSkipsUnawardedGrant(t *testing.T) {
	fx := newPipelineFixture()
	fx.docs.grant.Status = domain.GrantApplied
	uc := fx.build(Options{})

	report, err := uc.Process(context.Background(), uploadEvent())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if report.Extraction.Skip == nil || report.Extraction.Skip.Reason != domain.SkipGrantNotAwarded {
		t.Fatalf("expected grant_not_awarded skip, got %+v", report.Extraction)
	}
}

func TestProcessExtractionSkipsMissingGrant(t *testing.T) {
	fx := newPipelineFixture()
	fx.docs.grant = nil
	uc := fx.build(Options{})

	report, err := uc.Process(context.Background(), uploadEvent())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if report.Extraction.Skip == nil || report.Extraction.Skip.Reason != domain.SkipGrantNotAwarded {
		t.Fatalf("expected grant_not_awarded skip, got %+v", report.Extraction)
	}
}

func TestProcessNotifyHonorsPreferences(t *testing.T) {
	fx := newPipelineFixture()
	fx.notifications.recipients = []domain.Recipient{
		{UserID: "user-1", Email: "one@example.org", Preferences: optedIn()},
		{UserID: "user-2", Email: "two@example.org", Preferences: &domain.NotificationPreferences{}},
		{UserID: "user-3", Email: "three@example.org"},
	}
	uc := fx.build(Options{})

	report, err := uc.Process(context.Background(), uploadEvent())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if report.Notify.Dispatched != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", report.Notify.Dispatched)
	}
	if len(fx.dispatcher.intents) != 1 || fx.dispatcher.intents[0].UserID != "user-1" {
		t.Fatalf("unexpected dispatched intents: %+v", fx.dispatcher.intents)
	}
}

func TestProcessNotifyRecordsDispatchFailure(t *testing.T) {
	fx := newPipelineFixture()
	fx.dispatcher.err = errors.New("broker down")
	uc := fx.build(Options{})

	report, err := uc.Process(context.Background(), uploadEvent())
	if err != nil {
		t.Fatalf("dispatch failure must not fail the job, got %v", err)
	}
	if report.Notify.Dispatched != 0 {
		t.Fatalf("expected zero dispatched, got %d", report.Notify.Dispatched)
	}
	if len(fx.notifications.logs) != 1 || fx.notifications.logs[0].Success {
		t.Fatalf("expected one failed delivery log, got %+v", fx.notifications.logs)
	}
}

func TestProcessReusesCachedParseResult(t *testing.T) {
	fx := newPipelineFixture()
	steps := &stepCacheFake{entries: map[string][]byte{
		"doc-1/parse": []byte(`{"text":"` + longText() + `","confidence":91,"word_count":60}`),
	}}
	uc := fx.build(Options{Steps: steps})

	report, err := uc.Process(context.Background(), uploadEvent())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if fx.storage.fetchCalls != 0 {
		t.Fatalf("cached parse result must skip the blob fetch, got %d fetches", fx.storage.fetchCalls)
	}
	if report.Confidence != 91 {
		t.Fatalf("expected cached confidence 91, got %d", report.Confidence)
	}
}

func TestProcessReloadFailureDegradesBestEffortStages(t *testing.T) {
	fx := newPipelineFixture()
	fx.docs.getErr = errors.New("replica lagging")
	uc := fx.build(Options{})

	report, err := uc.Process(context.Background(), uploadEvent())
	if err != nil {
		t.Fatalf("reload failure must not fail the job, got %v", err)
	}
	for name, skip := range map[string]*domain.StageSkip{
		"vectorize":  report.Vectorize.Skip,
		"extraction": report.Extraction.Skip,
		"notify":     report.Notify.Skip,
	} {
		if skip == nil || skip.Reason != domain.SkipStageError {
			t.Fatalf("expected %s stage_error skip, got %+v", name, skip)
		}
	}
}

func TestProcessReloadFailureStillEmitsWebhook(t *testing.T) {
	fx := newPipelineFixture()
	fx.docs.getErr = errors.New("replica lagging")
	webhook := &webhookFake{}
	uc := fx.build(Options{Webhook: webhook})

	report, err := uc.Process(context.Background(), uploadEvent())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(webhook.events) != 1 {
		t.Fatalf("persisted parse result must emit the processed event, got %d", len(webhook.events))
	}
	evt := webhook.events[0]
	if evt.DocumentID != "doc-1" || evt.Status != report.Status || evt.Confidence != report.Confidence {
		t.Fatalf("unexpected processed event: %+v", evt)
	}
	if evt.Name != "" {
		t.Fatalf("name is unknown without the reload, got %q", evt.Name)
	}
}

func TestProcessWebhookCarriesDocumentFields(t *testing.T) {
	fx := newPipelineFixture()
	webhook := &webhookFake{}
	uc := fx.build(Options{Webhook: webhook})

	if _, err := uc.Process(context.Background(), uploadEvent()); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(webhook.events) != 1 {
		t.Fatalf("expected one processed event, got %d", len(webhook.events))
	}
	evt := webhook.events[0]
	if evt.Name != "award.pdf" || evt.DocType != domain.TypeAwardLetter {
		t.Fatalf("unexpected processed event: %+v", evt)
	}
}

func TestProcessRerunProducesIdenticalWrite(t *testing.T) {
	fx := newPipelineFixture()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	uc := fx.build(Options{Now: func() time.Time { return fixed }})

	evt := uploadEvent()
	if _, err := uc.Process(context.Background(), evt); err != nil {
		t.Fatalf("first run error = %v", err)
	}
	if _, err := uc.Process(context.Background(), evt); err != nil {
		t.Fatalf("second run error = %v", err)
	}

	if len(fx.docs.updates) != 2 {
		t.Fatalf("expected one parse-result write per run, got %d", len(fx.docs.updates))
	}
	if !reflect.DeepEqual(fx.docs.updates[0], fx.docs.updates[1]) {
		t.Fatalf("re-run wrote a different result:\nfirst:  %+v\nsecond: %+v",
			fx.docs.updates[0], fx.docs.updates[1])
	}
	if !reflect.DeepEqual(fx.docs.merged[0], fx.docs.merged[1]) {
		t.Fatalf("re-run merged different metadata: %+v", fx.docs.merged)
	}
	// Commitments replace rather than accumulate across runs.
	if len(fx.compliance.replaced) != 2 || !reflect.DeepEqual(fx.compliance.replaced[0], fx.compliance.replaced[1]) {
		t.Fatalf("unexpected commitment writes: %+v", fx.compliance.replaced)
	}
}
