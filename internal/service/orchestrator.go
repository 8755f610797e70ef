package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mirae/stylegen/internal/domain"
	"github.com/mirae/stylegen/internal/logger"
	"github.com/mirae/stylegen/internal/session"
)

// promptGenerator produces Midjourney prompts from a reference image.
type promptGenerator interface {
	Generate(ctx context.Context, in *GenerateInput) (*GenerateResult, error)
}

// promptRelayer submits generated prompts to the image service.
type promptRelayer interface {
	RelayBatch(ctx context.Context, promptList []string, imageBase64 string,
		creds *domain.DiscordCredentials, onProgress RelayProgressFunc, sessionID string) (*RelayOutcome, error)
}

// referenceArchiver stores a copy of the uploaded reference image and
// returns a durable URL. Optional; a nil archiver disables archiving.
type referenceArchiver interface {
	ArchiveReference(ctx context.Context, sessionID, jobID, imageBase64, fileName string) (string, error)
}

// batchRecorder persists the finished batch for the history endpoints.
// Optional; a nil recorder disables persistence.
type batchRecorder interface {
	SaveBatch(ctx context.Context, summary *domain.BatchSummary, jobs []domain.Job) error
}

// Orchestrator runs batches: one goroutine per batch, jobs strictly
// sequential inside it. Progress flows out through the broadcaster,
// cancellation flows in through the abort registry. A failed job never
// stops the batch; only an abort does.
type Orchestrator struct {
	gen         promptGenerator
	relayer     promptRelayer
	archiver    referenceArchiver
	recorder    batchRecorder
	abort       *session.AbortRegistry
	broadcaster *session.Broadcaster
	itemDelay   time.Duration
	maxItems    int
}

// OrchestratorConfig holds batch processing configuration.
type OrchestratorConfig struct {
	ItemDelay time.Duration // pause between jobs
	MaxItems  int           // per-batch job cap
}

// NewOrchestrator creates a new batch orchestrator. Archiver and
// recorder may be nil.
func NewOrchestrator(
	gen promptGenerator,
	relayer promptRelayer,
	archiver referenceArchiver,
	recorder batchRecorder,
	abort *session.AbortRegistry,
	broadcaster *session.Broadcaster,
	cfg *OrchestratorConfig,
) *Orchestrator {
	o := &Orchestrator{
		gen:         gen,
		relayer:     relayer,
		archiver:    archiver,
		recorder:    recorder,
		abort:       abort,
		broadcaster: broadcaster,
	}
	if cfg != nil {
		o.itemDelay = cfg.ItemDelay
		o.maxItems = cfg.MaxItems
	}
	if o.itemDelay <= 0 {
		o.itemDelay = 500 * time.Millisecond
	}
	if o.maxItems <= 0 {
		o.maxItems = 30
	}
	return o
}

// BatchRequest is one batch invocation.
type BatchRequest struct {
	SessionID   string
	Jobs        []domain.Job
	EnableRelay bool
	FastMode    bool // append the --fast hint to prompts before relay
	Credentials *domain.DiscordCredentials
}

// Validate checks the request before a batch goroutine is started.
func (o *Orchestrator) Validate(req *BatchRequest) error {
	if req.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if len(req.Jobs) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	if len(req.Jobs) > o.maxItems {
		return fmt.Errorf("too many items: %d exceeds the limit of %d", len(req.Jobs), o.maxItems)
	}
	for i := range req.Jobs {
		if req.Jobs[i].ImageBase64 == "" {
			return fmt.Errorf("item %d has no image data", i+1)
		}
	}
	// Relay credentials are not validated here. A missing token is a
	// per-job relay failure discovered at connect time; the batch still
	// runs and returns the generated prompts.
	return nil
}

// Run processes the batch to completion or abort. The abort flag for
// the session is always cleared on exit, whatever path led there, so a
// stale flag can never poison the next batch on the same session.
func (o *Orchestrator) Run(ctx context.Context, req *BatchRequest) *domain.BatchSummary {
	ctx = logger.SetSessionID(ctx, req.SessionID)
	defer o.abort.Clear(req.SessionID)

	summary := &domain.BatchSummary{
		SessionID:    req.SessionID,
		RelayEnabled: req.EnableRelay,
		StartedAt:    time.Now(),
	}
	total := len(req.Jobs)

	logger.CtxInfo(ctx, "Batch started: %d items, relay=%t", total, req.EnableRelay)
	o.publish(req.SessionID, domain.ProgressEvent{
		Type:   domain.EventBatchStarted,
		Total:  total,
		Status: fmt.Sprintf("Starting batch of %d items", total),
	})

	for i := range req.Jobs {
		job := &req.Jobs[i]

		// Re-checked before every job so an abort lands between jobs,
		// never mid-generation.
		if o.abort.ShouldAbort(req.SessionID) {
			summary.Aborted = true
			summary.AbortedAt = len(summary.Results)
			logger.CtxInfo(ctx, "Batch aborted after %d/%d items", summary.AbortedAt, total)
			break
		}

		jobCtx := logger.SetJobID(ctx, job.ID)
		o.publish(req.SessionID, domain.ProgressEvent{
			Type:        domain.EventProgressUpdate,
			Total:       total,
			Completed:   len(summary.Results),
			Processing:  1,
			Status:      fmt.Sprintf("Processing item %d/%d", i+1, total),
			CurrentItem: currentItemOf(job),
		})

		result, aborted := o.processJob(jobCtx, req, job, i+1, total)
		if aborted {
			summary.Aborted = true
			summary.AbortedAt = len(summary.Results)
			break
		}

		summary.Results = append(summary.Results, *result)
		if result.Success {
			summary.SuccessCount++
		} else {
			summary.ErrorCount++
		}

		kind := domain.EventItemCompleted
		if !result.Success {
			kind = domain.EventItemFailed
		}
		o.publish(req.SessionID, domain.ProgressEvent{
			Type:        kind,
			Total:       total,
			Completed:   len(summary.Results),
			Processing:  0,
			CurrentItem: currentItemOf(job),
			ItemResult:  result,
		})

		if i < total-1 {
			select {
			case <-time.After(o.itemDelay):
			case <-ctx.Done():
			}
		}
	}

	if summary.Aborted {
		o.publish(req.SessionID, domain.ProgressEvent{
			Type:         domain.EventBatchAborted,
			Total:        total,
			Completed:    len(summary.Results),
			Status:       "Batch aborted by user",
			SuccessCount: summary.SuccessCount,
			ErrorCount:   summary.ErrorCount,
			AbortedAt:    summary.AbortedAt,
		})
	} else {
		o.publish(req.SessionID, domain.ProgressEvent{
			Type:         domain.EventBatchCompleted,
			Total:        total,
			Completed:    len(summary.Results),
			Status:       fmt.Sprintf("Batch completed: %d succeeded, %d failed", summary.SuccessCount, summary.ErrorCount),
			SuccessCount: summary.SuccessCount,
			ErrorCount:   summary.ErrorCount,
		})
	}

	logger.With(logger.Fields{
		"total":         total,
		"success_count": summary.SuccessCount,
		"error_count":   summary.ErrorCount,
		"aborted":       summary.Aborted,
	}).Info(ctx, "Batch finished")

	summary.FinishedAt = time.Now()
	if o.recorder != nil {
		if err := o.recorder.SaveBatch(ctx, summary, req.Jobs); err != nil {
			logger.CtxWarn(ctx, "Failed to persist batch history: %v", err)
		}
	}

	return summary
}

// processJob runs one job end to end. Panics inside the pipeline are
// converted to a failed result so one bad item cannot kill the batch
// goroutine. The aborted return is true only when the relay stage
// observed the abort flag mid-job.
func (o *Orchestrator) processJob(ctx context.Context, req *BatchRequest, job *domain.Job, index, total int) (result *domain.JobResult, aborted bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.CtxError(ctx, "Panic while processing item %d/%d: %v", index, total, r)
			result = &domain.JobResult{
				ID:        job.ID,
				Success:   false,
				Error:     fmt.Sprintf("internal error: %v", r),
				ErrorKind: domain.ErrKindGeneration,
			}
			aborted = false
		}
	}()

	result = &domain.JobResult{ID: job.ID}

	gen, err := o.gen.Generate(ctx, &GenerateInput{
		ImageBase64: job.ImageBase64,
		Part:        job.EffectivePart(),
		PromptType:  job.PromptType,
		Gender:      job.GenderType,
		Guidance:    job.Guidance,
		FileName:    job.FileName,
	})
	if err != nil {
		logger.CtxWarn(ctx, "Generation failed for item %d/%d: %v", index, total, err)
		result.Error = err.Error()
		result.ErrorKind = domain.KindForError(err)
		if gen != nil {
			result.Prompt = gen.RawText
		}
		return result, false
	}

	result.Prompt = gen.RawText
	result.MidjourneyPrompts = gen.Prompts
	result.OutfitNames = gen.Names

	if o.archiver != nil {
		if url, aerr := o.archiver.ArchiveReference(ctx, req.SessionID, job.ID, job.ImageBase64, job.FileName); aerr != nil {
			logger.CtxDebug(ctx, "Reference archive skipped: %v", aerr)
		} else {
			result.ArchiveURL = url
		}
	}

	if !req.EnableRelay {
		result.Success = true
		return result, false
	}

	o.publish(req.SessionID, domain.ProgressEvent{
		Type:        domain.EventOpenAIComplete,
		Total:       total,
		Completed:   index - 1,
		Processing:  1,
		Status:      fmt.Sprintf("Prompts ready for item %d/%d, sending to Midjourney", index, total),
		CurrentItem: currentItemOf(job),
	})

	relayPrompts := gen.Prompts
	if req.FastMode {
		relayPrompts = withFastHint(relayPrompts)
	}

	outcome, err := o.relayer.RelayBatch(ctx, relayPrompts, job.ImageBase64, req.Credentials,
		o.relayProgressFunc(req.SessionID, job, index, total), req.SessionID)
	if outcome != nil {
		// Merged even when the relay errored out partway: every prompt
		// already attempted keeps its entry.
		result.MidjourneyResults = outcome.Results
		result.CDNImageURL = outcome.CDNImageURL
	}
	if err != nil {
		// Connect-stage or cancellation failure: the prompts survive in
		// the result so the caller can relay them manually.
		logger.CtxWarn(ctx, "Relay failed for item %d/%d: %v", index, total, err)
		result.Error = err.Error()
		result.ErrorKind = domain.KindForError(err)
		if result.ErrorKind == domain.ErrKindGeneration {
			result.ErrorKind = domain.ErrKindRelayFailed
		}
		return result, false
	}

	if outcome.Aborted {
		return result, true
	}

	result.Success = true
	return result, false
}

// relayProgressFunc bridges relay callbacks onto the progress stream.
func (o *Orchestrator) relayProgressFunc(sessionID string, job *domain.Job, index, total int) RelayProgressFunc {
	return func(promptIndex, totalPrompts int, status string, detail *domain.ErrorDetail) {
		event := domain.ProgressEvent{
			Type:        domain.EventMidjourneyProgress,
			Total:       total,
			Completed:   index - 1,
			Processing:  1,
			Status:      status,
			CurrentItem: currentItemOf(job),
			MidjourneyProgress: &domain.RelayProgress{
				PromptIndex:  promptIndex,
				TotalPrompts: totalPrompts,
				Status:       status,
			},
		}
		if detail != nil {
			event.Type = domain.EventMidjourneyFailed
			if detail.ErrorType == string(domain.EventMidjourneyTimeout) {
				event.Type = domain.EventMidjourneyTimeout
			}
			event.Details = detail
		}
		o.publish(sessionID, event)
	}
}

func (o *Orchestrator) publish(sessionID string, event domain.ProgressEvent) {
	o.broadcaster.Publish(sessionID, event)
}

// withFastHint appends the Midjourney --fast flag to each prompt that
// doesn't already carry it.
func withFastHint(promptList []string) []string {
	out := make([]string, len(promptList))
	for i, p := range promptList {
		if strings.Contains(p, "--fast") {
			out[i] = p
			continue
		}
		out[i] = p + " --fast"
	}
	return out
}

func currentItemOf(job *domain.Job) *domain.CurrentItem {
	return &domain.CurrentItem{
		ID:           job.ID,
		FileName:     job.FileName,
		ClothingPart: string(job.ClothingPart),
		PromptType:   string(job.PromptType),
	}
}
