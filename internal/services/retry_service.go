package services

import (
	"context"
	"log/slog"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/repository"
)

// DefaultMaxSyncAttempts is the cap after which a failed response is left
// alone until someone intervenes.
const DefaultMaxSyncAttempts = 3

// RetryService sweeps failed responses and re-pushes the ones still under
// the attempt cap.
type RetryService struct {
	responses   repository.Responses
	sync        *SyncService
	maxAttempts int
	delays      DelayPolicy
	logger      *slog.Logger
}

// NewRetryService wires the retry sweep. maxAttempts values below 1 fall
// back to DefaultMaxSyncAttempts.
func NewRetryService(responses repository.Responses, sync *SyncService, maxAttempts int, delays DelayPolicy, logger *slog.Logger) *RetryService {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxSyncAttempts
	}
	return &RetryService{
		responses:   responses,
		sync:        sync,
		maxAttempts: maxAttempts,
		delays:      delays,
		logger:      logger,
	}
}

// RetryFailedSyncs re-pushes up to limit failed responses, oldest first.
// Responses whose form or credential cannot be resolved are skipped without
// burning an attempt. Each push failure counts another attempt; the sweep
// itself never errors on a push failure, only on the selection query or
// cancellation.
func (r *RetryService) RetryFailedSyncs(ctx context.Context, limit int) (SyncResult, error) {
	var result SyncResult

	retryable, err := r.responses.FindRetryable(ctx, r.maxAttempts, limit)
	if err != nil {
		return result, err
	}

	for i := range retryable {
		if i > 0 {
			if err := r.delays.sleep(ctx, r.delays.RetryDelay); err != nil {
				return result, err
			}
		}
		response := &retryable[i]
		form, err := r.sync.forms.FindByID(ctx, response.FormID)
		if err != nil {
			r.logger.Warn("retry skipped, form unavailable",
				"responseId", response.ID, "formId", response.FormID, "error", err)
			continue
		}
		if _, err := r.sync.clients.For(ctx, form.OwnerID); err != nil {
			r.logger.Warn("retry skipped, credential unavailable",
				"responseId", response.ID, "ownerId", form.OwnerID, "error", err)
			continue
		}
		if err := r.sync.PushResponse(ctx, response); err != nil {
			r.logger.Warn("retry push failed",
				"responseId", response.ID, "attempts", response.SyncAttempts, "error", err)
			result.ErrorCount++
			continue
		}
		result.SyncedCount++
	}

	if len(retryable) > 0 {
		r.logger.Info("retry sweep finished",
			"selected", len(retryable), "synced", result.SyncedCount, "failed", result.ErrorCount)
	}
	return result, nil
}
