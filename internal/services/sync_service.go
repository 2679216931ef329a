// Package services holds the application services sitting between the HTTP
// handlers and the repositories: form management, response intake, the sync
// orchestrator that mirrors Airtable records, and the retry sweep.
package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/airtable"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/fieldmap"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/models"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/repository"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/types"
)

// Webhook actions Airtable delivers for table changes.
const (
	ActionCreatedRecords = "createdRecords"
	ActionUpdatedRecords = "updatedRecords"
	ActionDeletedRecords = "deletedRecords"
)

// listPageSize is the page size requested when walking a full table.
const listPageSize = 100

// WebhookEvent is the decoded body of an Airtable webhook notification.
// RecordIDs tolerates both a bare string and an array on the wire.
type WebhookEvent struct {
	Base    WebhookBase    `json:"base"`
	Webhook WebhookPayload `json:"webhook"`
}

// WebhookBase identifies the base the notification belongs to.
type WebhookBase struct {
	ID string `json:"id"`
}

// WebhookPayload carries the action and the affected record ids.
type WebhookPayload struct {
	Action    string                 `json:"action"`
	TableID   string                 `json:"tableId"`
	RecordIDs types.FlexList[string] `json:"recordIds"`
}

// SyncResult summarizes one full-table sync pass.
type SyncResult struct {
	SyncedCount int `json:"syncedCount"`
	ErrorCount  int `json:"errorCount"`
}

// RecordClient is the slice of the Airtable client the orchestrator needs.
type RecordClient interface {
	GetRecord(ctx context.Context, baseID, tableID, recordID string) (*airtable.Record, error)
	CreateRecord(ctx context.Context, baseID, tableID string, fields map[string]any) (*airtable.Record, error)
	UpdateRecord(ctx context.Context, baseID, tableID, recordID string, fields map[string]any) (*airtable.Record, error)
	DeleteRecord(ctx context.Context, baseID, tableID, recordID string) error
	ListRecords(ctx context.Context, baseID, tableID, offset string, pageSize int) ([]airtable.Record, string, error)
}

// SchemaClient is the slice of the Airtable client that reads table
// metadata, used when a form is bound to a table.
type SchemaClient interface {
	ListTables(ctx context.Context, baseID string) ([]airtable.Table, error)
}

// Clients resolves Airtable clients for a form owner's credential.
type Clients interface {
	For(ctx context.Context, ownerID string) (RecordClient, error)
	SchemaFor(ctx context.Context, ownerID string) (SchemaClient, error)
}

// credentialClients resolves clients through the credential store, sharing
// one client per token via the airtable factory.
type credentialClients struct {
	credentials repository.Credentials
	factory     *airtable.Factory
	now         func() time.Time
}

// NewCredentialClients builds the production Clients implementation.
func NewCredentialClients(credentials repository.Credentials, factory *airtable.Factory) Clients {
	return &credentialClients{
		credentials: credentials,
		factory:     factory,
		now:         time.Now,
	}
}

func (c *credentialClients) resolve(ctx context.Context, ownerID string) (*airtable.Client, error) {
	credential, err := c.credentials.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("resolve credential for owner %s: %w", ownerID, err)
	}
	if !credential.Usable(c.now()) {
		return nil, fmt.Errorf("credential for owner %s is missing or expired", ownerID)
	}
	return c.factory.ClientFor(credential.Token), nil
}

func (c *credentialClients) For(ctx context.Context, ownerID string) (RecordClient, error) {
	return c.resolve(ctx, ownerID)
}

func (c *credentialClients) SchemaFor(ctx context.Context, ownerID string) (SchemaClient, error) {
	return c.resolve(ctx, ownerID)
}

// DelayPolicy spaces external calls so bursts of webhook records and table
// pages do not exhaust the Airtable budget. Tests inject the zero value.
type DelayPolicy struct {
	BatchDelay time.Duration
	PageDelay  time.Duration
	RetryDelay time.Duration
}

// DefaultDelays is the production pacing.
var DefaultDelays = DelayPolicy{
	BatchDelay: 100 * time.Millisecond,
	PageDelay:  200 * time.Millisecond,
	RetryDelay: 50 * time.Millisecond,
}

// sleep honors ctx cancellation while pausing.
func (p DelayPolicy) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// recordLockShards sizes the keyed mutex. Collisions only cost serialization.
const recordLockShards = 32

// keyedMutex serializes work per external record id so a webhook burst and a
// retry sweep cannot interleave writes for the same record.
type keyedMutex struct {
	shards [recordLockShards]sync.Mutex
}

func (m *keyedMutex) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	shard := &m.shards[h.Sum32()%recordLockShards]
	shard.Lock()
	return shard.Unlock
}

// SyncService keeps local responses and Airtable records consistent in both
// directions. Pulls come from webhook notifications and full-table walks;
// pushes go out when responses are submitted, edited, or retried.
type SyncService struct {
	forms     repository.Forms
	responses repository.Responses
	clients   Clients
	logger    *slog.Logger

	batchSize int
	delays    DelayPolicy
	locks     keyedMutex
	now       func() time.Time
}

// NewSyncService wires the orchestrator. batchSize bounds how many records
// of one webhook are fetched concurrently; values below 1 fall back to 10.
func NewSyncService(forms repository.Forms, responses repository.Responses, clients Clients, batchSize int, delays DelayPolicy, logger *slog.Logger) *SyncService {
	if batchSize < 1 {
		batchSize = 10
	}
	return &SyncService{
		forms:     forms,
		responses: responses,
		clients:   clients,
		logger:    logger,
		batchSize: batchSize,
		delays:    delays,
		now:       time.Now,
	}
}

// ProcessWebhook routes one webhook notification to every active form bound
// to the notifying table. Unknown actions are logged and dropped so Airtable
// does not keep redelivering them.
func (s *SyncService) ProcessWebhook(ctx context.Context, event WebhookEvent) error {
	forms, err := s.forms.FindActiveByExternalTable(ctx, event.Base.ID, event.Webhook.TableID)
	if err != nil {
		return fmt.Errorf("resolve forms for table %s: %w", event.Webhook.TableID, err)
	}
	if len(forms) == 0 {
		s.logger.Info("webhook for unbound table ignored",
			"baseId", event.Base.ID, "tableId", event.Webhook.TableID)
		return nil
	}

	recordIDs := event.Webhook.RecordIDs.Slice()
	for i := range forms {
		form := &forms[i]
		switch event.Webhook.Action {
		case ActionCreatedRecords, ActionUpdatedRecords:
			if err := s.pullRecords(ctx, form, recordIDs); err != nil {
				return err
			}
		case ActionDeletedRecords:
			s.deleteRecords(ctx, recordIDs)
		default:
			s.logger.Warn("unknown webhook action ignored",
				"action", event.Webhook.Action, "formId", form.ID)
		}
	}
	return nil
}

// pullRecords fetches the named records in concurrent batches and mirrors
// them locally. A single record failing does not abort the batch.
func (s *SyncService) pullRecords(ctx context.Context, form *models.Form, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	client, err := s.clients.For(ctx, form.OwnerID)
	if err != nil {
		s.logger.Warn("skipping pull, no usable credential", "formId", form.ID, "error", err)
		return nil
	}

	for start := 0; start < len(recordIDs); start += s.batchSize {
		if start > 0 {
			if err := s.delays.sleep(ctx, s.delays.BatchDelay); err != nil {
				return err
			}
		}
		end := start + s.batchSize
		if end > len(recordIDs) {
			end = len(recordIDs)
		}

		var wg sync.WaitGroup
		for _, recordID := range recordIDs[start:end] {
			wg.Add(1)
			go func(recordID string) {
				defer wg.Done()
				if err := s.syncRecord(ctx, client, form, recordID); err != nil {
					s.logger.Error("record sync failed",
						"formId", form.ID, "recordId", recordID, "error", err)
				}
			}(recordID)
		}
		wg.Wait()
	}
	return nil
}

// syncRecord mirrors one Airtable record into the local response store.
func (s *SyncService) syncRecord(ctx context.Context, client RecordClient, form *models.Form, recordID string) error {
	record, err := client.GetRecord(ctx, form.ExternalBaseID, form.ExternalTableID, recordID)
	if err != nil {
		s.markFetchFailure(ctx, recordID, err)
		return fmt.Errorf("fetch record %s: %w", recordID, err)
	}
	if err := s.storeRecord(ctx, form, record); err != nil {
		s.markFetchFailure(ctx, recordID, err)
		return err
	}
	return nil
}

// storeRecord upserts the local mirror of a fetched record. The keyed lock
// lives here so every inbound path, webhook batches and full-table walks
// alike, serializes the find-then-write window for one record.
func (s *SyncService) storeRecord(ctx context.Context, form *models.Form, record *airtable.Record) error {
	unlock := s.locks.lock(record.ID)
	defer unlock()

	answers := fieldmap.AnswersFromRecord(form.Questions, record.Fields, s.now())

	response, err := s.responses.FindByExternalRecordID(ctx, record.ID)
	switch {
	case err == nil:
		if err := response.SetAnswers(answers); err != nil {
			return err
		}
		response.FormID = form.ID
		response.RecordSyncSuccess(s.now())
		return s.responses.Save(ctx, response)
	case err == repository.ErrNotFound:
		response = &models.Response{
			ID:               uuid.NewString(),
			FormID:           form.ID,
			ExternalRecordID: record.ID,
		}
		if err := response.SetAnswers(answers); err != nil {
			return err
		}
		response.RecordSyncSuccess(s.now())
		return s.responses.Create(ctx, response)
	default:
		return err
	}
}

// markFetchFailure stamps a failed attempt on the local mirror, if one
// exists. A record never seen locally has nothing to stamp.
func (s *SyncService) markFetchFailure(ctx context.Context, recordID string, cause error) {
	unlock := s.locks.lock(recordID)
	defer unlock()

	response, err := s.responses.FindByExternalRecordID(ctx, recordID)
	if err != nil {
		return
	}
	response.RecordSyncFailure(cause)
	if err := s.responses.Save(ctx, response); err != nil {
		s.logger.Error("failed to stamp sync failure", "recordId", recordID, "error", err)
	}
}

// deleteRecords soft-deletes the local mirrors of externally deleted
// records. A record with no local mirror is not an error.
func (s *SyncService) deleteRecords(ctx context.Context, recordIDs []string) {
	for _, recordID := range recordIDs {
		unlock := s.locks.lock(recordID)
		response, err := s.responses.FindByExternalRecordID(ctx, recordID)
		if err != nil {
			unlock()
			continue
		}
		now := s.now()
		response.Status = models.StatusDeleted
		response.LastSyncedAt = &now
		if err := s.responses.Save(ctx, response); err != nil {
			s.logger.Error("failed to soft delete response", "recordId", recordID, "error", err)
		}
		unlock()
	}
}

// SyncAllRecordsForForm walks the form's whole Airtable table page by page
// and mirrors every record. A page failure stops the walk; records already
// mirrored stay mirrored.
func (s *SyncService) SyncAllRecordsForForm(ctx context.Context, formID string) (SyncResult, error) {
	var result SyncResult

	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		return result, err
	}
	client, err := s.clients.For(ctx, form.OwnerID)
	if err != nil {
		return result, err
	}

	offset := ""
	for page := 0; ; page++ {
		if page > 0 {
			if err := s.delays.sleep(ctx, s.delays.PageDelay); err != nil {
				return result, err
			}
		}
		records, next, err := client.ListRecords(ctx, form.ExternalBaseID, form.ExternalTableID, offset, listPageSize)
		if err != nil {
			s.logger.Error("table page fetch failed",
				"formId", form.ID, "page", page, "error", err)
			result.ErrorCount++
			return result, fmt.Errorf("list records page %d: %w", page, err)
		}
		for i := range records {
			if err := s.storeRecord(ctx, form, &records[i]); err != nil {
				s.logger.Error("record store failed",
					"formId", form.ID, "recordId", records[i].ID, "error", err)
				s.markFetchFailure(ctx, records[i].ID, err)
				result.ErrorCount++
				continue
			}
			result.SyncedCount++
		}
		if next == "" {
			return result, nil
		}
		offset = next
	}
}

// PushResponse writes a locally held response out to Airtable, creating the
// record on first push and patching it afterwards. Failure is stamped on the
// response and returned; the local copy always survives.
func (s *SyncService) PushResponse(ctx context.Context, response *models.Response) error {
	form, err := s.forms.FindByID(ctx, response.FormID)
	if err != nil {
		return err
	}
	client, err := s.clients.For(ctx, form.OwnerID)
	if err != nil {
		s.failPush(ctx, response, err)
		return err
	}

	answers, err := response.AnswerList()
	if err != nil {
		s.failPush(ctx, response, fmt.Errorf("decode stored answers: %w", err))
		return err
	}
	fields := fieldmap.FieldsFromAnswers(form.Questions, answers)

	unlock := s.locks.lock(response.ExternalRecordID)
	defer unlock()

	if response.HasExternalRecord() {
		_, err = client.UpdateRecord(ctx, form.ExternalBaseID, form.ExternalTableID, response.ExternalRecordID, fields)
		if err != nil {
			s.failPush(ctx, response, err)
			return err
		}
	} else {
		record, err := client.CreateRecord(ctx, form.ExternalBaseID, form.ExternalTableID, fields)
		if err != nil {
			s.failPush(ctx, response, err)
			return err
		}
		response.ExternalRecordID = record.ID
	}

	response.RecordSyncSuccess(s.now())
	return s.responses.Save(ctx, response)
}

// failPush stamps a push failure and persists it.
func (s *SyncService) failPush(ctx context.Context, response *models.Response, cause error) {
	response.RecordSyncFailure(cause)
	if response.ExternalRecordID == "" {
		response.ExternalRecordID = models.LocalRecordPrefix + uuid.NewString()
	}
	if err := s.responses.Save(ctx, response); err != nil {
		s.logger.Error("failed to persist push failure", "responseId", response.ID, "error", err)
	}
}
