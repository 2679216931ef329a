package models

import (
	"encoding/json"
	"strings"
	"time"
)

// ResponseStatus is the sync state machine for a response.
//
//	submitted -> synced | failed -> deleted (terminal, soft)
//
// pending is reserved for responses awaiting their first sync attempt.
type ResponseStatus string

const (
	StatusPending   ResponseStatus = "pending"
	StatusSubmitted ResponseStatus = "submitted"
	StatusSynced    ResponseStatus = "synced"
	StatusFailed    ResponseStatus = "failed"
	StatusDeleted   ResponseStatus = "deleted"
)

// LocalRecordPrefix marks a synthesized placeholder ExternalRecordID, used
// only when the external write failed. It must be replaced once the write
// succeeds.
const LocalRecordPrefix = "local-"

// Answer is one answered question within a response.
type Answer struct {
	QuestionKey string    `json:"questionKey"`
	Value       any       `json:"value"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Response is the local record joined to one Airtable record through
// ExternalRecordID, which is unique across the whole system.
type Response struct {
	ID               string         `gorm:"primaryKey;type:char(36)"`
	FormID           string         `gorm:"type:char(36);not null;index"`
	ExternalRecordID string         `gorm:"size:64;not null;uniqueIndex:idx_external_record"`
	Status           ResponseStatus `gorm:"size:16;not null;default:pending;index"`
	Answers          JSON
	SyncAttempts     int    `gorm:"not null;default:0"`
	LastSyncError    string `gorm:"type:text"`
	LastSyncedAt     *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName overrides the table name for Response
func (Response) TableName() string {
	return "responses"
}

// AnswerList decodes the stored answers in submission order.
func (r *Response) AnswerList() ([]Answer, error) {
	if r.Answers.Empty() {
		return nil, nil
	}
	var answers []Answer
	err := json.Unmarshal(r.Answers.Bytes(), &answers)
	return answers, err
}

// SetAnswers encodes answers into the JSON column.
func (r *Response) SetAnswers(answers []Answer) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	r.Answers = NewJSON(raw)
	return nil
}

// AnswerMap returns answers keyed by question key, for rule evaluation.
func (r *Response) AnswerMap() (map[string]any, error) {
	answers, err := r.AnswerList()
	if err != nil {
		return nil, err
	}
	m := make(map[string]any, len(answers))
	for _, a := range answers {
		m[a.QuestionKey] = a.Value
	}
	return m, nil
}

// HasExternalRecord reports whether the response is linked to a confirmed
// Airtable record rather than a local placeholder.
func (r *Response) HasExternalRecord() bool {
	return r.ExternalRecordID != "" && !strings.HasPrefix(r.ExternalRecordID, LocalRecordPrefix)
}

// RecordSyncFailure stamps the failure outcome of one sync attempt.
func (r *Response) RecordSyncFailure(err error) {
	r.Status = StatusFailed
	r.SyncAttempts++
	if err != nil {
		r.LastSyncError = err.Error()
	}
}

// RecordSyncSuccess stamps a successful sync.
func (r *Response) RecordSyncSuccess(now time.Time) {
	r.Status = StatusSynced
	r.SyncAttempts++
	r.LastSyncError = ""
	r.LastSyncedAt = &now
}
