package services

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/models"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/repository"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/rules"
)

// SubmitOutcome reports a stored submission and whether the external push
// landed. A failed push still means the submission was accepted locally.
type SubmitOutcome struct {
	Response  *models.Response
	Synced    bool
	SyncError string
}

// ResponseService handles response intake: visibility filtering, answer
// validation, local persistence, and handing the result to the sync push.
type ResponseService struct {
	forms     repository.Forms
	responses repository.Responses
	sync      *SyncService
	clients   Clients
	logger    *slog.Logger
	now       func() time.Time
}

// NewResponseService wires the response intake service.
func NewResponseService(forms repository.Forms, responses repository.Responses, sync *SyncService, clients Clients, logger *slog.Logger) *ResponseService {
	return &ResponseService{
		forms:     forms,
		responses: responses,
		sync:      sync,
		clients:   clients,
		logger:    logger,
		now:       time.Now,
	}
}

// VisibleQuestions evaluates conditional rules against a partial answer set
// and returns the questions a respondent should currently see, in order.
func (s *ResponseService) VisibleQuestions(ctx context.Context, formID string, answers map[string]any) ([]models.Question, error) {
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		return nil, err
	}
	return visibleQuestions(form, answers)
}

// Submit validates and stores a new response, then pushes it to Airtable.
// Answers to questions hidden by conditional rules are silently dropped, so
// a stale client cannot smuggle values past the rules.
func (s *ResponseService) Submit(ctx context.Context, formID string, answers map[string]any) (*SubmitOutcome, error) {
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		return nil, err
	}
	if !form.Submittable() {
		return nil, ErrFormNotSubmittable
	}

	kept, err := s.filterAndValidate(form, answers)
	if err != nil {
		return nil, err
	}

	response := &models.Response{
		ID:               uuid.NewString(),
		FormID:           form.ID,
		ExternalRecordID: models.LocalRecordPrefix + uuid.NewString(),
		Status:           models.StatusSubmitted,
	}
	if err := response.SetAnswers(kept); err != nil {
		return nil, err
	}
	if err := s.responses.Create(ctx, response); err != nil {
		return nil, err
	}

	return s.push(ctx, response), nil
}

// Edit replaces the answers of an existing response and pushes the change.
func (s *ResponseService) Edit(ctx context.Context, responseID string, answers map[string]any) (*SubmitOutcome, error) {
	response, err := s.responses.FindByID(ctx, responseID)
	if err != nil {
		return nil, err
	}
	if response.Status == models.StatusDeleted {
		return nil, repository.ErrNotFound
	}
	form, err := s.forms.FindByID(ctx, response.FormID)
	if err != nil {
		return nil, err
	}

	kept, err := s.filterAndValidate(form, answers)
	if err != nil {
		return nil, err
	}
	if err := response.SetAnswers(kept); err != nil {
		return nil, err
	}
	response.Status = models.StatusSubmitted
	if err := s.responses.Save(ctx, response); err != nil {
		return nil, err
	}

	return s.push(ctx, response), nil
}

// Delete soft-deletes a response locally and removes the Airtable record
// when one exists. External delete failures are logged, not raised; the
// local tombstone is the source of truth.
func (s *ResponseService) Delete(ctx context.Context, responseID string) error {
	response, err := s.responses.FindByID(ctx, responseID)
	if err != nil {
		return err
	}
	if response.Status == models.StatusDeleted {
		return nil
	}

	if response.HasExternalRecord() {
		form, err := s.forms.FindByID(ctx, response.FormID)
		if err != nil {
			return err
		}
		client, err := s.clients.For(ctx, form.OwnerID)
		if err == nil {
			if err := client.DeleteRecord(ctx, form.ExternalBaseID, form.ExternalTableID, response.ExternalRecordID); err != nil {
				s.logger.Warn("external record delete failed",
					"responseId", response.ID, "recordId", response.ExternalRecordID, "error", err)
			}
		} else {
			s.logger.Warn("skipping external delete, no usable credential",
				"responseId", response.ID, "error", err)
		}
	}

	now := s.now()
	response.Status = models.StatusDeleted
	response.LastSyncedAt = &now
	return s.responses.Save(ctx, response)
}

// List pages through a form's responses, newest first.
func (s *ResponseService) List(ctx context.Context, formID string, page, limit int) ([]models.Response, int64, error) {
	if _, err := s.forms.FindByID(ctx, formID); err != nil {
		return nil, 0, err
	}
	return s.responses.ListByForm(ctx, formID, page, limit)
}

// push hands a stored response to the sync engine and folds the result into
// the outcome. Push failure does not fail the intake.
func (s *ResponseService) push(ctx context.Context, response *models.Response) *SubmitOutcome {
	outcome := &SubmitOutcome{Response: response}
	if err := s.sync.PushResponse(ctx, response); err != nil {
		s.logger.Warn("push after intake failed",
			"responseId", response.ID, "error", err)
		outcome.SyncError = err.Error()
		return outcome
	}
	outcome.Synced = true
	return outcome
}

// filterAndValidate keeps answers to visible known questions and checks the
// kept set against each question's constraints.
func (s *ResponseService) filterAndValidate(form *models.Form, answers map[string]any) ([]models.Answer, error) {
	visible, err := visibleQuestions(form, answers)
	if err != nil {
		return nil, err
	}

	var problems []string
	now := s.now()
	kept := make([]models.Answer, 0, len(visible))
	for i := range visible {
		question := &visible[i]
		answer, present := answers[question.Key]

		if question.Required && (!present || isBlank(answer)) {
			problems = append(problems, fmt.Sprintf("question %q is required", question.Key))
			continue
		}
		if !present || isBlank(answer) {
			continue
		}
		if msgs := validateAnswer(question, answer); len(msgs) > 0 {
			problems = append(problems, msgs...)
			continue
		}
		kept = append(kept, models.Answer{
			QuestionKey: question.Key,
			Value:       answer,
			SubmittedAt: now,
		})
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return kept, nil
}

// visibleQuestions filters the form's question set through its conditional
// rules. A question with a malformed stored rule is treated as an error, not
// silently shown.
func visibleQuestions(form *models.Form, answers map[string]any) ([]models.Question, error) {
	visible := make([]models.Question, 0, len(form.Questions))
	for i := range form.Questions {
		question := form.Questions[i]
		rule, err := question.Rule()
		if err != nil {
			return nil, fmt.Errorf("question %q has a malformed rule: %w", question.Key, err)
		}
		if rules.Evaluate(rule, answers) {
			visible = append(visible, question)
		}
	}
	return visible, nil
}

// validateAnswer applies type, option, and text constraints to one answer.
func validateAnswer(question *models.Question, answer any) []string {
	var problems []string

	switch question.Type {
	case models.QuestionSingleSelect:
		value, ok := answer.(string)
		if !ok {
			return []string{fmt.Sprintf("question %q expects a single string value", question.Key)}
		}
		if msg := checkOption(question, value); msg != "" {
			problems = append(problems, msg)
		}
	case models.QuestionMultiSelect:
		values, ok := stringSlice(answer)
		if !ok {
			return []string{fmt.Sprintf("question %q expects a list of string values", question.Key)}
		}
		for _, value := range values {
			if msg := checkOption(question, value); msg != "" {
				problems = append(problems, msg)
			}
		}
	case models.QuestionShortText, models.QuestionLongText:
		value, ok := answer.(string)
		if !ok {
			return []string{fmt.Sprintf("question %q expects a text value", question.Key)}
		}
		problems = append(problems, checkTextRules(question, value)...)
	}
	return problems
}

// checkOption verifies membership in the question's configured options. A
// question without options accepts any value.
func checkOption(question *models.Question, value string) string {
	options, err := question.OptionValues()
	if err != nil || len(options) == 0 {
		return ""
	}
	for _, option := range options {
		if option == value {
			return ""
		}
	}
	return fmt.Sprintf("question %q does not allow value %q", question.Key, value)
}

// checkTextRules applies min/max length and pattern constraints.
func checkTextRules(question *models.Question, value string) []string {
	validation, err := question.ValidationRules()
	if err != nil {
		return []string{fmt.Sprintf("question %q has malformed validation rules", question.Key)}
	}

	var problems []string
	length := len([]rune(value))
	if validation.MinLength > 0 && length < validation.MinLength {
		problems = append(problems, fmt.Sprintf("question %q requires at least %d characters", question.Key, validation.MinLength))
	}
	if validation.MaxLength > 0 && length > validation.MaxLength {
		problems = append(problems, fmt.Sprintf("question %q allows at most %d characters", question.Key, validation.MaxLength))
	}
	if validation.Pattern != "" {
		re, err := regexp.Compile(validation.Pattern)
		if err != nil {
			problems = append(problems, fmt.Sprintf("question %q has an invalid pattern", question.Key))
		} else if !re.MatchString(value) {
			problems = append(problems, fmt.Sprintf("question %q does not match the required pattern", question.Key))
		}
	}
	return problems
}

// isBlank mirrors the emptiness rule used by conditional evaluation.
func isBlank(answer any) bool {
	switch v := answer.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	default:
		return false
	}
}

// stringSlice normalizes a decoded JSON array into []string.
func stringSlice(answer any) ([]string, bool) {
	switch v := answer.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
