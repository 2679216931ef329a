package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/airtable"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/fieldmap"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/models"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/repository"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/rules"
)

// QuestionInput is one question definition supplied by a form builder.
type QuestionInput struct {
	Key             string                  `json:"key"`
	Label           string                  `json:"label"`
	ExternalFieldID string                  `json:"externalFieldId"`
	Required        bool                    `json:"required"`
	Options         []string                `json:"options,omitempty"`
	Validation      *models.ValidationRules `json:"validation,omitempty"`
	ConditionalRule *models.ConditionalRule `json:"conditionalRule,omitempty"`
}

// CreateFormInput binds a new form to an Airtable table.
type CreateFormInput struct {
	OwnerID   string          `json:"ownerId"`
	Title     string          `json:"title"`
	BaseID    string          `json:"baseId"`
	TableID   string          `json:"tableId"`
	Questions []QuestionInput `json:"questions"`
}

// FormService manages form definitions: table binding, question sets with
// their conditional rules, publishing, and retirement.
type FormService struct {
	forms   repository.Forms
	clients Clients
	logger  *slog.Logger
	now     func() time.Time
}

// NewFormService wires the form management service.
func NewFormService(forms repository.Forms, clients Clients, logger *slog.Logger) *FormService {
	return &FormService{
		forms:   forms,
		clients: clients,
		logger:  logger,
		now:     time.Now,
	}
}

// GetForm loads a form with its ordered question set.
func (s *FormService) GetForm(ctx context.Context, id string) (*models.Form, error) {
	return s.forms.FindByID(ctx, id)
}

// CreateForm validates the table binding and question set against the live
// Airtable schema, then persists the form at version 1.
func (s *FormService) CreateForm(ctx context.Context, input CreateFormInput) (*models.Form, error) {
	if input.Title == "" || input.OwnerID == "" || input.BaseID == "" || input.TableID == "" {
		return nil, &ValidationError{Problems: []string{"ownerId, title, baseId and tableId are required"}}
	}

	table, err := s.resolveTable(ctx, input.OwnerID, input.BaseID, input.TableID)
	if err != nil {
		return nil, err
	}
	questions, err := s.buildQuestions(input.Questions, table)
	if err != nil {
		return nil, err
	}

	form := &models.Form{
		ID:              uuid.NewString(),
		OwnerID:         input.OwnerID,
		Title:           input.Title,
		ExternalBaseID:  input.BaseID,
		ExternalTableID: input.TableID,
	}
	if err := s.forms.Create(ctx, form); err != nil {
		return nil, err
	}
	if err := s.forms.ReplaceQuestions(ctx, form, questions); err != nil {
		return nil, err
	}

	s.logger.Info("form created",
		"formId", form.ID, "tableId", input.TableID, "questions", len(questions))
	return s.forms.FindByID(ctx, form.ID)
}

// UpdateQuestions replaces a form's question set. clientVersion must match
// the stored version or the update is rejected with ErrVersionConflict.
func (s *FormService) UpdateQuestions(ctx context.Context, formID string, clientVersion uint64, inputs []QuestionInput) (*models.Form, error) {
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		return nil, err
	}
	if form.RetiredAt != nil {
		return nil, ErrFormRetired
	}
	if form.Version != clientVersion {
		return nil, ErrVersionConflict
	}

	table, err := s.resolveTable(ctx, form.OwnerID, form.ExternalBaseID, form.ExternalTableID)
	if err != nil {
		return nil, err
	}
	questions, err := s.buildQuestions(inputs, table)
	if err != nil {
		return nil, err
	}
	if err := s.forms.ReplaceQuestions(ctx, form, questions); err != nil {
		return nil, err
	}

	s.logger.Info("form questions replaced",
		"formId", form.ID, "version", form.Version, "questions", len(questions))
	return s.forms.FindByID(ctx, form.ID)
}

// Publish opens the form for submissions.
func (s *FormService) Publish(ctx context.Context, formID string) (*models.Form, error) {
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		return nil, err
	}
	if form.RetiredAt != nil {
		return nil, ErrFormRetired
	}
	if form.PublishedAt == nil {
		now := s.now()
		form.PublishedAt = &now
		if err := s.forms.Save(ctx, form); err != nil {
			return nil, err
		}
	}
	return form, nil
}

// Retire closes the form for submissions while keeping its history.
func (s *FormService) Retire(ctx context.Context, formID string) (*models.Form, error) {
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		return nil, err
	}
	if form.RetiredAt == nil {
		now := s.now()
		form.RetiredAt = &now
		if err := s.forms.Save(ctx, form); err != nil {
			return nil, err
		}
	}
	return form, nil
}

// resolveTable fetches the live schema of the bound table.
func (s *FormService) resolveTable(ctx context.Context, ownerID, baseID, tableID string) (*airtable.Table, error) {
	client, err := s.clients.SchemaFor(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	tables, err := client.ListTables(ctx, baseID)
	if err != nil {
		return nil, fmt.Errorf("read schema of base %s: %w", baseID, err)
	}
	for i := range tables {
		if tables[i].ID == tableID {
			return &tables[i], nil
		}
	}
	return nil, &ValidationError{Problems: []string{fmt.Sprintf("table %s not found in base %s", tableID, baseID)}}
}

// buildQuestions checks every question against the table schema and the
// rule constraints, collecting all problems before failing.
func (s *FormService) buildQuestions(inputs []QuestionInput, table *airtable.Table) ([]models.Question, error) {
	var problems []string

	fieldsByID := make(map[string]airtable.Field, len(table.Fields))
	for _, f := range table.Fields {
		fieldsByID[f.ID] = f
	}

	keys := make([]string, 0, len(inputs))
	seenKeys := make(map[string]bool, len(inputs))
	seenFields := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if in.Key == "" {
			problems = append(problems, "question key must not be empty")
			continue
		}
		if seenKeys[in.Key] {
			problems = append(problems, fmt.Sprintf("duplicate question key %q", in.Key))
		}
		if seenFields[in.ExternalFieldID] {
			problems = append(problems, fmt.Sprintf("field %s mapped by more than one question", in.ExternalFieldID))
		}
		seenKeys[in.Key] = true
		seenFields[in.ExternalFieldID] = true
		keys = append(keys, in.Key)
	}

	questions := make([]models.Question, 0, len(inputs))
	for _, in := range inputs {
		field, ok := fieldsByID[in.ExternalFieldID]
		if !ok {
			problems = append(problems, fmt.Sprintf("question %q maps to unknown field %s", in.Key, in.ExternalFieldID))
			continue
		}
		questionType, err := fieldmap.QuestionTypeFor(field.Type)
		if err != nil {
			problems = append(problems, fmt.Sprintf("question %q: field type %q is not supported", in.Key, field.Type))
			continue
		}

		question := models.Question{
			ID:              uuid.NewString(),
			Key:             in.Key,
			ExternalFieldID: in.ExternalFieldID,
			Label:           in.Label,
			Type:            questionType,
			Required:        in.Required,
		}
		if err := setQuestionJSON(&question, in); err != nil {
			problems = append(problems, fmt.Sprintf("question %q: %v", in.Key, err))
			continue
		}

		if in.ConditionalRule != nil {
			if in.ConditionalRule.Conditions != nil {
				for _, cond := range in.ConditionalRule.Conditions {
					if cond.QuestionKey == in.Key {
						problems = append(problems, fmt.Sprintf("question %q: rule references itself", in.Key))
					}
				}
			}
			result := rules.ValidateRule(in.ConditionalRule, keys)
			for _, msg := range result.Errors {
				problems = append(problems, fmt.Sprintf("question %q: %s", in.Key, msg))
			}
		}
		questions = append(questions, question)
	}

	if len(problems) == 0 {
		report, err := rules.DetectCycles(questions)
		if err != nil {
			return nil, err
		}
		for _, cycle := range report.Cycles {
			problems = append(problems, fmt.Sprintf("conditional rules form a cycle: %v", cycle))
		}
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return questions, nil
}

// setQuestionJSON encodes the optional JSON columns of a question.
func setQuestionJSON(question *models.Question, in QuestionInput) error {
	if len(in.Options) > 0 {
		raw, err := models.MarshalJSON(in.Options)
		if err != nil {
			return err
		}
		question.Options = raw
	}
	if in.Validation != nil {
		raw, err := models.MarshalJSON(in.Validation)
		if err != nil {
			return err
		}
		question.Validation = raw
	}
	if in.ConditionalRule != nil {
		return question.SetRule(in.ConditionalRule)
	}
	return nil
}
