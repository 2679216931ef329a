// Package fieldmap translates between Airtable's field-type vocabulary and
// the internal question types, and between Airtable record fields and local
// answers. Everything here is a pure function over its inputs.
package fieldmap

import (
	"errors"
	"fmt"
	"time"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/models"
)

// ErrUnsupportedFieldType is returned when an Airtable field type has no
// internal question type. Question creation on such a field must be rejected.
var ErrUnsupportedFieldType = errors.New("unsupported airtable field type")

var airtableToQuestionType = map[string]models.QuestionType{
	"singleLineText":      models.QuestionShortText,
	"email":               models.QuestionShortText,
	"url":                 models.QuestionShortText,
	"multilineText":       models.QuestionLongText,
	"richText":            models.QuestionLongText,
	"singleSelect":        models.QuestionSingleSelect,
	"multipleSelects":     models.QuestionMultiSelect,
	"multipleAttachments": models.QuestionAttachment,
}

// QuestionTypeFor maps an Airtable field type to the internal question type.
func QuestionTypeFor(airtableType string) (models.QuestionType, error) {
	qt, ok := airtableToQuestionType[airtableType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFieldType, airtableType)
	}
	return qt, nil
}

// AnswersFromRecord maps Airtable record fields onto answers using each
// question's ExternalFieldID. Fields absent on the Airtable side are omitted,
// never defaulted. Answer order follows question order.
func AnswersFromRecord(questions []models.Question, fields map[string]any, at time.Time) []models.Answer {
	answers := make([]models.Answer, 0, len(questions))
	for _, q := range questions {
		value, ok := fields[q.ExternalFieldID]
		if !ok {
			continue
		}
		answers = append(answers, models.Answer{
			QuestionKey: q.Key,
			Value:       value,
			SubmittedAt: at,
		})
	}
	return answers
}

// FieldsFromAnswers builds the Airtable field map for an outbound write.
// Answers without a matching question are dropped; attachment values pass
// through in Airtable's own object form.
func FieldsFromAnswers(questions []models.Question, answers []models.Answer) map[string]any {
	byKey := make(map[string]*models.Question, len(questions))
	for i := range questions {
		byKey[questions[i].Key] = &questions[i]
	}

	fields := make(map[string]any, len(answers))
	for _, a := range answers {
		q, ok := byKey[a.QuestionKey]
		if !ok {
			continue
		}
		fields[q.ExternalFieldID] = a.Value
	}
	return fields
}
