package models

import (
	"encoding/json"
	"time"
)

// QuestionType enumerates the internal question type vocabulary.
type QuestionType string

const (
	QuestionShortText    QuestionType = "shortText"
	QuestionLongText     QuestionType = "longText"
	QuestionSingleSelect QuestionType = "singleSelect"
	QuestionMultiSelect  QuestionType = "multiSelect"
	QuestionAttachment   QuestionType = "attachment"
)

// RuleLogic combines the conditions of a ConditionalRule.
type RuleLogic string

const (
	LogicAnd RuleLogic = "AND"
	LogicOr  RuleLogic = "OR"
)

// RuleOperator is one member of the fixed condition operator set.
type RuleOperator string

const (
	OpEquals      RuleOperator = "equals"
	OpNotEquals   RuleOperator = "notEquals"
	OpContains    RuleOperator = "contains"
	OpNotContains RuleOperator = "notContains"
	OpGreaterThan RuleOperator = "greaterThan"
	OpLessThan    RuleOperator = "lessThan"
)

// Condition compares another question's answer against a value.
type Condition struct {
	QuestionKey string       `json:"questionKey"`
	Operator    RuleOperator `json:"operator"`
	Value       any          `json:"value"`
}

// ConditionalRule decides a question's visibility from sibling answers.
// A rule references other questions in the same form by key, never itself.
type ConditionalRule struct {
	Logic      RuleLogic   `json:"logic"`
	Conditions []Condition `json:"conditions"`
}

// ValidationRules constrain a text answer.
type ValidationRules struct {
	MinLength int    `json:"minLength,omitempty"`
	MaxLength int    `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
}

// Form binds an ordered question set to one Airtable table.
// Version increments on every question-set mutation. A nil PublishedAt means
// the form is not publicly submittable; a non-nil RetiredAt disables
// submission while keeping history.
type Form struct {
	ID              string `gorm:"primaryKey;type:char(36)"`
	OwnerID         string `gorm:"type:char(36);not null;index"`
	Title           string `gorm:"size:255;not null"`
	ExternalBaseID  string `gorm:"size:64;not null;index:idx_external_table"`
	ExternalTableID string `gorm:"size:64;not null;index:idx_external_table"`
	Version         uint64 `gorm:"not null;default:0"`
	PublishedAt     *time.Time
	RetiredAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Questions       []Question `gorm:"foreignKey:FormID"`
}

// Question belongs to exactly one form. Key and ExternalFieldID are each
// unique within the form; Key is the immutable identity answers refer to.
type Question struct {
	ID              string       `gorm:"primaryKey;type:char(36)"`
	FormID          string       `gorm:"type:char(36);not null;index:idx_form_key,unique;index:idx_form_field,unique"`
	Key             string       `gorm:"size:255;not null;index:idx_form_key,unique"`
	ExternalFieldID string       `gorm:"size:64;not null;index:idx_form_field,unique"`
	Label           string       `gorm:"size:255;not null"`
	Type            QuestionType `gorm:"size:32;not null"`
	Required        bool         `gorm:"not null;default:false"`
	Options         JSON
	Validation      JSON
	ConditionalRule JSON
	Position        int `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName overrides the table name for Form
func (Form) TableName() string {
	return "forms"
}

// TableName overrides the table name for Question
func (Question) TableName() string {
	return "questions"
}

// Rule decodes the stored conditional rule. Returns nil when the question is
// unconditionally visible.
func (q *Question) Rule() (*ConditionalRule, error) {
	if q.ConditionalRule.Empty() {
		return nil, nil
	}
	var rule ConditionalRule
	if err := json.Unmarshal(q.ConditionalRule.Bytes(), &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// SetRule encodes a conditional rule into the JSON column. A nil rule clears it.
func (q *Question) SetRule(rule *ConditionalRule) error {
	if rule == nil {
		q.ConditionalRule = JSON{}
		return nil
	}
	raw, err := json.Marshal(rule)
	if err != nil {
		return err
	}
	q.ConditionalRule = NewJSON(raw)
	return nil
}

// ValidationRules decodes the stored validation constraints.
func (q *Question) ValidationRules() (ValidationRules, error) {
	var rules ValidationRules
	if q.Validation.Empty() {
		return rules, nil
	}
	err := json.Unmarshal(q.Validation.Bytes(), &rules)
	return rules, err
}

// OptionValues decodes the stored select options.
func (q *Question) OptionValues() ([]string, error) {
	if q.Options.Empty() {
		return nil, nil
	}
	var options []string
	err := json.Unmarshal(q.Options.Bytes(), &options)
	return options, err
}

// Submittable reports whether the form currently accepts submissions.
func (f *Form) Submittable() bool {
	return f.PublishedAt != nil && f.RetiredAt == nil
}

// QuestionByFieldID finds the question bound to an Airtable field id.
func (f *Form) QuestionByFieldID(fieldID string) *Question {
	for i := range f.Questions {
		if f.Questions[i].ExternalFieldID == fieldID {
			return &f.Questions[i]
		}
	}
	return nil
}

// QuestionByKey finds a question by its key.
func (f *Form) QuestionByKey(key string) *Question {
	for i := range f.Questions {
		if f.Questions[i].Key == key {
			return &f.Questions[i]
		}
	}
	return nil
}
