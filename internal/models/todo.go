package models

import (
	"strings"
	"unicode/utf8"
)

const MaxTitleLength = 100

// Todo represents a todo item
type Todo struct {
	ID    uint64 `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// CreateInput is the payload accepted when creating a todo.
type CreateInput struct {
	Title string `json:"title"`
}

// UpdateInput carries the fields to change. Nil fields are left untouched.
type UpdateInput struct {
	Title *string `json:"title,omitempty"`
	Done  *bool   `json:"done,omitempty"`
}

func (in CreateInput) Validate() error {
	return validateTitle(in.Title)
}

func (in UpdateInput) Validate() error {
	if in.Title != nil {
		if err := validateTitle(*in.Title); err != nil {
			return err
		}
	}
	if in.Title == nil && in.Done == nil {
		return NewValidationError("provide at least one field to update")
	}
	return nil
}

// Apply copies the present fields onto t.
func (in UpdateInput) Apply(t *Todo) {
	if in.Title != nil {
		t.Title = *in.Title
	}
	if in.Done != nil {
		t.Done = *in.Done
	}
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return NewValidationError("title cannot be empty")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return NewValidationError("title cannot be longer than 100 characters")
	}
	return nil
}
