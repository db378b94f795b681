package okr

import (
	"math"
	"net/mail"
	"strings"
	"time"
)

// DateLayout is the wire and form format of due dates.
const DateLayout = "2006-01-02"

// RegisterInput is the body of POST /auth/register.
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Validate requires an email, a password and both names.
func (in RegisterInput) Validate() error {
	v := NewValidationError()
	validateEmail(v, in.Email)
	if in.Password == "" {
		v.Add("password", "password is required")
	}
	if strings.TrimSpace(in.FirstName) == "" {
		v.Add("first_name", "first name is required")
	}
	if strings.TrimSpace(in.LastName) == "" {
		v.Add("last_name", "last name is required")
	}
	return v.OrNil()
}

// LoginInput is the body of POST /auth/login.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate requires an email and a password.
func (in LoginInput) Validate() error {
	v := NewValidationError()
	validateEmail(v, in.Email)
	if in.Password == "" {
		v.Add("password", "password is required")
	}
	return v.OrNil()
}

func validateEmail(v *ValidationError, email string) {
	if strings.TrimSpace(email) == "" {
		v.Add("email", "email is required")
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		v.Add("email", "email is invalid")
	}
}

// ObjectiveInput is the body of POST /okrs and PUT /okrs/{id}.
type ObjectiveInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Responsible string `json:"responsible"`
	DueDate     string `json:"due_date"`
}

// Validate requires title, responsible and a YYYY-MM-DD due date.
func (in ObjectiveInput) Validate() error {
	v := NewValidationError()
	if strings.TrimSpace(in.Title) == "" {
		v.Add("title", "title is required")
	}
	if strings.TrimSpace(in.Responsible) == "" {
		v.Add("responsible", "responsible is required")
	}
	validateDueDate(v, in.DueDate)
	return v.OrNil()
}

func validateDueDate(v *ValidationError, due string) {
	if strings.TrimSpace(due) == "" {
		v.Add("due_date", "due date is required")
		return
	}
	if _, err := time.Parse(DateLayout, due); err != nil {
		v.Add("due_date", "due date must be YYYY-MM-DD")
	}
}

// KeyResultInput is the body of POST /okrs/{okrId}/key-results and PUT /key-results/{id}.
type KeyResultInput struct {
	Title        string  `json:"title"`
	Target       float64 `json:"target"`
	Unit         string  `json:"unit"`
	CurrentValue float64 `json:"current_value"`
}

// Validate requires a title and unit and finite numbers with a
// non-negative target.
func (in KeyResultInput) Validate() error {
	v := NewValidationError()
	if strings.TrimSpace(in.Title) == "" {
		v.Add("title", "title is required")
	}
	switch {
	case !finite(in.Target):
		v.Add("target", "target must be a finite number")
	case in.Target < 0:
		v.Add("target", "target must not be negative")
	}
	if !finite(in.CurrentValue) {
		v.Add("current_value", "current value must be a finite number")
	}
	if strings.TrimSpace(in.Unit) == "" {
		v.Add("unit", "unit is required")
	}
	return v.OrNil()
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// CommentInput is the body of POST /okrs/{okrId}/comments.
type CommentInput struct {
	Content string `json:"content"`
}

// Validate rejects whitespace-only content.
func (in CommentInput) Validate() error {
	if strings.TrimSpace(in.Content) == "" {
		v := NewValidationError()
		v.Add("content", "content is required")
		return v
	}
	return nil
}

// NormalizeDate converts a server timestamp or date into YYYY-MM-DD.
// Unparseable input is returned unchanged.
func NormalizeDate(raw string) string {
	if raw == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Format(DateLayout)
	}
	if len(raw) >= len(DateLayout) {
		if t, err := time.Parse(DateLayout, raw[:len(DateLayout)]); err == nil {
			return t.Format(DateLayout)
		}
	}
	return raw
}
