package okr_test

import (
	"errors"
	"math"
	"testing"

	"okr-go/internal/okr"
)

func TestInputValidation(t *testing.T) {
	tests := []struct {
		name   string
		input  interface{ Validate() error }
		fields []string
	}{
		{"valid login", okr.LoginInput{Email: "a@b.co", Password: "pw"}, nil},
		{"login missing fields", okr.LoginInput{}, []string{"email", "password"}},
		{"login bad email", okr.LoginInput{Email: "nope", Password: "pw"}, []string{"email"}},
		{"register missing names", okr.RegisterInput{Email: "a@b.co", Password: "pw"}, []string{"first_name", "last_name"}},
		{"valid objective", okr.ObjectiveInput{Title: "t", Responsible: "r", DueDate: "2024-01-31"}, nil},
		{"objective bad date", okr.ObjectiveInput{Title: "t", Responsible: "r", DueDate: "2024-13-01"}, []string{"due_date"}},
		{"key result negative target", okr.KeyResultInput{Title: "t", Target: -1, Unit: "%"}, []string{"target"}},
		{"key result zero target is allowed", okr.KeyResultInput{Title: "t", Target: 0, Unit: "%"}, nil},
		{"key result NaN target", okr.KeyResultInput{Title: "t", Target: math.NaN(), Unit: "%"}, []string{"target"}},
		{"key result infinite target", okr.KeyResultInput{Title: "t", Target: math.Inf(1), Unit: "%"}, []string{"target"}},
		{"key result infinite current value", okr.KeyResultInput{Title: "t", Target: 10, Unit: "%", CurrentValue: math.Inf(-1)}, []string{"current_value"}},
		{"blank comment", okr.CommentInput{Content: "  "}, []string{"content"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if len(tt.fields) == 0 {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			var v *okr.ValidationError
			if !errors.As(err, &v) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if len(v.Fields) != len(tt.fields) {
				t.Errorf("fields = %v, want %v", v.Fields, tt.fields)
			}
			for _, f := range tt.fields {
				if v.Field(f) == "" {
					t.Errorf("missing error for %s", f)
				}
			}
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := map[string]string{
		"":                         "",
		"2024-06-30":               "2024-06-30",
		"2024-06-30T00:00:00.000Z": "2024-06-30",
		"2024-06-30T22:00:00Z":     "2024-06-30",
		"tomorrow":                 "tomorrow",
	}
	for in, want := range tests {
		if got := okr.NormalizeDate(in); got != want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSession(t *testing.T) {
	s := okr.Session{Token: "t", FirstName: "maria", LastName: "lopez"}
	if s.Initials() != "ML" || !s.IsAuthenticated() {
		t.Errorf("Initials() = %q, IsAuthenticated() = %v", s.Initials(), s.IsAuthenticated())
	}
	if (okr.Session{FirstName: "x"}).Initials() != "??" {
		t.Error("Initials() without last name")
	}

	resp := okr.AuthResponse{Token: "tok", User: okr.User{Profile: &okr.Profile{FirstName: "A", LastName: "B"}}}
	got := resp.Session("a@b.co")
	want := okr.Session{Token: "tok", FirstName: "A", LastName: "B", Email: "a@b.co"}
	if got != want {
		t.Errorf("Session() = %+v, want %+v", got, want)
	}
}

func TestComment_AuthorName(t *testing.T) {
	c := okr.Comment{UserID: "u1"}
	if c.AuthorName() != "u1" {
		t.Errorf("AuthorName() = %q", c.AuthorName())
	}
	c.User = &okr.Author{Profile: okr.Profile{FirstName: "Ana", LastName: "Diaz"}}
	if c.AuthorName() != "Ana Diaz" {
		t.Errorf("AuthorName() = %q", c.AuthorName())
	}
	if (okr.Comment{}).AuthorName() != "unknown" {
		t.Error("AuthorName() of empty comment")
	}
}
