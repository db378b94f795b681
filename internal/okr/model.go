package okr

import (
	"strings"
	"time"
)

// Status is the server-assigned lifecycle state of an objective.
// It is never derived locally; unknown values are kept verbatim.
type Status string

const (
	StatusOnTrack   Status = "on-track"
	StatusAtRisk    Status = "at-risk"
	StatusBehind    Status = "behind"
	StatusCompleted Status = "completed"
)

// Statuses lists the known statuses in display order.
var Statuses = []Status{StatusOnTrack, StatusAtRisk, StatusBehind, StatusCompleted}

// Label returns the human-readable label for the status.
func (s Status) Label() string {
	switch s {
	case StatusOnTrack:
		return "On track"
	case StatusAtRisk:
		return "At risk"
	case StatusBehind:
		return "Behind"
	case StatusCompleted:
		return "Completed"
	default:
		return string(s)
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Objective is a cached mirror of a server-owned OKR.
type Objective struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Responsible string      `json:"responsible"`
	DueDate     string      `json:"due_date"`
	Status      Status      `json:"status"`
	UserID      *string     `json:"user_id"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	KeyResults  []KeyResult `json:"keyResults"`
	Comments    []Comment   `json:"comments"`
}

// KeyResult is a measurable sub-target of an Objective.
type KeyResult struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Target       float64 `json:"target"`
	CurrentValue float64 `json:"current_value"`
	Unit         string  `json:"unit"`
	OKRID        string  `json:"okr_id"`
}

// Profile holds the display names attached to a user.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// DisplayName joins first and last name, skipping blanks.
func (p Profile) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Author is the nested user reference returned with comments.
type Author struct {
	Profile Profile `json:"profile"`
}

// Comment is a note attached to an Objective.
type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	OKRID     string    `json:"okr_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	User      *Author   `json:"user,omitempty"`
}

// AuthorName resolves the comment author to a display name.
func (c Comment) AuthorName() string {
	if c.User != nil {
		if name := c.User.Profile.DisplayName(); name != "" {
			return name
		}
	}
	if c.UserID != "" {
		return c.UserID
	}
	return "unknown"
}

// EventType classifies a notification.
type EventType string

const (
	EventUpdate   EventType = "update"
	EventComment  EventType = "comment"
	EventDeadline EventType = "deadline"
	EventOther    EventType = "other"
)

// Normalize maps unknown event types to EventOther.
func (e EventType) Normalize() EventType {
	switch e {
	case EventUpdate, EventComment, EventDeadline:
		return e
	default:
		return EventOther
	}
}

// Notification is a server-generated event for the current user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	EventType EventType `json:"event_type"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	LinkTo    *string   `json:"link_to"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is the identity returned by the auth endpoints.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Profile   *Profile  `json:"profile,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// Session builds the locally persisted session record from the response.
// email is used when the server omits it from the user object.
func (r *AuthResponse) Session(email string) Session {
	s := Session{Token: r.Token, Email: r.User.Email}
	if s.Email == "" {
		s.Email = email
	}
	if r.User.Profile != nil {
		s.FirstName = r.User.Profile.FirstName
		s.LastName = r.User.Profile.LastName
	}
	return s
}

// Session is the client-side convenience copy of a server-issued identity.
// The token is opaque; it is always re-validated server-side.
type Session struct {
	Token     string `json:"token"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// IsAuthenticated reports whether a token is present.
func (s Session) IsAuthenticated() bool {
	return s.Token != ""
}

// Initials returns the first letter of the first and last name, or "??".
func (s Session) Initials() string {
	if s.FirstName == "" || s.LastName == "" {
		return "??"
	}
	return strings.ToUpper(string([]rune(s.FirstName)[:1]) + string([]rune(s.LastName)[:1]))
}
