package okr

import (
	"context"
	"io"
)

// Gateway is the resource side of the remote OKR API.
// Every method issues exactly one HTTP request; there is no retry.
type Gateway interface {
	// ListObjectives returns every objective visible to the session user,
	// with nested key results and comments.
	ListObjectives(ctx context.Context) ([]Objective, error)

	// CreateObjective creates an objective without key results.
	CreateObjective(ctx context.Context, in ObjectiveInput) (*Objective, error)

	// UpdateObjective replaces the core fields of an objective.
	UpdateObjective(ctx context.Context, id string, in ObjectiveInput) (*Objective, error)

	// DeleteObjective removes an objective and everything attached to it.
	DeleteObjective(ctx context.Context, id string) error

	// CreateKeyResult attaches a new key result to the objective okrID.
	CreateKeyResult(ctx context.Context, okrID string, in KeyResultInput) (*KeyResult, error)

	// UpdateKeyResult replaces a key result.
	UpdateKeyResult(ctx context.Context, id string, in KeyResultInput) (*KeyResult, error)

	// DeleteKeyResult removes a key result.
	DeleteKeyResult(ctx context.Context, id string) error

	// ListComments returns the comments of the objective okrID.
	ListComments(ctx context.Context, okrID string) ([]Comment, error)

	// CreateComment posts a comment on the objective okrID.
	CreateComment(ctx context.Context, okrID string, in CommentInput) (*Comment, error)

	// ListNotifications returns the notifications of the session user.
	ListNotifications(ctx context.Context) ([]Notification, error)
}

// Authenticator is the identity side of the remote OKR API. Neither call
// requires a session.
type Authenticator interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResponse, error)
	Login(ctx context.Context, in LoginInput) (*AuthResponse, error)
}

// SessionStore persists the single local session record.
// Get returns the zero Session when nothing is stored.
type SessionStore interface {
	Set(s Session) error
	Get() (Session, error)
	Remove() error
}

// Sealer encrypts small records at rest without user intervention.
type Sealer interface {
	// Setup performs one-time key generation.
	Setup() error

	// Seal encrypts data read from r and writes ciphertext to w.
	Seal(r io.Reader, w io.Writer) error

	// Open decrypts ciphertext read from r and writes plaintext to w.
	Open(r io.Reader, w io.Writer) error

	// IsConfigured reports whether the key material exists.
	IsConfigured() bool
}
