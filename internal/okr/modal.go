package okr

import (
	"context"
	"errors"
)

// ModalState is the lifecycle state of a form dialog.
type ModalState int

const (
	ModalClosed ModalState = iota
	ModalOpen
	ModalSubmitting
	ModalError
)

func (s ModalState) String() string {
	switch s {
	case ModalClosed:
		return "closed"
	case ModalOpen:
		return "open"
	case ModalSubmitting:
		return "submitting"
	case ModalError:
		return "open-with-error"
	default:
		return "unknown"
	}
}

// ErrModalBusy is returned when a modal is asked to submit while it is
// closed or already submitting.
var ErrModalBusy = errors.New("modal is not accepting submissions")

// Modal drives closed → open → submitting → closed | open-with-error.
// Cancel closes an open modal; a submitting modal cannot be cancelled.
type Modal struct {
	state     ModalState
	err       error
	rehydrate func()
}

// NewModal returns a closed modal. rehydrate, if non-nil, runs on every Open;
// edit dialogs use it to reload the latest entity.
func NewModal(rehydrate func()) *Modal {
	return &Modal{rehydrate: rehydrate}
}

func (m *Modal) State() ModalState { return m.state }

// Err returns the error of the last failed submission while the modal
// shows it.
func (m *Modal) Err() error { return m.err }

// IsOpen reports whether the modal is visible.
func (m *Modal) IsOpen() bool { return m.state != ModalClosed }

// Open shows the modal. Opening an open modal is a no-op.
func (m *Modal) Open() {
	if m.state != ModalClosed {
		return
	}
	if m.rehydrate != nil {
		m.rehydrate()
	}
	m.err = nil
	m.state = ModalOpen
}

// Cancel closes the modal unless a submission is in flight.
func (m *Modal) Cancel() bool {
	if m.state == ModalSubmitting {
		return false
	}
	m.state = ModalClosed
	m.err = nil
	return true
}

// Submit runs fn. Success closes the modal; failure keeps it open with the
// error attached.
func (m *Modal) Submit(ctx context.Context, fn func(context.Context) error) error {
	if m.state != ModalOpen && m.state != ModalError {
		return ErrModalBusy
	}
	m.state = ModalSubmitting
	if err := fn(ctx); err != nil {
		m.state = ModalError
		m.err = err
		return err
	}
	m.state = ModalClosed
	m.err = nil
	return nil
}
