package okr_test

import (
	"context"
	"errors"
	"testing"

	"okr-go/internal/okr"
)

func TestModal(t *testing.T) {
	ctx := context.Background()

	t.Run("open rehydrates", func(t *testing.T) {
		n := 0
		m := okr.NewModal(func() { n++ })
		m.Open()
		m.Open()
		if n != 1 || m.State() != okr.ModalOpen {
			t.Errorf("rehydrated %d times, state %v", n, m.State())
		}
		m.Cancel()
		m.Open()
		if n != 2 {
			t.Errorf("rehydrated %d times after reopen, want 2", n)
		}
	})

	t.Run("success closes", func(t *testing.T) {
		m := okr.NewModal(nil)
		m.Open()
		if err := m.Submit(ctx, func(context.Context) error { return nil }); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if m.IsOpen() {
			t.Errorf("state = %v, want closed", m.State())
		}
	})

	t.Run("failure stays open with the error", func(t *testing.T) {
		m := okr.NewModal(nil)
		m.Open()
		boom := errors.New("boom")
		if err := m.Submit(ctx, func(context.Context) error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("Submit() error = %v", err)
		}
		if m.State() != okr.ModalError || !errors.Is(m.Err(), boom) {
			t.Errorf("state = %v, err = %v", m.State(), m.Err())
		}

		// Resubmission from the error state is allowed.
		if err := m.Submit(ctx, func(context.Context) error { return nil }); err != nil {
			t.Fatalf("retry Submit() error = %v", err)
		}
		if m.State() != okr.ModalClosed || m.Err() != nil {
			t.Errorf("after retry state = %v, err = %v", m.State(), m.Err())
		}
	})

	t.Run("cannot cancel while submitting", func(t *testing.T) {
		m := okr.NewModal(nil)
		m.Open()
		_ = m.Submit(ctx, func(context.Context) error {
			if m.State() != okr.ModalSubmitting {
				t.Errorf("state during submit = %v", m.State())
			}
			if m.Cancel() {
				t.Error("Cancel() succeeded while submitting")
			}
			return nil
		})
	})

	t.Run("closed modal refuses submit", func(t *testing.T) {
		m := okr.NewModal(nil)
		if err := m.Submit(ctx, func(context.Context) error { return nil }); !errors.Is(err, okr.ErrModalBusy) {
			t.Errorf("Submit() error = %v, want ErrModalBusy", err)
		}
	})
}
