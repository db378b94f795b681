package okr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DraftPrefix marks key-result rows that exist only in local form state.
const DraftPrefix = "draft-"

// KeyResultDraft is one editable key-result row of an objective form.
// ID is the server identity for persisted rows and DraftPrefix+uuid otherwise.
type KeyResultDraft struct {
	ID           string
	Title        string
	Target       float64
	Unit         string
	CurrentValue float64
}

// IsDraft reports whether the row has never been persisted.
func (d KeyResultDraft) IsDraft() bool {
	return d.ID == "" || strings.HasPrefix(d.ID, DraftPrefix)
}

// Complete reports whether the row carries enough data to be created:
// a non-empty title, a non-zero target and a non-empty unit.
func (d KeyResultDraft) Complete() bool {
	return strings.TrimSpace(d.Title) != "" && d.Target != 0 && strings.TrimSpace(d.Unit) != ""
}

// Progress returns the row's percentage complete.
func (d KeyResultDraft) Progress() int {
	return Progress(d.CurrentValue, d.Target)
}

func (d KeyResultDraft) input() KeyResultInput {
	return KeyResultInput{
		Title:        strings.TrimSpace(d.Title),
		Target:       d.Target,
		Unit:         strings.TrimSpace(d.Unit),
		CurrentValue: d.CurrentValue,
	}
}

// createInput is the body for a new key result, which always starts at zero.
func (d KeyResultDraft) createInput() KeyResultInput {
	in := d.input()
	in.CurrentValue = 0
	return in
}

// rowField prefixes the field errors of row i, e.g. "key_results[0].title".
func rowField(i int) string {
	return fmt.Sprintf("key_results[%d].", i)
}

// mergeFields copies the field errors of err into v under prefix.
func mergeFields(v *ValidationError, prefix string, err error) {
	var fields *ValidationError
	if !errors.As(err, &fields) {
		return
	}
	for k, msg := range fields.Fields {
		v.Add(prefix+k, msg)
	}
}

// CreateObjectiveForm collects a new objective and its key-result rows.
type CreateObjectiveForm struct {
	Title       string
	Description string
	Responsible string
	DueDate     string
	Rows        []KeyResultDraft

	// Compensate deletes the objective again when any key result fails.
	Compensate bool

	ids IDGenerator
}

// NewCreateObjectiveForm returns an empty form holding one blank row.
func NewCreateObjectiveForm(ids IDGenerator) *CreateObjectiveForm {
	f := &CreateObjectiveForm{ids: ids}
	f.Reset()
	return f
}

// Reset clears every field and leaves a single blank row.
func (f *CreateObjectiveForm) Reset() {
	compensate := f.Compensate
	*f = CreateObjectiveForm{ids: f.ids, Compensate: compensate}
	f.AddRow()
}

// AddRow appends a blank row and returns its ID.
func (f *CreateObjectiveForm) AddRow() string {
	id := DraftPrefix + f.ids.New()
	f.Rows = append(f.Rows, KeyResultDraft{ID: id})
	return id
}

// RemoveRow removes the row at index i. The last remaining row is kept.
func (f *CreateObjectiveForm) RemoveRow(i int) bool {
	if len(f.Rows) <= 1 || i < 0 || i >= len(f.Rows) {
		return false
	}
	f.Rows = append(f.Rows[:i:i], f.Rows[i+1:]...)
	return true
}

// SetRow replaces the row at index i, keeping its ID.
func (f *CreateObjectiveForm) SetRow(i int, d KeyResultDraft) error {
	if i < 0 || i >= len(f.Rows) {
		return fmt.Errorf("row %d out of range", i)
	}
	d.ID = f.Rows[i].ID
	f.Rows[i] = d
	return nil
}

// Input assembles the objective request body.
func (f *CreateObjectiveForm) Input() ObjectiveInput {
	return ObjectiveInput{
		Title:       strings.TrimSpace(f.Title),
		Description: strings.TrimSpace(f.Description),
		Responsible: strings.TrimSpace(f.Responsible),
		DueDate:     strings.TrimSpace(f.DueDate),
	}
}

// Validate checks the required fields and every complete row, so nothing
// is sent when any part of the submission would be rejected. Blank or
// partial rows are skipped by Submit and not checked.
func (f *CreateObjectiveForm) Validate() error {
	v := NewValidationError()
	mergeFields(v, "", f.Input().Validate())
	for i, row := range f.Rows {
		if row.Complete() {
			mergeFields(v, rowField(i), row.createInput().Validate())
		}
	}
	return v.OrNil()
}

// Submit creates the objective, then each complete row in order.
//
// A key-result failure stops the loop and returns a *PartialCreateError
// alongside the objective. Already-created resources stay on the server
// unless Compensate is set.
func (f *CreateObjectiveForm) Submit(ctx context.Context, gw Gateway) (*Objective, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	obj, err := gw.CreateObjective(ctx, f.Input())
	if err != nil {
		return nil, fmt.Errorf("creating objective: %w", err)
	}

	created := make([]KeyResult, 0, len(f.Rows))
	for _, row := range f.Rows {
		if !row.Complete() {
			continue
		}
		in := row.createInput()
		kr, err := gw.CreateKeyResult(ctx, obj.ID, in)
		if err != nil {
			perr := &PartialCreateError{Objective: obj, Created: created, FailedTitle: in.Title, Err: err}
			if f.Compensate {
				if derr := gw.DeleteObjective(ctx, obj.ID); derr != nil {
					perr.Err = errors.Join(err, fmt.Errorf("removing objective: %w", derr))
				} else {
					perr.Compensated = true
				}
			}
			return obj, perr
		}
		created = append(created, *kr)
	}

	obj.KeyResults = created
	obj.Comments = []Comment{}
	return obj, nil
}

// EditObjectiveForm edits an existing objective and its key results.
type EditObjectiveForm struct {
	ID          string
	Title       string
	Description string
	Responsible string
	DueDate     string
	Rows        []KeyResultDraft

	original Objective
	ids      IDGenerator
}

// NewEditObjectiveForm returns a form hydrated from o.
func NewEditObjectiveForm(o Objective, ids IDGenerator) *EditObjectiveForm {
	f := &EditObjectiveForm{ids: ids}
	f.Hydrate(o)
	return f
}

// Hydrate replaces the form state with the latest copy of o.
func (f *EditObjectiveForm) Hydrate(o Objective) {
	f.original = o
	f.ID = o.ID
	f.Title = o.Title
	f.Description = o.Description
	f.Responsible = o.Responsible
	f.DueDate = NormalizeDate(o.DueDate)
	f.Rows = make([]KeyResultDraft, len(o.KeyResults))
	for i, kr := range o.KeyResults {
		f.Rows[i] = KeyResultDraft{
			ID:           kr.ID,
			Title:        kr.Title,
			Target:       kr.Target,
			Unit:         kr.Unit,
			CurrentValue: kr.CurrentValue,
		}
	}
}

// AddRow appends a local row defaulting to a 100% target and returns its ID.
func (f *EditObjectiveForm) AddRow() string {
	id := DraftPrefix + f.ids.New()
	f.Rows = append(f.Rows, KeyResultDraft{ID: id, Target: 100, Unit: "%"})
	return id
}

// Row returns the row with the given ID.
func (f *EditObjectiveForm) Row(id string) (KeyResultDraft, bool) {
	i := f.indexOf(id)
	if i < 0 {
		return KeyResultDraft{}, false
	}
	return f.Rows[i], true
}

// SetRow replaces the row with the given ID.
func (f *EditObjectiveForm) SetRow(id string, d KeyResultDraft) error {
	i := f.indexOf(id)
	if i < 0 {
		return fmt.Errorf("key result %s: %w", id, ErrNotFound)
	}
	d.ID = id
	f.Rows[i] = d
	return nil
}

// RemoveRow removes a row. Persisted rows are deleted on the server right
// away; if that fails the row stays in the form. Local rows are dropped
// without a network call.
func (f *EditObjectiveForm) RemoveRow(ctx context.Context, gw Gateway, id string) error {
	i := f.indexOf(id)
	if i < 0 {
		return fmt.Errorf("key result %s: %w", id, ErrNotFound)
	}
	if !f.Rows[i].IsDraft() {
		if err := gw.DeleteKeyResult(ctx, id); err != nil {
			return fmt.Errorf("deleting key result: %w", err)
		}
	}
	f.Rows = append(f.Rows[:i:i], f.Rows[i+1:]...)
	return nil
}

func (f *EditObjectiveForm) indexOf(id string) int {
	for i, r := range f.Rows {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Input assembles the objective request body.
func (f *EditObjectiveForm) Input() ObjectiveInput {
	return ObjectiveInput{
		Title:       strings.TrimSpace(f.Title),
		Description: strings.TrimSpace(f.Description),
		Responsible: strings.TrimSpace(f.Responsible),
		DueDate:     strings.TrimSpace(f.DueDate),
	}
}

// Validate checks the required fields, that at least one key result
// remains and that every row would be accepted. Submit saves every row, so
// one bad row must stop the objective update too.
func (f *EditObjectiveForm) Validate() error {
	v := NewValidationError()
	mergeFields(v, "", f.Input().Validate())
	if len(f.Rows) == 0 {
		v.Add("key_results", "add at least one key result")
	}
	for i, row := range f.Rows {
		mergeFields(v, rowField(i), row.input().Validate())
	}
	return v.OrNil()
}

// Submit updates the objective, then creates local rows and updates
// persisted ones, in form order. The returned objective keeps the comments
// of the copy the form was hydrated from.
func (f *EditObjectiveForm) Submit(ctx context.Context, gw Gateway) (*Objective, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	updated, err := gw.UpdateObjective(ctx, f.ID, f.Input())
	if err != nil {
		return nil, fmt.Errorf("updating objective: %w", err)
	}

	results := make([]KeyResult, 0, len(f.Rows))
	for _, row := range f.Rows {
		var kr *KeyResult
		if row.IsDraft() {
			kr, err = gw.CreateKeyResult(ctx, f.ID, row.input())
		} else {
			kr, err = gw.UpdateKeyResult(ctx, row.ID, row.input())
		}
		if err != nil {
			return nil, fmt.Errorf("saving key result %q: %w", row.Title, err)
		}
		results = append(results, *kr)
	}

	merged := f.original
	merged.Title = updated.Title
	merged.Description = updated.Description
	merged.Responsible = updated.Responsible
	merged.DueDate = updated.DueDate
	if updated.Status != "" {
		merged.Status = updated.Status
	}
	if !updated.UpdatedAt.IsZero() {
		merged.UpdatedAt = updated.UpdatedAt
	}
	merged.KeyResults = results
	return &merged, nil
}

// CommentPoster creates comments. Gateway implementations satisfy it, as
// does Service, which also invalidates the cached comment list.
type CommentPoster interface {
	CreateComment(ctx context.Context, okrID string, in CommentInput) (*Comment, error)
}

// Modifier is a bit set of keyboard modifiers.
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModMeta
	ModShift
	ModAlt
)

// CommentComposer holds the text of a new comment on one objective.
type CommentComposer struct {
	OKRID string
	Text  string

	poster CommentPoster
}

// NewCommentComposer returns an empty composer posting through p.
func NewCommentComposer(okrID string, p CommentPoster) *CommentComposer {
	return &CommentComposer{OKRID: okrID, poster: p}
}

// SetText replaces the composer input.
func (c *CommentComposer) SetText(s string) {
	c.Text = s
}

// CanSubmit reports whether the trimmed input is non-empty.
func (c *CommentComposer) CanSubmit() bool {
	return strings.TrimSpace(c.Text) != ""
}

// Submit posts the trimmed text. Whitespace-only input returns
// ErrEmptyComment without a network call and leaves the input untouched.
// The input is cleared only on success.
func (c *CommentComposer) Submit(ctx context.Context) (*Comment, error) {
	if !c.CanSubmit() {
		return nil, ErrEmptyComment
	}
	cm, err := c.poster.CreateComment(ctx, c.OKRID, CommentInput{Content: strings.TrimSpace(c.Text)})
	if err != nil {
		return nil, err
	}
	c.Text = ""
	return cm, nil
}

// HandleKey submits on Enter combined with Ctrl or Meta. Other keys are
// ignored and report submitted=false.
func (c *CommentComposer) HandleKey(ctx context.Context, key string, mods Modifier) (submitted bool, cm *Comment, err error) {
	if key != "Enter" || mods&(ModCtrl|ModMeta) == 0 {
		return false, nil, nil
	}
	cm, err = c.Submit(ctx)
	return true, cm, err
}
