package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/robfig/cron/v3"

	"okr-go/internal/api"
	"okr-go/internal/cache"
	"okr-go/internal/config"
	"okr-go/internal/database"
	"okr-go/internal/encryption"
	"okr-go/internal/okr"
	"okr-go/internal/session"
)

// OKRApp is the application layer between the CLI and okr.Service.
// It constructs all dependencies from config, exposes the operations the
// commands run, and releases the database and log file on Close.
type OKRApp struct {
	cfg     *config.Config
	db      *database.SQLiteDatabase // nil unless the session or cache needs it
	session *session.Context
	client  *api.Client
	cache   *cache.Cache
	service *okr.Service
	logger  *slog.Logger
	op      *Operation
	logFile *os.File
}

// Option configures NewOKRApp.
type Option func(*options)

type options struct {
	stderr     io.Writer
	httpClient *http.Client
}

// WithStderr sets where warnings are echoed. Defaults to os.Stderr.
func WithStderr(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}

// WithHTTPClient replaces the API transport. The configured timeout is not
// applied to a client passed this way.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// NewOKRApp creates a fully wired OKRApp from the given config.
// operation names the CLI command being run (e.g. "Login", "Dashboard").
// The caller must call Close when done.
func NewOKRApp(cfg *config.Config, operation string, opts ...Option) (*OKRApp, error) {
	o := options{stderr: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := NewOperation(operation, time.Now())
	logger, logFile, err := newLogger(cfg.LogDir, cfg.LogLevel, op.ID, o.stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a := &OKRApp{cfg: cfg, logger: logger, op: op, logFile: logFile}
	log := &slogAdapter{l: logger}

	if cfg.Session.Type == "sqlite" || cfg.Cache.Persist {
		db, err := database.NewDatabaseFromConfig(cfg.Database)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating database: %w", err)
		}
		a.db = db
	}

	sealer, err := encryption.NewSealerFromConfig(cfg.Session)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating session sealer: %w", err)
	}
	var items session.ItemStore
	if a.db != nil {
		items = a.db
	}
	store, err := session.NewStoreFromConfig(cfg.Session, sealer, items)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating session store: %w", err)
	}
	a.session = session.NewContext(store)

	httpClient := o.httpClient
	if httpClient == nil {
		timeout, _ := cfg.HTTPTimeout()
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = config.DefaultAPIBaseURL
	}
	a.client = api.NewClient(baseURL, httpClient, a.session, log)

	cacheOpts := []cache.Option{cache.WithLogger(log)}
	if cfg.Cache.Persist && a.db != nil {
		cacheOpts = append(cacheOpts, cache.WithPersister(a.db))
	}
	a.cache = cache.New(cacheOpts...)
	a.service = okr.NewService(a.client, a.cache, okr.UUIDGenerator{}, log)

	logger.Debug("operation started", "operation", op.Name)
	return a, nil
}

// run wraps one operation so its outcome is recorded and logged.
func (a *OKRApp) run(fn func() error) error {
	err := fn()
	a.op.Finish(err)
	if err != nil {
		a.logger.Error("operation failed", "operation", a.op.Name, "error", err)
	}
	return err
}

// Identity is the locally known session plus what the token reveals.
type Identity struct {
	Session   okr.Session
	ExpiresAt *time.Time
}

// Register creates an account and starts a session for it.
func (a *OKRApp) Register(ctx context.Context, in okr.RegisterInput) (okr.Session, error) {
	var sess okr.Session
	err := a.run(func() error {
		resp, err := a.client.Register(ctx, in)
		if err != nil {
			return err
		}
		sess = resp.Session(in.Email)
		return a.begin(sess)
	})
	return sess, err
}

// Login authenticates and stores the issued session.
func (a *OKRApp) Login(ctx context.Context, in okr.LoginInput) (okr.Session, error) {
	var sess okr.Session
	err := a.run(func() error {
		resp, err := a.client.Login(ctx, in)
		if err != nil {
			return err
		}
		sess = resp.Session(in.Email)
		return a.begin(sess)
	})
	return sess, err
}

func (a *OKRApp) begin(sess okr.Session) error {
	// A new identity must not see lists cached for the previous one.
	if err := a.forgetLocalData(); err != nil {
		return err
	}
	if err := a.session.Begin(sess); err != nil {
		return err
	}
	a.logger.Info("session started", "email", sess.Email)
	return nil
}

// Logout removes the session and every cached list.
func (a *OKRApp) Logout() error {
	return a.run(func() error {
		if err := a.session.End(); err != nil {
			return err
		}
		if err := a.forgetLocalData(); err != nil {
			return err
		}
		a.logger.Info("session ended")
		return nil
	})
}

func (a *OKRApp) forgetLocalData() error {
	a.service.Forget()
	if a.db != nil {
		if err := a.db.ClearSnapshots(); err != nil {
			return err
		}
	}
	return nil
}

// WhoAmI returns the stored session. The token is opaque to the client; its
// expiry is only read for display and never trusted.
func (a *OKRApp) WhoAmI() (Identity, error) {
	var id Identity
	err := a.run(func() error {
		sess, err := a.session.Session()
		if err != nil {
			return err
		}
		if !sess.IsAuthenticated() {
			return okr.ErrNotAuthenticated
		}
		id.Session = sess
		id.ExpiresAt = tokenExpiry(sess.Token)
		return nil
	})
	return id, err
}

func tokenExpiry(token string) *time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}

// Dashboard fetches the objective list and applies filters.
func (a *OKRApp) Dashboard(ctx context.Context, filters okr.FilterState) (okr.Dashboard, error) {
	var d okr.Dashboard
	err := a.run(func() error {
		list, err := a.service.Objectives(ctx)
		if err != nil {
			return err
		}
		d = okr.BuildDashboard(list, filters, a.placeholderOwner())
		return nil
	})
	return d, err
}

// OfflineDashboard builds the dashboard from the last stored list without
// touching the network. fetchedAt is when that list was fetched.
func (a *OKRApp) OfflineDashboard(filters okr.FilterState) (d okr.Dashboard, fetchedAt time.Time, err error) {
	err = a.run(func() error {
		list, _, at, err := a.service.CachedObjectives()
		if err != nil {
			return err
		}
		d = okr.BuildDashboard(list, filters, a.placeholderOwner())
		fetchedAt = at
		return nil
	})
	return d, fetchedAt, err
}

func (a *OKRApp) placeholderOwner() string {
	if a.cfg.Dashboard.PlaceholderOwner != "" {
		return a.cfg.Dashboard.PlaceholderOwner
	}
	return okr.DefaultPlaceholderOwner
}

// ShowObjective returns the expanded card of one objective.
func (a *OKRApp) ShowObjective(ctx context.Context, id string) (*okr.Card, error) {
	var card *okr.Card
	err := a.run(func() error {
		o, err := a.service.Objective(ctx, id)
		if err != nil {
			return err
		}
		card = okr.NewCard(*o)
		card.Toggle()
		return nil
	})
	return card, err
}

// CreateObjective opens the create dialog, lets fill populate the form and
// submits it.
func (a *OKRApp) CreateObjective(ctx context.Context, fill func(*okr.CreateObjectiveForm) error) (*okr.Objective, error) {
	var obj *okr.Objective
	err := a.run(func() error {
		form := a.service.NewCreateForm()
		modal := okr.NewModal(form.Reset)
		modal.Open()

		if err := fill(form); err != nil {
			modal.Cancel()
			return err
		}
		form.Compensate = form.Compensate || a.cfg.Forms.CompensatePartialCreate

		return modal.Submit(ctx, func(ctx context.Context) error {
			o, err := a.service.CreateObjective(ctx, form)
			obj = o
			return err
		})
	})
	return obj, err
}

// RowRemover removes a key-result row from an edit form. Persisted rows are
// deleted on the server immediately.
type RowRemover func(rowID string) error

// EditObjective opens the edit dialog hydrated from the latest copy of id,
// lets edit change the form and submits it.
func (a *OKRApp) EditObjective(ctx context.Context, id string, edit func(*okr.EditObjectiveForm, RowRemover) error) (*okr.Objective, error) {
	var obj *okr.Objective
	err := a.run(func() error {
		form, err := a.service.NewEditForm(ctx, id)
		if err != nil {
			return err
		}
		modal := okr.NewModal(nil)
		modal.Open()

		remove := func(rowID string) error {
			return a.service.RemoveKeyResultRow(ctx, form, rowID)
		}
		if err := edit(form, remove); err != nil {
			modal.Cancel()
			return err
		}

		return modal.Submit(ctx, func(ctx context.Context) error {
			o, err := a.service.UpdateObjective(ctx, form)
			obj = o
			return err
		})
	})
	return obj, err
}

// DeleteObjective deletes id. The cached list drops it immediately and is
// restored if the server refuses.
func (a *OKRApp) DeleteObjective(ctx context.Context, id string) error {
	return a.run(func() error {
		// The optimistic edit needs a list to edit.
		if _, err := a.service.Objectives(ctx); err != nil {
			return err
		}
		return a.service.DeleteObjective(ctx, id)
	})
}

// AddKeyResult attaches a key result to okrID.
func (a *OKRApp) AddKeyResult(ctx context.Context, okrID string, in okr.KeyResultInput) (*okr.KeyResult, error) {
	var kr *okr.KeyResult
	err := a.run(func() error {
		var err error
		kr, err = a.service.CreateKeyResult(ctx, okrID, in)
		return err
	})
	return kr, err
}

// UpdateKeyResult loads key result id, applies change to its current
// values and saves it.
func (a *OKRApp) UpdateKeyResult(ctx context.Context, id string, change func(*okr.KeyResultInput)) (*okr.KeyResult, error) {
	var kr *okr.KeyResult
	err := a.run(func() error {
		cur, err := a.findKeyResult(ctx, id)
		if err != nil {
			return err
		}
		in := okr.KeyResultInput{
			Title:        cur.Title,
			Target:       cur.Target,
			Unit:         cur.Unit,
			CurrentValue: cur.CurrentValue,
		}
		change(&in)
		kr, err = a.service.UpdateKeyResult(ctx, id, in)
		return err
	})
	return kr, err
}

func (a *OKRApp) findKeyResult(ctx context.Context, id string) (*okr.KeyResult, error) {
	list, err := a.service.Objectives(ctx)
	if err != nil {
		return nil, err
	}
	for _, o := range list {
		for _, kr := range o.KeyResults {
			if kr.ID == id {
				return &kr, nil
			}
		}
	}
	return nil, fmt.Errorf("key result %s: %w", id, okr.ErrNotFound)
}

// DeleteKeyResult removes key result id.
func (a *OKRApp) DeleteKeyResult(ctx context.Context, id string) error {
	return a.run(func() error {
		return a.service.DeleteKeyResult(ctx, id)
	})
}

// Comments lists the comments of okrID.
func (a *OKRApp) Comments(ctx context.Context, okrID string) ([]okr.Comment, error) {
	var list []okr.Comment
	err := a.run(func() error {
		var err error
		list, err = a.service.Comments(ctx, okrID)
		return err
	})
	return list, err
}

// AddComment posts text on okrID through the comment composer.
func (a *OKRApp) AddComment(ctx context.Context, okrID, text string) (*okr.Comment, error) {
	var c *okr.Comment
	err := a.run(func() error {
		composer := a.service.NewComposer(okrID)
		composer.SetText(text)
		var err error
		c, err = composer.Submit(ctx)
		return err
	})
	return c, err
}

// Notifications lists the notifications of the session user.
func (a *OKRApp) Notifications(ctx context.Context) ([]okr.Notification, error) {
	var list []okr.Notification
	err := a.run(func() error {
		var err error
		list, err = a.service.Notifications(ctx)
		return err
	})
	return list, err
}

// WatchNotifications calls fn with every state of the notification list
// until ctx ends, re-fetching every notifications.poll_interval. Fetching
// stops as soon as the watch ends.
func (a *OKRApp) WatchNotifications(ctx context.Context, fn func(okr.NotificationUpdate)) error {
	return a.run(func() error {
		tok, err := a.session.Token()
		if err != nil {
			return err
		}
		if tok == "" {
			return okr.ErrNotAuthenticated
		}
		interval, err := a.cfg.PollInterval()
		if err != nil {
			return err
		}

		sched := cron.New()
		if _, err := sched.AddFunc(fmt.Sprintf("@every %s", interval), a.service.RefreshNotifications); err != nil {
			return fmt.Errorf("scheduling notification refresh: %w", err)
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		a.logger.Debug("watching notifications", "interval", interval)
		for u := range a.service.WatchNotifications(ctx) {
			fn(u)
			// An expired session will not recover by polling.
			if errors.Is(u.Err, okr.ErrUnauthorized) {
				return u.Err
			}
		}
		return nil
	})
}

// Close records the outcome of the operation and releases the database and
// log file.
func (a *OKRApp) Close() error {
	var firstErr error

	if a.op != nil && !a.op.Done() {
		a.op.Finish(nil)
	}
	if a.logger != nil && a.op != nil {
		a.logger.Debug("operation finished", "operation", a.op.Name, "status", a.op.Status,
			"elapsed", time.Since(a.op.StartedAt).Round(time.Millisecond))
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
