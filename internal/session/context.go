package session

import (
	"fmt"
	"sync"

	"okr-go/internal/okr"
)

// Context carries the session through one operation. The record is read
// from the store once, on first use, and cached until Begin or End.
type Context struct {
	store okr.SessionStore

	mu     sync.Mutex
	loaded bool
	sess   okr.Session
}

// NewContext returns a context over store. Nothing is read until first use.
func NewContext(store okr.SessionStore) *Context {
	return &Context{store: store}
}

// Session returns the current record, the zero Session when logged out.
func (c *Context) Session() (okr.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		sess, err := c.store.Get()
		if err != nil {
			return okr.Session{}, err
		}
		c.sess = sess
		c.loaded = true
	}
	return c.sess, nil
}

// Token returns the bearer token, or "" when logged out.
func (c *Context) Token() (string, error) {
	sess, err := c.Session()
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

// Begin persists a freshly issued session.
func (c *Context) Begin(sess okr.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Set(sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	c.sess = sess
	c.loaded = true
	return nil
}

// End removes the stored session.
func (c *Context) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Remove(); err != nil {
		return err
	}
	c.sess = okr.Session{}
	c.loaded = true
	return nil
}
