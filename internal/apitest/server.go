// Package apitest runs an in-memory OKR API for tests. It speaks the same
// routes, JSON shapes and bearer-token rules as the real service.
package apitest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"okr-go/internal/okr"
)

// Request records one request the server received.
type Request struct {
	Method        string
	Path          string
	Authorization string
}

type failure struct {
	status  int
	message string
}

type user struct {
	okr.User
	password string
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

// Server is a fake OKR API.
type Server struct {
	mu            sync.Mutex
	secret        []byte
	users         map[string]*user
	objectives    []*okr.Objective
	notifications map[string][]okr.Notification
	requests      []Request
	failures      map[string][]failure
	clock         okr.Clock
	tokenTTL      time.Duration

	httpServer *httptest.Server
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := New()
	s.httpServer = httptest.NewServer(s.Handler())
	t.Cleanup(s.httpServer.Close)
	return s
}

// New returns a server that is not listening; serve it with Handler.
func New() *Server {
	return &Server{
		secret:        []byte(uuid.NewString()),
		users:         make(map[string]*user),
		notifications: make(map[string][]okr.Notification),
		failures:      make(map[string][]failure),
		clock:         okr.RealClock{},
		tokenTTL:      24 * time.Hour,
	}
}

// URL is the base URL of a server started with NewServer.
func (s *Server) URL() string {
	return s.httpServer.URL
}

// SetClock overrides the server's time source.
func (s *Server) SetClock(c okr.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = c
}

// FailNext makes the next request matching route, e.g. "DELETE /okrs/{id}",
// fail with status. An empty message sends a body that is not JSON.
func (s *Server) FailNext(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], failure{status: status, message: message})
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// RequestCount returns how many requests hit method and path.
func (s *Server) RequestCount(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// AddUser registers a user directly and returns a valid token for it.
func (s *Server) AddUser(email, password, firstName, lastName string) (okr.User, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.addUserLocked(email, password, firstName, lastName)
	token, _ := s.issueLocked(u)
	return u.User, token
}

// Objectives returns a copy of the stored objectives.
func (s *Server) Objectives() []okr.Objective {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]okr.Objective, len(s.objectives))
	for i, o := range s.objectives {
		out[i] = copyObjective(o)
	}
	return out
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.record)

	s.handle(r, http.MethodPost, "/auth/register", s.register)
	s.handle(r, http.MethodPost, "/auth/login", s.login)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		s.handle(r, http.MethodGet, "/okrs", s.listObjectives)
		s.handle(r, http.MethodPost, "/okrs", s.createObjective)
		s.handle(r, http.MethodGet, "/okrs/notifications", s.listNotifications)
		s.handle(r, http.MethodPut, "/okrs/{id}", s.updateObjective)
		s.handle(r, http.MethodDelete, "/okrs/{id}", s.deleteObjective)
		s.handle(r, http.MethodPost, "/okrs/{okrId}/key-results", s.createKeyResult)
		s.handle(r, http.MethodPut, "/key-results/{id}", s.updateKeyResult)
		s.handle(r, http.MethodDelete, "/key-results/{id}", s.deleteKeyResult)
		s.handle(r, http.MethodGet, "/okrs/{okrId}/comments", s.listComments)
		s.handle(r, http.MethodPost, "/okrs/{okrId}/comments", s.createComment)
	})
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// handle registers h with injected-failure support keyed by "METHOD pattern".
func (s *Server) handle(r chi.Router, method, pattern string, h http.HandlerFunc) {
	route := method + " " + pattern
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.mu.Lock()
		var f *failure
		if q := s.failures[route]; len(q) > 0 {
			f = &q[0]
			s.failures[route] = q[1:]
		}
		s.mu.Unlock()

		if f != nil {
			if f.message == "" {
				w.WriteHeader(f.status)
				_, _ = w.Write([]byte("<html>upstream error</html>"))
				return
			}
			writeError(w, f.status, f.message)
			return
		}
		h(w, req)
	}))
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw := strings.TrimPrefix(header, "Bearer ")
		if header == "" || raw == header {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}

		var c claims
		_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		}, jwt.WithTimeFunc(s.currentTime))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		s.mu.Lock()
		u, ok := s.users[c.Email]
		s.mu.Unlock()
		if !ok || u.ID != c.Subject {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
	})
}

func (s *Server) currentTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Now()
}

func currentUser(r *http.Request) *user {
	u, _ := r.Context().Value(ctxKey{}).(*user)
	return u
}

func (s *Server) addUserLocked(email, password, firstName, lastName string) *user {
	now := s.clock.Now()
	u := &user{
		User: okr.User{
			ID:        uuid.NewString(),
			Email:     email,
			Profile:   &okr.Profile{FirstName: firstName, LastName: lastName},
			CreatedAt: now,
			UpdatedAt: now,
		},
		password: password,
	}
	s.users[email] = u
	return u
}

func (s *Server) issueLocked(u *user) (string, error) {
	now := s.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	})
	return token.SignedString(s.secret)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in okr.RegisterInput
	if !decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[in.Email]; exists {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	u := s.addUserLocked(in.Email, in.Password, in.FirstName, in.LastName)
	token, err := s.issueLocked(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusCreated, okr.AuthResponse{User: u.User, Token: token})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in okr.LoginInput
	if !decode(w, r, &in) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[in.Email]
	if !ok || u.password != in.Password {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	token, err := s.issueLocked(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, okr.AuthResponse{User: u.User, Token: token})
}

func (s *Server) listObjectives(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []okr.Objective{}
	for _, o := range s.objectives {
		if o.UserID != nil && *o.UserID == u.ID {
			out = append(out, copyObjective(o))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createObjective(w http.ResponseWriter, r *http.Request) {
	var in okr.ObjectiveInput
	if !decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u := currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	o := &okr.Objective{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Responsible: in.Responsible,
		DueDate:     in.DueDate + "T00:00:00.000Z",
		Status:      okr.StatusOnTrack,
		UserID:      &u.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
		KeyResults:  []okr.KeyResult{},
		Comments:    []okr.Comment{},
	}
	s.objectives = append(s.objectives, o)
	out := copyObjective(o)
	out.KeyResults, out.Comments = nil, nil
	writeJSON(w, http.StatusCreated, out)
}

// ownedLocked returns the objective id owned by u, writing a 404 otherwise.
func (s *Server) ownedLocked(w http.ResponseWriter, u *user, id string) (*okr.Objective, bool) {
	for _, o := range s.objectives {
		if o.ID == id && o.UserID != nil && *o.UserID == u.ID {
			return o, true
		}
	}
	writeError(w, http.StatusNotFound, "OKR not found")
	return nil, false
}

func (s *Server) updateObjective(w http.ResponseWriter, r *http.Request) {
	var in okr.ObjectiveInput
	if !decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u := currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.ownedLocked(w, u, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	o.Title, o.Description, o.Responsible = in.Title, in.Description, in.Responsible
	o.DueDate = in.DueDate + "T00:00:00.000Z"
	o.UpdatedAt = s.clock.Now()
	s.notifyLocked(u.ID, okr.EventUpdate, fmt.Sprintf("OKR %q was updated", o.Title), o.ID)

	out := copyObjective(o)
	out.KeyResults, out.Comments = nil, nil
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteObjective(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.ownedLocked(w, u, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	s.objectives = slices.DeleteFunc(s.objectives, func(x *okr.Objective) bool { return x == o })
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createKeyResult(w http.ResponseWriter, r *http.Request) {
	var in okr.KeyResultInput
	if !decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u := currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.ownedLocked(w, u, chi.URLParam(r, "okrId"))
	if !ok {
		return
	}
	kr := okr.KeyResult{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Target:       in.Target,
		CurrentValue: in.CurrentValue,
		Unit:         in.Unit,
		OKRID:        o.ID,
	}
	o.KeyResults = append(o.KeyResults, kr)
	writeJSON(w, http.StatusCreated, kr)
}

// keyResultLocked finds a key result on an objective owned by u.
func (s *Server) keyResultLocked(w http.ResponseWriter, u *user, id string) (*okr.Objective, int, bool) {
	for _, o := range s.objectives {
		if o.UserID == nil || *o.UserID != u.ID {
			continue
		}
		for i := range o.KeyResults {
			if o.KeyResults[i].ID == id {
				return o, i, true
			}
		}
	}
	writeError(w, http.StatusNotFound, "key result not found")
	return nil, 0, false
}

func (s *Server) updateKeyResult(w http.ResponseWriter, r *http.Request) {
	var in okr.KeyResultInput
	if !decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u := currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	o, i, ok := s.keyResultLocked(w, u, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	kr := &o.KeyResults[i]
	kr.Title, kr.Target, kr.Unit, kr.CurrentValue = in.Title, in.Target, in.Unit, in.CurrentValue
	writeJSON(w, http.StatusOK, *kr)
}

func (s *Server) deleteKeyResult(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	o, i, ok := s.keyResultLocked(w, u, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	o.KeyResults = slices.Delete(o.KeyResults, i, i+1)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.ownedLocked(w, u, chi.URLParam(r, "okrId"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, slices.Clone(o.Comments))
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	var in okr.CommentInput
	if !decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u := currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.ownedLocked(w, u, chi.URLParam(r, "okrId"))
	if !ok {
		return
	}
	now := s.clock.Now()
	c := okr.Comment{
		ID:        uuid.NewString(),
		Content:   in.Content,
		OKRID:     o.ID,
		UserID:    u.ID,
		CreatedAt: now,
		UpdatedAt: now,
		User:      &okr.Author{Profile: *u.Profile},
	}
	o.Comments = append(o.Comments, c)
	s.notifyLocked(*o.UserID, okr.EventComment, fmt.Sprintf("%s commented on %q", u.Profile.DisplayName(), o.Title), o.ID)
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.notifications[u.ID])
	if out == nil {
		out = []okr.Notification{}
	}
	// Newest first.
	slices.Reverse(out)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) notifyLocked(userID string, event okr.EventType, message, okrID string) {
	link := "/okrs/" + okrID
	s.notifications[userID] = append(s.notifications[userID], okr.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventType: event,
		Message:   message,
		LinkTo:    &link,
		CreatedAt: s.clock.Now(),
	})
}

func copyObjective(o *okr.Objective) okr.Objective {
	out := *o
	out.KeyResults = slices.Clone(o.KeyResults)
	out.Comments = slices.Clone(o.Comments)
	if out.KeyResults == nil {
		out.KeyResults = []okr.KeyResult{}
	}
	if out.Comments == nil {
		out.Comments = []okr.Comment{}
	}
	return out
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var syntax *json.SyntaxError
		msg := "invalid request body"
		if errors.As(err, &syntax) {
			msg = "malformed JSON"
		}
		writeError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
