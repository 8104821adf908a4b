package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/harborline/quotebuilder/internal/utils"
	"github.com/harborline/quotebuilder/pkg/builder"
)

// SessionFactory builds the session persisted under id.
type SessionFactory func(id string) *builder.Session

type Server struct {
	Username     string
	PasswordHash string

	newSession SessionFactory
	mu         sync.Mutex
	sessions   map[string]*entry
}

// entry is a session slot. ready is closed once Open has returned; sess is
// only usable when err is nil.
type entry struct {
	sess  *builder.Session
	ready chan struct{}
	err   error
}

func New(factory SessionFactory, user, passwordHash string) *Server {
	return &Server{
		Username:     user,
		PasswordHash: passwordHash,
		newSession:   factory,
		sessions:     make(map[string]*entry),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sessions", s.basicAuth(s.handleCreate))
	mux.HandleFunc("GET /api/sessions/{id}", s.basicAuth(s.withSession(s.handleSummary)))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.basicAuth(s.handleDelete))
	mux.HandleFunc("POST /api/sessions/{id}/actions", s.basicAuth(s.withSession(s.handleAction)))
	mux.HandleFunc("POST /api/sessions/{id}/motor", s.basicAuth(s.withSession(s.handleSelectMotor)))
	mux.HandleFunc("POST /api/sessions/{id}/advance", s.basicAuth(s.withSession(s.handleAdvance)))
	mux.HandleFunc("GET /api/sessions/{id}/promotions", s.basicAuth(s.withSession(s.handleVisitPromotions)))
	mux.HandleFunc("POST /api/sessions/{id}/promotions", s.basicAuth(s.withSession(s.handleChoosePromo)))
	mux.HandleFunc("POST /api/sessions/{id}/recover", s.basicAuth(s.withSession(s.handleRecover)))
	mux.HandleFunc("GET /api/sessions/{id}/pricing", s.basicAuth(s.withSession(s.handlePricing)))
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		utils.Log.Infof("Starting server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close(shutdownCtx)
	return err
}

// Close flushes and stops every open session.
func (s *Server) Close(ctx context.Context) {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	for id, e := range sessions {
		<-e.ready
		if e.err != nil {
			continue
		}
		if err := e.sess.Close(ctx); err != nil {
			utils.Log.Warnf("Closing session %s: %v", id, err)
		}
	}
}

// session returns the open session for id, opening it from the store on
// first use. Concurrent callers for the same id wait for that first Open.
func (s *Server) session(ctx context.Context, id string) (*builder.Session, error) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if !ok {
		e = &entry{sess: s.newSession(id), ready: make(chan struct{})}
		s.sessions[id] = e
	}
	s.mu.Unlock()

	if ok {
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		return e.sess, nil
	}

	_, err := e.sess.Open(ctx)
	if err != nil {
		e.err = err
		s.mu.Lock()
		if s.sessions[id] == e {
			delete(s.sessions, id)
		}
		s.mu.Unlock()
		close(e.ready)
		if cerr := e.sess.Close(context.WithoutCancel(ctx)); cerr != nil {
			utils.Log.Debugf("Closing failed session %s: %v", id, cerr)
		}
		return nil, err
	}
	close(e.ready)
	return e.sess, nil
}

// drop removes id and returns its session once any Open in flight has
// finished. It returns nil when id is not open.
func (s *Server) drop(id string) *builder.Session {
	s.mu.Lock()
	e := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if e == nil {
		return nil
	}
	<-e.ready
	if e.err != nil {
		return nil
	}
	return e.sess
}

func newID() string {
	return uuid.NewString()
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.PasswordHash == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || bcrypt.CompareHashAndPassword([]byte(s.PasswordHash), []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
