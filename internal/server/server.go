package server

import (
	"context"
	"embed"
	"io/fs"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/mycosphaera/fungarium/pkg/destination"
	"github.com/mycosphaera/fungarium/pkg/importer"
	"github.com/mycosphaera/fungarium/pkg/inat"
	"github.com/mycosphaera/fungarium/pkg/session"
)

//go:embed web
var WebFS embed.FS

const sessionCookie = "fungarium_session"

type Server struct {
	Inat     *inat.Client
	Store    destination.Store
	Sessions *session.Manager
	FieldMap importer.FieldMap
	Options  importer.Options
	Username string
	Password string

	mu     sync.Mutex
	schema *destination.Schema
}

func New(inatClient *inat.Client, store destination.Store, user, pass string) *Server {
	return &Server{
		Inat:     inatClient,
		Store:    store,
		Sessions: session.NewManager(),
		FieldMap: importer.DefaultFieldMap(),
		Username: user,
		Password: pass,
	}
}

func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	// API Group
	mux.HandleFunc("GET /api/results", s.basicAuth(s.withSession(s.handleResults)))
	mux.HandleFunc("POST /api/search", s.basicAuth(s.withSession(s.handleSearch)))
	mux.HandleFunc("POST /api/selection", s.basicAuth(s.withSession(s.handleSelection)))
	mux.HandleFunc("POST /api/selection/toggle", s.basicAuth(s.withSession(s.handleToggle)))
	mux.HandleFunc("POST /api/check", s.basicAuth(s.withSession(s.handleCheck)))
	mux.HandleFunc("POST /api/import", s.basicAuth(s.withSession(s.handleImport)))
	mux.HandleFunc("GET /api/schema", s.basicAuth(s.handleSchema))

	// Static Files
	webRoot, err := fs.Sub(WebFS, "web")
	if err != nil {
		return nil, err
	}
	fileServer := http.FileServer(http.FS(webRoot))
	mux.Handle("/", s.basicAuthMiddlewareForStatic(fileServer))

	return mux, nil
}

func (s *Server) Start(addr string) error {
	mux, err := s.Handler()
	if err != nil {
		return err
	}
	log.Printf("Starting server on %s", addr)
	return http.ListenAndServe(addr, mux)
}

// resolveSchema fetches the destination schema once and caches it for the
// lifetime of the server.
func (s *Server) resolveSchema(ctx context.Context) (destination.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema != nil {
		return *s.schema, nil
	}
	schema, err := s.Store.ResolveSchema(ctx)
	if err != nil {
		return destination.Schema{}, err
	}
	s.schema = &schema
	return schema, nil
}

// withSession resolves the caller's session from a cookie, minting one on
// first contact. Each browser tab shares a cookie jar, which matches the
// one-selection-per-browser model.
func (s *Server) withSession(next func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(sessionCookie); err == nil {
			id = c.Value
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
			})
		}
		next(w, r, s.Sessions.Get(id))
	}
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) basicAuthMiddlewareForStatic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
