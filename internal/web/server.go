// Package web provides an HTTP status and control server for the transmitter daemon.
package web

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/sweeney/ir-transmitter/internal/status"
)

// ErrInvalid is returned by a Controller for values it rejects.
var ErrInvalid = errors.New("invalid value")

// Controller applies configuration changes to the running transmitter.
// Calls return once the change has been applied.
type Controller interface {
	Run() error
	SetFrequency(n int) error
	SetContinuous(on bool) error
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ctrl       Controller
}

// New creates a Server that reads state from the given tracker.
// Control endpoints are only served when ctrl is non-nil.
func New(addr string, tracker *status.Tracker, ctrl Controller) *Server {
	s := &Server{tracker: tracker, ctrl: ctrl}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	if ctrl != nil {
		mux.HandleFunc("/run", s.handleRun)
		mux.HandleFunc("/frequency", s.handleFrequency)
		mux.HandleFunc("/continuous", s.handleContinuous)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.ctrl != nil); err != nil {
		log.Printf("web: render index: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	s.respond(w, r, s.ctrl.Run())
}

func (s *Server) handleFrequency(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	n, err := strconv.Atoi(r.FormValue("n"))
	if err != nil {
		http.Error(w, "n must be an integer frequency number", http.StatusBadRequest)
		return
	}
	s.respond(w, r, s.ctrl.SetFrequency(n))
}

func (s *Server) handleContinuous(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	on, err := strconv.ParseBool(r.FormValue("on"))
	if err != nil {
		http.Error(w, "on must be true or false", http.StatusBadRequest)
		return
	}
	s.respond(w, r, s.ctrl.SetContinuous(on))
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// respond reports a control result. Browser form posts are redirected back
// to the status page; other clients get the status JSON.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Printf("web: control request %s failed: %v", r.URL.Path, err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	if r.Header.Get("Content-Type") == "application/x-www-form-urlencoded" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.handleJSON(w, r)
}
