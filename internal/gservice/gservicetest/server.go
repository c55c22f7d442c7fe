// Package gservicetest provides an in-process fake of the Gmail REST API.
package gservicetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Server answers the profile, labels and messages endpoints used by the
// adapter. Messages are paged according to Pages regardless of the query.
type Server struct {
	*httptest.Server

	Email    string
	Labels   []string
	Pages    [][]string
	Messages map[string]*gmail.Message

	mu       sync.Mutex
	queries  []string
	bearers  []string
	failures map[string]int
}

// New starts a fake Gmail server closed at the end of the test.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		Messages: make(map[string]*gmail.Message),
		failures: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/profile", s.profile)
	mux.HandleFunc("GET /gmail/v1/users/me/labels", s.labels)
	mux.HandleFunc("GET /gmail/v1/users/me/messages", s.listMessages)
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", s.getMessage)

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)

	return s
}

// Options points a Gmail client at the fake.
func (s *Server) Options() []option.ClientOption {
	return []option.ClientOption{option.WithEndpoint(s.URL + "/")}
}

// FailWith makes every request whose path ends with suffix fail with code.
func (s *Server) FailWith(suffix string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[suffix] = code
}

// Queries returns the q parameters of every messages.list call.
func (s *Server) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Bearers returns the access tokens presented by clients.
func (s *Server) Bearers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bearers...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.bearers = append(s.bearers, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		code := 0
		for suffix, c := range s.failures {
			if strings.HasSuffix(r.URL.Path, suffix) {
				code = c
			}
		}
		s.mu.Unlock()

		if code != 0 {
			writeJSON(w, code, map[string]any{
				"error": map[string]any{"code": code, "message": http.StatusText(code)},
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) profile(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, &gmail.Profile{EmailAddress: s.Email})
}

func (s *Server) labels(w http.ResponseWriter, _ *http.Request) {
	res := &gmail.ListLabelsResponse{}
	for _, name := range s.Labels {
		res.Labels = append(res.Labels, &gmail.Label{Id: name, Name: name})
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.queries = append(s.queries, r.URL.Query().Get("q"))
	s.mu.Unlock()

	page := 0
	if tok := r.URL.Query().Get("pageToken"); tok != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(tok, "page-"))
		if err != nil {
			http.Error(w, "bad page token", http.StatusBadRequest)
			return
		}
		page = n
	}

	res := &gmail.ListMessagesResponse{}
	if page < len(s.Pages) {
		for _, id := range s.Pages[page] {
			res.Messages = append(res.Messages, &gmail.Message{Id: id, ThreadId: "t-" + id})
		}
		if page+1 < len(s.Pages) {
			res.NextPageToken = fmt.Sprintf("page-%d", page+1)
		}
	}
	res.ResultSizeEstimate = int64(len(res.Messages))

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.Messages[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]any{"code": http.StatusNotFound, "message": "Requested entity was not found."},
		})
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
