// Package relaytest runs an in-memory upstream document store for tests.
package relaytest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Upload is one multipart submission the server accepted or rejected.
type Upload struct {
	UUID             string
	CouncilReference string
	Token            string
	FileName         string
	Content          []byte
}

type Server struct {
	*httptest.Server

	// Token, when set, must be presented by every upload.
	Token string
	// Fail maps a file name to the status returned for it.
	Fail map[string]int

	mu       sync.Mutex
	accepted []Upload
	rejected []Upload
}

func NewServer() *Server {
	s := &Server{Fail: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	err := r.ParseMultipartForm(32 << 20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("pdf")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	up := Upload{
		UUID:             r.FormValue("uuid"),
		CouncilReference: r.FormValue("council_reference"),
		Token:            r.FormValue("token"),
		FileName:         header.Filename,
		Content:          content,
	}

	status := s.Fail[up.FileName]
	if status == 0 && s.Token != "" && up.Token != s.Token {
		status = http.StatusUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if status != 0 {
		s.rejected = append(s.rejected, up)
		http.Error(w, "rejected", status)
		return
	}
	s.accepted = append(s.accepted, up)
	w.Write([]byte(`{"ok":true}`))
}

func (s *Server) Accepted() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.accepted...)
}

func (s *Server) Rejected() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.rejected...)
}
