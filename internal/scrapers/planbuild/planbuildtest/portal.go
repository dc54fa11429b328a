// Package planbuildtest runs an in-memory imitation of the PlanBuild portal for tests.
package planbuildtest

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

const (
	SessionCookie = "JSESSIONID"
	CSRFHeader    = "X-CSRF-TOKEN"
)

// Attachment is one document the portal serves for a record.
type Attachment struct {
	ID      string
	Name    string
	Content []byte
	// Status, when non-zero, is returned instead of the content.
	Status int
	// Delay holds the download back this long, or until the client gives up.
	Delay time.Duration
}

// Portal serves the landing page, listing, manifest and download endpoints. Its fields may be
// changed between runs but not while requests are in flight.
type Portal struct {
	Server *httptest.Server

	// Listings maps a jurisdiction code to the raw records listed under it.
	Listings map[string][]map[string]any
	// ListingStatus forces a status for a jurisdiction's listing.
	ListingStatus map[string]int
	// WrapField wraps the listing array in an object under this field, "" serves a bare array.
	WrapField string
	// MaxPageSize caps the page size the portal honours, 0 serves whatever is asked for.
	MaxPageSize int
	// ListingDelay holds a jurisdiction's listing back this long, or until the client gives up.
	ListingDelay map[string]time.Duration

	Attachments    map[string][]Attachment
	ManifestStatus map[string]int

	LandingStatus int
	OmitCookie    bool
	OmitToken     bool
	// HeaderName is advertised as the anti-forgery header, "" omits the marker.
	HeaderName string

	mu       sync.Mutex
	issued   int
	tokens   map[string]string
	landing  int
	listing  int
	manifest int
	download int
	bodies   []map[string]any
}

func NewPortal() *Portal {
	p := &Portal{
		Listings:       map[string][]map[string]any{},
		ListingStatus:  map[string]int{},
		ListingDelay:   map[string]time.Duration{},
		Attachments:    map[string][]Attachment{},
		ManifestStatus: map[string]int{},
		HeaderName:     CSRFHeader,
		tokens:         map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /external/advertisement/search", p.serveLanding)
	mux.HandleFunc("POST /api/advertisement/search", p.serveListing)
	mux.HandleFunc("GET /api/advertisement/{uuid}/attachments", p.serveManifest)
	mux.HandleFunc("GET /api/advertisement/{uuid}/attachments/{id}", p.serveDownload)
	p.Server = httptest.NewServer(mux)

	return p
}

func (p *Portal) URL() string {
	return p.Server.URL
}

func (p *Portal) Close() {
	p.Server.Close()
}

// Record builds a listing item the way the portal encodes it.
func Record(reference, uuid string, startMillis int64) map[string]any {
	return map[string]any{
		"description":     "Development application " + reference,
		"addressString":   "1 Example Street, Hobart TAS 7000",
		"referenceNumber": reference,
		"pid":             1234567,
		"uuid":            uuid,
		"startDate":       startMillis,
		"endDate":         startMillis + 14*24*60*60*1000,
		"ignoredField":    map[string]any{"nested": true},
	}
}

// ExpireSessions makes every session issued so far unauthenticated.
func (p *Portal) ExpireSessions() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = map[string]string{}
}

type Counts struct {
	Landing  int
	Listing  int
	Manifest int
	Download int
}

func (p *Portal) Counts() Counts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Counts{
		Landing:  p.landing,
		Listing:  p.listing,
		Manifest: p.manifest,
		Download: p.download,
	}
}

// ListingBodies returns the decoded bodies of every listing request received.
func (p *Portal) ListingBodies() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]any(nil), p.bodies...)
}

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Advertisement Search</title>
{{if .Token}}<meta name="_csrf" content="{{.Token}}">{{end}}
{{if .Header}}<meta name="_csrf_header" content="{{.Header}}">{{end}}
</head>
<body><div id="app"></div></body>
</html>`))

func (p *Portal) serveLanding(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.landing++
	p.issued++
	credential := fmt.Sprintf("session-%d", p.issued)
	token := fmt.Sprintf("token-%d", p.issued)
	p.tokens[credential] = token
	status := p.LandingStatus
	p.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	if !p.OmitCookie {
		http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: credential, Path: "/"})
	}
	http.SetCookie(w, &http.Cookie{Name: "AWSALB", Value: "affinity", Path: "/"})

	data := struct{ Token, Header string }{Header: p.HeaderName}
	if !p.OmitToken {
		data.Token = token
	}
	w.Header().Set("content-type", "text/html; charset=utf-8")
	landingTemplate.Execute(w, data)
}

func (p *Portal) authenticated(r *http.Request) bool {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return false
	}
	header := p.HeaderName
	if header == "" {
		header = CSRFHeader
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	token, ok := p.tokens[cookie.Value]
	return ok && r.Header.Get(header) == token
}

// stall waits for d or for the client to go away, whichever comes first.
func stall(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-r.Context().Done():
		return false
	}
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("content-type", "application/json")
	json.NewEncoder(w).Encode(value)
}

func (p *Portal) serveListing(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	err := json.NewDecoder(r.Body).Decode(&body)

	p.mu.Lock()
	p.listing++
	p.bodies = append(p.bodies, body)
	p.mu.Unlock()

	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !p.authenticated(r) || r.Header.Get("x-requested-with") != "XMLHttpRequest" {
		http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
		return
	}

	code, _ := body["lgaCode"].(string)
	if lgas, ok := body["lgas"].([]any); ok && len(lgas) > 0 {
		code, _ = lgas[0].(string)
	}
	if !stall(r, p.ListingDelay[code]) {
		return
	}
	if status := p.ListingStatus[code]; status != 0 {
		http.Error(w, `{"error":"listing unavailable"}`, status)
		return
	}

	offset, _ := body["offset"].(float64)
	requested, _ := body["pageSize"].(float64)
	pageSize := int(requested)
	if p.MaxPageSize > 0 && (pageSize <= 0 || pageSize > p.MaxPageSize) {
		pageSize = p.MaxPageSize
	}
	records := p.Listings[code]
	start := min(int(offset), len(records))
	end := len(records)
	if pageSize > 0 {
		end = min(start+pageSize, len(records))
	}
	page := records[start:end]
	if page == nil {
		page = []map[string]any{}
	}

	if p.WrapField != "" {
		writeJSON(w, map[string]any{p.WrapField: page, "total": len(records)})
		return
	}
	writeJSON(w, page)
}

func (p *Portal) serveManifest(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.manifest++
	p.mu.Unlock()

	if !p.authenticated(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	uuid := r.PathValue("uuid")
	if status := p.ManifestStatus[uuid]; status != 0 {
		w.WriteHeader(status)
		return
	}

	entries := []map[string]any{}
	for _, a := range p.Attachments[uuid] {
		entries = append(entries, map[string]any{"id": a.ID, "name": a.Name})
	}
	writeJSON(w, map[string]any{"attachments": entries})
}

func (p *Portal) serveDownload(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.download++
	p.mu.Unlock()

	if !p.authenticated(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	uuid := r.PathValue("uuid")
	id := r.PathValue("id")
	for _, a := range p.Attachments[uuid] {
		if a.ID != id {
			continue
		}
		if !stall(r, a.Delay) {
			return
		}
		if a.Status != 0 {
			w.WriteHeader(a.Status)
			return
		}
		w.Header().Set("content-type", "application/pdf")
		w.Write(a.Content)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}
