// Package testutil provides testing utilities for the Photos Library client.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request as seen by the mock server.
type RecordedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   []byte
	At     time.Time
}

// MockPhotos is a configurable mock Photos Library server for testing.
type MockPhotos struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request, body []byte)

	mediaPages [][]string
	albumPages [][]string
	uploads    int

	// Tracking
	Requests []RecordedRequest
}

// NewMockPhotos creates a new mock Photos Library server.
func NewMockPhotos() *MockPhotos {
	mock := &MockPhotos{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request, body []byte)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.Requests = append(mock.Requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
			At:     time.Now(),
		})
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r, body)
			return
		}

		mock.defaultHandler(w, r, body)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockPhotos) URL() string {
	return m.server.URL
}

// BaseURL returns the REST root to configure the client with.
func (m *MockPhotos) BaseURL() string {
	return m.server.URL + "/v1"
}

// UploadURL returns the upload endpoint to configure the client with.
func (m *MockPhotos) UploadURL() string {
	return m.server.URL + "/v1/uploads"
}

// Client returns an HTTP client for the server.
func (m *MockPhotos) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockPhotos) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockPhotos) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = nil
	m.uploads = 0
}

// SetHandler sets a custom handler for a specific path.
func (m *MockPhotos) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request, body []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockPhotos) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request, body []byte) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetMediaItemPages configures the media item pages served by
// mediaItems:search and mediaItems.list. Each page is a list of ids; page i
// is reached with the token "page-i".
func (m *MockPhotos) SetMediaItemPages(pages ...[]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mediaPages = pages
}

// SetAlbumPages configures the album pages served by albums.list and
// sharedAlbums.list.
func (m *MockPhotos) SetAlbumPages(pages ...[]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.albumPages = pages
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockPhotos) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Requests)
}

// RequestsTo returns the recorded requests for path.
func (m *MockPhotos) RequestsTo(path string) []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []RecordedRequest
	for _, req := range m.Requests {
		if req.Path == path {
			out = append(out, req)
		}
	}
	return out
}

// MediaItemJSON is the record served for a media item id.
func MediaItemJSON(id string) string {
	return fmt.Sprintf(`{"id":%q,"filename":%q,"mimeType":"image/jpeg"}`, id, id+".jpg")
}

// AlbumJSON is the record served for an album id.
func AlbumJSON(id string) string {
	return fmt.Sprintf(`{"id":%q,"title":%q}`, id, "Album "+id)
}

// defaultHandler provides Photos Library-like responses.
func (m *MockPhotos) defaultHandler(w http.ResponseWriter, r *http.Request, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	path := strings.TrimPrefix(r.URL.Path, "/v1")
	switch {
	case path == "/mediaItems:search" && r.Method == http.MethodPost:
		var req struct {
			PageToken string `json:"pageToken"`
		}
		_ = json.Unmarshal(body, &req)
		m.writePage(w, "mediaItems", m.pages(false), req.PageToken, MediaItemJSON)

	case path == "/mediaItems" && r.Method == http.MethodGet:
		m.writePage(w, "mediaItems", m.pages(false), r.URL.Query().Get("pageToken"), MediaItemJSON)

	case path == "/albums" && r.Method == http.MethodGet:
		m.writePage(w, "albums", m.pages(true), r.URL.Query().Get("pageToken"), AlbumJSON)

	case path == "/sharedAlbums" && r.Method == http.MethodGet:
		m.writePage(w, "sharedAlbums", m.pages(true), r.URL.Query().Get("pageToken"), AlbumJSON)

	case path == "/mediaItems:batchGet":
		results := make([]string, 0)
		for _, id := range r.URL.Query()["mediaItemIds"] {
			results = append(results, fmt.Sprintf(`{"mediaItem":%s}`, MediaItemJSON(id)))
		}
		fmt.Fprintf(w, `{"mediaItemResults":[%s]}`, strings.Join(results, ","))

	case path == "/uploads" && r.Method == http.MethodPost:
		m.mu.Lock()
		m.uploads++
		n := m.uploads
		m.mu.Unlock()
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "upload-token-%d", n)

	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND"}}`)
	}
}

func (m *MockPhotos) pages(albums bool) [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if albums {
		return m.albumPages
	}
	return m.mediaPages
}

func (m *MockPhotos) writePage(w http.ResponseWriter, field string, pages [][]string, token string, record func(string) string) {
	index := 0
	if token != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(token, "page-"))
		if err != nil || n <= 0 || n >= len(pages) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"error":{"code":400,"message":"Invalid page token.","status":"INVALID_ARGUMENT"}}`)
			return
		}
		index = n
	}

	var items []string
	if index < len(pages) {
		for _, id := range pages[index] {
			items = append(items, record(id))
		}
	}

	next := ""
	if index+1 < len(pages) {
		next = fmt.Sprintf(`,"nextPageToken":"page-%d"`, index+1)
	}

	if len(items) == 0 {
		fmt.Fprintf(w, `{%s}`, strings.TrimPrefix(next, ","))
		return
	}
	fmt.Fprintf(w, `{%q:[%s]%s}`, field, strings.Join(items, ","), next)
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":{"code":429,"message":"Quota exceeded for quota metric 'All requests'.","status":"RESOURCE_EXHAUSTED"}}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error":{"code":500,"message":"Internal error encountered.","status":"INTERNAL"}}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
