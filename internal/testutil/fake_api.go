// Package testutil provides an in-process fake of the flaskion HTTP API.
package testutil

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// FakeResponse defines a canned response for an overridden route.
type FakeResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Image is a stored image as listed by the gallery endpoint.
type Image struct {
	Path  string  `json:"path"`
	Type  string  `json:"type"`
	Date  string  `json:"date"`
	MTime float64 `json:"mtime"`

	data []byte
	etag string
}

// User is a registered account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	password string
}

// FakeAPI is a configurable fake of the flaskion API for testing.
type FakeAPI struct {
	server *httptest.Server

	mu        sync.RWMutex
	overrides map[string]http.HandlerFunc
	users     map[string]*User
	tokens    map[string]string
	images    []*Image
	settings  map[string]string
	apiKey    string
	clock     float64

	requestCount      int
	conditionalCount  int
	hits              map[string]int
	lastRequestHeader http.Header
}

// NewFakeAPI starts a fake API server.
func NewFakeAPI() *FakeAPI {
	f := &FakeAPI{
		overrides: make(map[string]http.HandlerFunc),
		users:     make(map[string]*User),
		tokens:    make(map[string]string),
		settings:  make(map[string]string),
		hits:      make(map[string]int),
		clock:     float64(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Unix()),
	}

	r := chi.NewRouter()
	r.Use(f.track)
	r.Use(f.override)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/signup", f.handleSignup)
		r.Post("/auth/signin", f.handleSignin)

		r.Group(func(r chi.Router) {
			r.Use(f.requireAuth)
			r.Get("/auth/me", f.handleMe)
			r.Get("/gallery", f.handleGallery)
			r.Post("/image_gen", f.handleImageGen)
			r.Post("/image_edit", f.handleImageEdit)
			r.Patch("/settings", f.handleSettings)
			r.Post("/settings/api-key/regenerate", f.handleRegenerate)
			r.Get("/images/{type}/{date}/{id}", f.handleImage)
		})
	})

	f.server = httptest.NewServer(r)
	return f
}

// URL returns the server base URL.
func (f *FakeAPI) URL() string {
	return f.server.URL
}

// Close shuts down the server.
func (f *FakeAPI) Close() {
	f.server.Close()
}

// Reset clears tracking counters.
func (f *FakeAPI) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestCount = 0
	f.conditionalCount = 0
	f.hits = make(map[string]int)
	f.lastRequestHeader = nil
}

// SetHandler overrides the handler for method and exact path.
func (f *FakeAPI) SetHandler(method, path string, handler http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[method+" "+path] = handler
}

// ClearHandler removes an override.
func (f *FakeAPI) ClearHandler(method, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.overrides, method+" "+path)
}

// SetResponse overrides a route with a canned response.
func (f *FakeAPI) SetResponse(method, path string, resp FakeResponse) {
	f.SetHandler(method, path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
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

// AddUser registers an account and returns it.
func (f *FakeAPI) AddUser(email, password string) *User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addUserLocked(email, password)
}

func (f *FakeAPI) addUserLocked(email, password string) *User {
	now := time.Now().UTC()
	u := &User{
		ID:        uuid.NewString(),
		Email:     email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		password:  password,
	}
	f.users[email] = u
	return u
}

// IssueToken returns a valid bearer token for email, registering the
// user when needed.
func (f *FakeAPI) IssueToken(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[email]; !ok {
		f.addUserLocked(email, "password123")
	}
	token := uuid.NewString()
	f.tokens[token] = email
	return token
}

// RevokeTokens invalidates every issued token.
func (f *FakeAPI) RevokeTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = make(map[string]string)
}

// AddImage stores an image of the given type and date with content data.
func (f *FakeAPI) AddImage(imgType, date string, data []byte) Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.addImageLocked(imgType, date, data)
}

func (f *FakeAPI) addImageLocked(imgType, date string, data []byte) *Image {
	f.clock++
	sum := sha1.Sum(data)
	img := &Image{
		Path:  fmt.Sprintf("/api/v1/images/%s/%s/%s.png", imgType, date, uuid.NewString()),
		Type:  imgType,
		Date:  date,
		MTime: f.clock,
		data:  append([]byte(nil), data...),
		etag:  `"` + hex.EncodeToString(sum[:8]) + `"`,
	}
	f.images = append(f.images, img)
	return img
}

// SeedImages stores n generated images on date with distinct content.
func (f *FakeAPI) SeedImages(imgType, date string, n int) []Image {
	out := make([]Image, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, f.AddImage(imgType, date, []byte(fmt.Sprintf("\x89PNG-%s-%s-%d", imgType, date, i))))
	}
	return out
}

// Settings returns the last stored settings.
func (f *FakeAPI) Settings() map[string]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]string, len(f.settings))
	for k, v := range f.settings {
		out[k] = v
	}
	return out
}

// RequestCount returns the number of requests served.
func (f *FakeAPI) RequestCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.requestCount
}

// ConditionalCount returns the number of requests with validators.
func (f *FakeAPI) ConditionalCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.conditionalCount
}

// Hits returns the number of requests for path.
func (f *FakeAPI) Hits(path string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.hits[path]
}

// LastRequestHeader returns the headers of the last request.
func (f *FakeAPI) LastRequestHeader() http.Header {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastRequestHeader.Clone()
}

func (f *FakeAPI) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requestCount++
		f.hits[r.URL.Path]++
		f.lastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			f.conditionalCount++
		}
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *FakeAPI) override(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.RLock()
		handler, ok := f.overrides[r.Method+" "+r.URL.Path]
		f.mu.RUnlock()
		if ok {
			handler(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type userKey struct{}

func (f *FakeAPI) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		f.mu.RLock()
		email, valid := f.tokens[token]
		f.mu.RUnlock()
		if !ok || !valid {
			writeError(w, http.StatusUnauthorized, "invalid_token", "Authentication required.")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithUser(r.Context(), email)))
	})
}

func (f *FakeAPI) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "The request payload is invalid.")
		return
	}

	problems := map[string][]string{}
	if !strings.Contains(req.Email, "@") {
		problems["email"] = []string{"Not a valid email address."}
	}
	if len(req.Password) < 8 {
		problems["password"] = []string{"Shorter than minimum length 8."}
	}
	if len(problems) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": "invalid_request", "message": problems})
		return
	}

	f.mu.Lock()
	if _, exists := f.users[req.Email]; exists {
		f.mu.Unlock()
		writeError(w, http.StatusConflict, "email_exists", "This email is already registered.")
		return
	}
	u := f.addUserLocked(req.Email, req.Password)
	f.mu.Unlock()

	writeJSON(w, http.StatusCreated, u)
}

func (f *FakeAPI) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"errors":  "invalid_request",
			"message": map[string][]string{"email": {"Missing data for required field."}},
		})
		return
	}

	f.mu.Lock()
	u, ok := f.users[req.Email]
	if !ok || u.password != req.Password {
		f.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password.")
		return
	}
	if !u.IsActive {
		f.mu.Unlock()
		writeError(w, http.StatusForbidden, "inactive_account", "Account is inactive.")
		return
	}
	token := uuid.NewString()
	f.tokens[token] = u.Email
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "Bearer"})
}

func (f *FakeAPI) handleMe(w http.ResponseWriter, r *http.Request) {
	email := userFromContext(r.Context())
	f.mu.RLock()
	u := f.users[email]
	f.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": u})
}

func (f *FakeAPI) handleGallery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := q.Get("type")
	if filter == "" {
		filter = "all"
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit := 20
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		limit = v
	}

	f.mu.RLock()
	var matched []Image
	for _, img := range f.images {
		if filter == "all" || filter == img.Type {
			matched = append(matched, *img)
		}
	}
	f.mu.RUnlock()

	newest := q.Get("sort") != "oldest"
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Date != b.Date {
			return (a.Date > b.Date) == newest
		}
		return (a.MTime > b.MTime) == newest
	})

	total := len(matched)
	page := []Image{}
	if offset < total && limit > 0 {
		end := min(offset+limit, total)
		page = matched[offset:end]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"images": page, "total": total},
	})
}

func (f *FakeAPI) handleImageGen(w http.ResponseWriter, r *http.Request) {
	var params map[string]any
	_ = json.NewDecoder(r.Body).Decode(&params)
	prompt, _ := params["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Prompt is required.")
		return
	}

	f.mu.Lock()
	img := f.addImageLocked("generated", time.Now().UTC().Format("2006-01-02"), []byte("\x89PNG-gen-"+prompt))
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"generated": []string{img.Path}}})
}

func (f *FakeAPI) handleImageEdit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "The request payload is invalid.")
		return
	}
	if strings.TrimSpace(r.FormValue("prompt")) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Prompt is required.")
		return
	}
	file, _, err := r.FormFile("sourceImage")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Source image is required.")
		return
	}
	defer file.Close()
	source, _ := io.ReadAll(file)

	f.mu.Lock()
	img := f.addImageLocked("edited", time.Now().UTC().Format("2006-01-02"), append([]byte("\x89PNG-edit-"), source...))
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"generated": []string{img.Path}}})
}

func (f *FakeAPI) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "The request payload is invalid.")
		return
	}

	f.mu.Lock()
	for _, name := range []string{"uwgen_api_key", "gemini_api_key"} {
		if changed, _ := req[name+"_changed"].(bool); changed {
			value, _ := req[name].(string)
			f.settings[name] = value
		}
	}
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{}, "message": "Settings updated."})
}

func (f *FakeAPI) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	key := "uw_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	f.mu.Lock()
	f.apiKey = key
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": key})
}

func (f *FakeAPI) handleImage(w http.ResponseWriter, r *http.Request) {
	f.mu.RLock()
	var found *Image
	for _, img := range f.images {
		if img.Path == r.URL.Path {
			found = img
			break
		}
	}
	f.mu.RUnlock()

	if found == nil {
		writeError(w, http.StatusNotFound, "file_not_found", "File not found.")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("ETag", found.etag)
	if r.Header.Get("If-None-Match") == found.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(found.data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"errors": code, "message": message})
}
