package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestNewEntry(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		header        http.Header
		wantCacheable bool
		wantTTL       time.Duration
	}{
		{
			name:   "max-age from image endpoint",
			status: 200,
			header: http.Header{
				"Cache-Control": []string{"public, max-age=3600"},
				"Content-Type":  []string{"image/png"},
				"Etag":          []string{`"abc123"`},
			},
			wantCacheable: true,
			wantTTL:       time.Hour,
		},
		{
			name:   "max-age wins over expires",
			status: 200,
			header: http.Header{
				"Cache-Control": []string{"max-age=60"},
				"Expires":       []string{time.Now().Add(2 * time.Hour).Format(http.TimeFormat)},
			},
			wantCacheable: true,
			wantTTL:       time.Minute,
		},
		{
			name:   "expires header",
			status: 200,
			header: http.Header{
				"Expires": []string{time.Now().Add(30 * time.Minute).Format(http.TimeFormat)},
			},
			wantCacheable: true,
			wantTTL:       30 * time.Minute,
		},
		{
			name:          "no headers uses default",
			status:        200,
			header:        http.Header{},
			wantCacheable: true,
			wantTTL:       DefaultTTL,
		},
		{
			name:          "no-cache is stale immediately",
			status:        200,
			header:        http.Header{"Cache-Control": []string{"no-cache"}},
			wantCacheable: true,
			wantTTL:       0,
		},
		{
			name:          "no-store",
			status:        200,
			header:        http.Header{"Cache-Control": []string{"private, no-store"}},
			wantCacheable: false,
		},
		{
			name:          "error status",
			status:        404,
			header:        http.Header{"Cache-Control": []string{"max-age=3600"}},
			wantCacheable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, ok := NewEntry(tt.status, tt.header, []byte("img"))
			if ok != tt.wantCacheable {
				t.Fatalf("NewEntry() cacheable = %v, want %v", ok, tt.wantCacheable)
			}
			if !ok {
				return
			}

			if string(entry.Data) != "img" {
				t.Errorf("Data = %q, want %q", entry.Data, "img")
			}
			if entry.ETag != tt.header.Get("ETag") {
				t.Errorf("ETag = %q, want %q", entry.ETag, tt.header.Get("ETag"))
			}
			if entry.ContentType != tt.header.Get("Content-Type") {
				t.Errorf("ContentType = %q", entry.ContentType)
			}

			got := entry.TTL()
			if got < tt.wantTTL-2*time.Second || got > tt.wantTTL+time.Second {
				t.Errorf("TTL() = %v, want about %v", got, tt.wantTTL)
			}
		})
	}
}

func TestNewEntry_LastModified(t *testing.T) {
	lastMod := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	entry, ok := NewEntry(200, http.Header{
		"Last-Modified": []string{lastMod.Format(http.TimeFormat)},
	}, nil)
	if !ok {
		t.Fatal("NewEntry() not cacheable")
	}
	if !entry.LastModified.Equal(lastMod) {
		t.Errorf("LastModified = %v, want %v", entry.LastModified, lastMod)
	}
}

func TestParseExpires(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		headers http.Header
		want    time.Time
	}{
		{
			name:    "valid expires header",
			headers: http.Header{"Expires": []string{now.Add(time.Hour).Format(http.TimeFormat)}},
			want:    now.Add(time.Hour),
		},
		{
			name:    "no expires header",
			headers: http.Header{},
			want:    now.Add(DefaultTTL),
		},
		{
			name:    "invalid expires header",
			headers: http.Header{"Expires": []string{"not a valid date"}},
			want:    now.Add(DefaultTTL),
		},
		{
			name:    "expires in the past",
			headers: http.Header{"Expires": []string{now.Add(-time.Hour).Format(http.TimeFormat)}},
			want:    now,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseExpires(tt.headers, now)
			diff := got.Sub(tt.want)
			if diff < -2*time.Second || diff > 2*time.Second {
				t.Errorf("parseExpires() = %v, want approximately %v (diff: %v)", got, tt.want, diff)
			}
		})
	}
}

func TestParseCacheControl(t *testing.T) {
	got := parseCacheControl(`public, Max-Age="120", no-transform`)

	if got["max-age"] != "120" {
		t.Errorf("max-age = %q, want %q", got["max-age"], "120")
	}
	if _, ok := got["public"]; !ok {
		t.Error("public directive missing")
	}
	if _, ok := got["no-transform"]; !ok {
		t.Error("no-transform directive missing")
	}
	if len(parseCacheControl("")) != 0 {
		t.Error("empty header should produce no directives")
	}
}

func TestShouldMakeConditionalRequest(t *testing.T) {
	tests := []struct {
		name  string
		entry *CacheEntry
		want  bool
	}{
		{name: "nil entry", entry: nil, want: false},
		{name: "entry with ETag", entry: &CacheEntry{ETag: `"abc123"`}, want: true},
		{name: "entry with Last-Modified", entry: &CacheEntry{LastModified: time.Now()}, want: true},
		{name: "entry without validators", entry: &CacheEntry{Data: []byte("data")}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldMakeConditionalRequest(tt.entry); got != tt.want {
				t.Errorf("ShouldMakeConditionalRequest() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConditionalHeaders(t *testing.T) {
	tests := []struct {
		name       string
		entry      *CacheEntry
		wantHeader string
		wantValue  string
	}{
		{
			name:       "If-None-Match with ETag",
			entry:      &CacheEntry{ETag: `"abc123"`},
			wantHeader: "If-None-Match",
			wantValue:  `"abc123"`,
		},
		{
			name:       "If-Modified-Since with Last-Modified",
			entry:      &CacheEntry{LastModified: time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)},
			wantHeader: "If-Modified-Since",
			wantValue:  "Sun, 01 Jan 2023 12:00:00 GMT",
		},
		{
			name: "prefer ETag over Last-Modified",
			entry: &CacheEntry{
				ETag:         `"abc123"`,
				LastModified: time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC),
			},
			wantHeader: "If-None-Match",
			wantValue:  `"abc123"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := ConditionalHeaders(tt.entry)
			if len(headers) != 1 {
				t.Fatalf("ConditionalHeaders() = %v, want exactly one header", headers)
			}
			if got := headers[tt.wantHeader]; got != tt.wantValue {
				t.Errorf("Header %s = %v, want %v", tt.wantHeader, got, tt.wantValue)
			}
		})
	}
}

func TestConditionalHeaders_NoValidators(t *testing.T) {
	if got := ConditionalHeaders(nil); got != nil {
		t.Errorf("ConditionalHeaders(nil) = %v, want nil", got)
	}
	if got := ConditionalHeaders(&CacheEntry{}); got != nil {
		t.Errorf("ConditionalHeaders(empty) = %v, want nil", got)
	}
}
