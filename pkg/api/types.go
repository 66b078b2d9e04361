package api

import (
	"time"

	"github.com/flaskion/flaskion-client/pkg/client"
)

// Gallery filters.
const (
	FilterAll       = "all"
	FilterGenerated = "generated"
	FilterEdited    = "edited"
)

// Gallery sort orders.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
)

// Reply couples the classified response with its decoded payload.
// Data is only populated for a successful response.
type Reply[T any] struct {
	Response *client.Response
	Data     T
}

// OK reports a 2xx response.
func (r *Reply[T]) OK() bool {
	return r != nil && r.Response.IsSuccess()
}

// Outcome describes the response for display.
func (r *Reply[T]) Outcome() client.Outcome {
	return client.Describe(r.Response, nil)
}

// Token is the credential issued by sign-in.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// User is the public view of an account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenerateParams are the image generation inputs. Only Prompt is required.
type GenerateParams struct {
	Prompt       string `json:"prompt"`
	Model        string `json:"model,omitempty"`
	Resolution   string `json:"resolution,omitempty"`
	Aspect       string `json:"aspect,omitempty"`
	SafetyFilter string `json:"safety_filter,omitempty"`
	SafetyLevel  string `json:"safety_level,omitempty"`
}

// EditParams are the image edit inputs. The source image travels as the
// "sourceImage" file part.
type EditParams struct {
	Prompt      string
	Model       string
	Resolution  string
	Aspect      string
	SourceName  string
	SourceType  string
	SourceImage []byte
}

func (p EditParams) fields() map[string]string {
	fields := map[string]string{"prompt": p.Prompt}
	for name, value := range map[string]string{
		"model":      p.Model,
		"resolution": p.Resolution,
		"aspect":     p.Aspect,
	} {
		if value != "" {
			fields[name] = value
		}
	}
	return fields
}

// Generated lists the stored paths of newly created images.
type Generated struct {
	Paths []string `json:"generated"`
}

// SettingsUpdate changes provider API keys. A key is only sent when its
// pointer is non-nil; an empty string clears it.
type SettingsUpdate struct {
	UwgenAPIKey  *string
	GeminiAPIKey *string
}

type settingsPayload struct {
	UwgenAPIKey         string `json:"uwgen_api_key"`
	UwgenAPIKeyChanged  bool   `json:"uwgen_api_key_changed"`
	GeminiAPIKey        string `json:"gemini_api_key"`
	GeminiAPIKeyChanged bool   `json:"gemini_api_key_changed"`
}

func (u SettingsUpdate) payload() settingsPayload {
	var p settingsPayload
	if u.UwgenAPIKey != nil {
		p.UwgenAPIKey = *u.UwgenAPIKey
		p.UwgenAPIKeyChanged = true
	}
	if u.GeminiAPIKey != nil {
		p.GeminiAPIKey = *u.GeminiAPIKey
		p.GeminiAPIKeyChanged = true
	}
	return p
}
