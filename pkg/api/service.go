// Package api exposes the flaskion endpoints as typed calls on top of the
// request client.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/flaskion/flaskion-client/pkg/auth"
	"github.com/flaskion/flaskion-client/pkg/client"
	"github.com/flaskion/flaskion-client/pkg/logging"
	"github.com/flaskion/flaskion-client/pkg/pagination"
)

// Endpoint paths.
const (
	PathSignup     = "/api/v1/auth/signup"
	PathSignin     = "/api/v1/auth/signin"
	PathMe         = "/api/v1/auth/me"
	PathGallery    = "/api/v1/gallery"
	PathImageGen   = "/api/v1/image_gen"
	PathImageEdit  = "/api/v1/image_edit"
	PathSettings   = "/api/v1/settings"
	PathRegenerate = "/api/v1/settings/api-key/regenerate"
)

// ErrNoToken is returned by Signin when a 2xx response carries no token.
var ErrNoToken = errors.New("sign-in response carries no access token")

// Service performs the API calls of the application.
type Service struct {
	client *client.Client
	tokens auth.TokenStore
	guard  *auth.Guard
	logger zerolog.Logger
}

// NewService creates a service. guard may be nil.
func NewService(c *client.Client, tokens auth.TokenStore, guard *auth.Guard) *Service {
	if c == nil {
		panic("client cannot be nil")
	}
	if tokens == nil {
		panic("token store cannot be nil")
	}
	return &Service{
		client: c,
		tokens: tokens,
		guard:  guard,
		logger: logging.NewLogger("api"),
	}
}

// Client returns the underlying request client.
func (s *Service) Client() *client.Client {
	return s.client
}

// Signin exchanges credentials for a token and stores it.
func (s *Service) Signin(ctx context.Context, email, password string) (*Reply[Token], error) {
	resp, err := s.client.Post(ctx, PathSignin, map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	reply := &Reply[Token]{Response: resp}
	if !resp.IsSuccess() {
		s.logger.Info().Int("status", resp.Status()).Msg("Sign-in rejected")
		return reply, nil
	}

	// The token arrives at the top level; older servers wrap it in "data".
	if err := resp.Decode(&reply.Data); err != nil || reply.Data.AccessToken == "" {
		if err := resp.DecodeData(&reply.Data); err != nil || reply.Data.AccessToken == "" {
			return reply, ErrNoToken
		}
	}

	if err := s.tokens.Set(ctx, reply.Data.AccessToken); err != nil {
		return reply, fmt.Errorf("store token: %w", err)
	}
	if s.guard != nil {
		s.guard.Stop()
	}

	s.logger.Info().Msg("Signed in")
	return reply, nil
}

// Signup registers an account. The new user is returned at the top level.
func (s *Service) Signup(ctx context.Context, email, password string) (*Reply[User], error) {
	resp, err := s.client.Post(ctx, PathSignup, map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	reply := &Reply[User]{Response: resp}
	if resp.IsSuccess() {
		if err := resp.Decode(&reply.Data); err != nil {
			return reply, err
		}
	}
	return reply, nil
}

// Me returns the signed-in user.
func (s *Service) Me(ctx context.Context) (*Reply[User], error) {
	resp, err := s.client.Get(ctx, PathMe, client.WithAuth())
	return decodeData[User](s, resp, err)
}

// Gallery lists one page of stored images.
func (s *Service) Gallery(ctx context.Context, q pagination.Query) (*Reply[pagination.Page], error) {
	opts := []client.RequestOption{client.WithAuth()}
	if q.Filter != "" {
		opts = append(opts, client.WithQuery("type", q.Filter))
	}
	if q.Sort != "" {
		opts = append(opts, client.WithQuery("sort", q.Sort))
	}
	opts = append(opts,
		client.WithQuery("offset", strconv.Itoa(q.Offset)),
		client.WithQuery("limit", strconv.Itoa(q.Limit)),
	)

	resp, err := s.client.Get(ctx, PathGallery, opts...)
	return decodeData[pagination.Page](s, resp, err)
}

// FetchPage implements pagination.PageFetcher.
func (s *Service) FetchPage(ctx context.Context, q pagination.Query) (*client.Response, pagination.Page, error) {
	reply, err := s.Gallery(ctx, q)
	if reply == nil {
		return nil, pagination.Page{}, err
	}
	return reply.Response, reply.Data, err
}

// Generate creates images from a prompt.
func (s *Service) Generate(ctx context.Context, params GenerateParams) (*Reply[Generated], error) {
	resp, err := s.client.Post(ctx, PathImageGen, params, client.WithAuth())
	return decodeData[Generated](s, resp, err)
}

// Edit derives images from a source image and a prompt.
func (s *Service) Edit(ctx context.Context, params EditParams) (*Reply[Generated], error) {
	var files []client.FormFile
	if len(params.SourceImage) > 0 {
		name := params.SourceName
		if name == "" {
			name = "source.png"
		}
		files = append(files, client.FormFile{
			Field:       "sourceImage",
			FileName:    name,
			ContentType: params.SourceType,
			Data:        params.SourceImage,
		})
	}

	body := client.Multipart(params.fields(), files...)
	resp, err := s.client.PostMultipart(ctx, PathImageEdit, body, client.WithAuth())
	return decodeData[Generated](s, resp, err)
}

// UpdateSettings stores provider API keys.
func (s *Service) UpdateSettings(ctx context.Context, update SettingsUpdate) (*Reply[struct{}], error) {
	resp, err := s.client.Patch(ctx, PathSettings, update.payload(), client.WithAuth())
	if err != nil {
		return nil, err
	}
	s.observe(resp)
	return &Reply[struct{}]{Response: resp}, nil
}

// RegenerateAPIKey issues a new personal API key and returns it.
func (s *Service) RegenerateAPIKey(ctx context.Context) (*Reply[string], error) {
	req, err := client.NewRequest(http.MethodPost, PathRegenerate, client.WithAuth())
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Send(ctx, req)
	return decodeData[string](s, resp, err)
}

// Signout forgets the stored token. The server keeps no session.
func (s *Service) Signout(ctx context.Context) error {
	if err := s.tokens.Clear(ctx); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	s.logger.Info().Msg("Signed out")
	return nil
}

func (s *Service) observe(resp *client.Response) {
	if s.guard != nil {
		s.guard.Observe(resp)
	}
}

func decodeData[T any](s *Service, resp *client.Response, err error) (*Reply[T], error) {
	if err != nil {
		return nil, err
	}
	s.observe(resp)

	reply := &Reply[T]{Response: resp}
	if resp.IsSuccess() {
		if err := resp.DecodeData(&reply.Data); err != nil {
			return reply, err
		}
	}
	return reply, nil
}
