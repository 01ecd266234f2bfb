package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Jakkraphat/identity_service/config"
	"github.com/Jakkraphat/identity_service/internal/domain"
	"github.com/Jakkraphat/identity_service/internal/dto"
	"github.com/Jakkraphat/identity_service/internal/helper"
	"github.com/Jakkraphat/identity_service/internal/repository"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

const (
	ProviderGitHub = "github"
	ProviderGoogle = "google"
)

// OAuthService maps provider callbacks onto the account model. Accounts
// created here use the provider's opaque subject id as password material, so
// they stay login-capable through the password path as well.
type OAuthService interface {
	AuthURL(provider, state string) (string, error)
	HandleCallback(ctx context.Context, provider, code string) (dto.UserResponse, error)
}

type oauthService struct {
	repo    repository.UserRepository
	auth    helper.Auth
	configs map[string]*oauth2.Config
}

func NewOAuthService(cfg config.Config, repo repository.UserRepository, auth helper.Auth) OAuthService {
	configs := make(map[string]*oauth2.Config)

	if cfg.GithubClientID != "" {
		configs[ProviderGitHub] = &oauth2.Config{
			ClientID:     cfg.GithubClientID,
			ClientSecret: cfg.GithubClientSecret,
			Endpoint:     github.Endpoint,
			RedirectURL:  cfg.GithubCallbackURL,
			Scopes:       []string{"user:email"},
		}
	}
	if cfg.GoogleClientID != "" {
		configs[ProviderGoogle] = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.GoogleCallbackURL,
			Scopes:       []string{"openid", "email", "profile"},
		}
	}

	return &oauthService{
		repo:    repo,
		auth:    auth,
		configs: configs,
	}
}

func (s *oauthService) AuthURL(provider, state string) (string, error) {
	conf, ok := s.configs[provider]
	if !ok {
		return "", fmt.Errorf("unknown provider %q", provider)
	}
	return conf.AuthCodeURL(state), nil
}

func (s *oauthService) HandleCallback(ctx context.Context, provider, code string) (dto.UserResponse, error) {
	conf, ok := s.configs[provider]
	if !ok {
		return dto.UserResponse{}, domain.ErrFederatedLogin
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return dto.UserResponse{}, domain.ErrFederatedLogin
	}

	client := conf.Client(ctx, tok)

	var profile providerProfile
	switch provider {
	case ProviderGitHub:
		profile, err = githubProfile(ctx, client)
	case ProviderGoogle:
		profile, err = googleProfile(ctx, client)
	default:
		err = errors.New("unknown provider")
	}
	if err != nil {
		return dto.UserResponse{}, domain.ErrFederatedLogin
	}

	return s.bridgeLogin(profile)
}

type providerProfile struct {
	Subject  string
	Email    string
	Username string
}

// bridgeLogin is find-by-email-or-create. On an existing account the
// subject id must match the stored password material; a mismatch fails the
// bridge instead of silently granting access.
func (s *oauthService) bridgeLogin(profile providerProfile) (dto.UserResponse, error) {
	email := strings.TrimSpace(strings.ToLower(profile.Email))
	if email == "" || profile.Subject == "" {
		return dto.UserResponse{}, domain.ErrFederatedLogin
	}

	user, err := s.repo.FindUserByEmail(email)
	if errors.Is(err, domain.ErrNotFound) {
		hash, herr := s.auth.HashPassword(profile.Subject)
		if herr != nil {
			return dto.UserResponse{}, herr
		}
		created, cerr := s.repo.CreateUser(&domain.User{
			Username:     profile.Username,
			Email:        email,
			PasswordHash: hash,
			Verified:     false,
		})
		if cerr != nil {
			return dto.UserResponse{}, domain.ErrFederatedLogin
		}
		return Projection(created), nil
	}
	if err != nil {
		return dto.UserResponse{}, err
	}

	if err := s.auth.VerifyPassword(profile.Subject, user.PasswordHash); err != nil {
		return dto.UserResponse{}, domain.ErrFederatedLogin
	}
	return Projection(user), nil
}

func githubProfile(ctx context.Context, client *http.Client) (providerProfile, error) {
	var ghUser struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := fetchJSON(ctx, client, "https://api.github.com/user", &ghUser); err != nil {
		return providerProfile{}, err
	}

	email := ghUser.Email
	if email == "" {
		var emails []struct {
			Email   string `json:"email"`
			Primary bool   `json:"primary"`
		}
		if err := fetchJSON(ctx, client, "https://api.github.com/user/emails", &emails); err == nil {
			for _, e := range emails {
				if e.Primary {
					email = e.Email
					break
				}
			}
		}
	}
	// GitHub may withhold the address entirely; synthesize a stable one
	// from the login so find-by-email still works.
	if email == "" {
		email = ghUser.Login + "@github.com"
	}

	username := ghUser.Name
	if username == "" {
		username = ghUser.Login
	}

	return providerProfile{
		Subject:  strconv.FormatInt(ghUser.ID, 10),
		Email:    email,
		Username: username,
	}, nil
}

func googleProfile(ctx context.Context, client *http.Client) (providerProfile, error) {
	var gUser struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := fetchJSON(ctx, client, "https://www.googleapis.com/oauth2/v2/userinfo", &gUser); err != nil {
		return providerProfile{}, err
	}

	return providerProfile{
		Subject:  gUser.ID,
		Email:    gUser.Email,
		Username: gUser.Name,
	}, nil
}

func fetchJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
