package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/justsurfingit/adaudit/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

var ErrIdentityRejected = errors.New("google identity rejected")

// GoogleIdentity is the part of the Google profile the dashboard cares about.
type GoogleIdentity struct {
	Email         string
	Name          string
	HostedDomain  string
	EmailVerified bool
}

// GoogleOAuth handles "Sign in with Google" for dashboard users.
type GoogleOAuth struct {
	config        *oauth2.Config
	allowedDomain string
}

// NewGoogleOAuth returns nil when no client id is configured, which disables Google sign-in.
func NewGoogleOAuth(cfg config.GoogleConfig) *GoogleOAuth {
	if cfg.ClientID == "" {
		return nil
	}
	return &GoogleOAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", oauth2api.UserinfoEmailScope, oauth2api.UserinfoProfileScope},
		},
		allowedDomain: strings.ToLower(strings.TrimSpace(cfg.AllowedDomain)),
	}
}

// AuthURL is where the browser goes to pick a Google account.
func (g *GoogleOAuth) AuthURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades the callback code for a token and reads the user's profile.
func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (*GoogleIdentity, error) {
	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging google code: %w", err)
	}

	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(g.config.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("creating userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetching google profile: %w", err)
	}

	identity := &GoogleIdentity{
		Email:         strings.ToLower(info.Email),
		Name:          info.Name,
		HostedDomain:  strings.ToLower(info.Hd),
		EmailVerified: info.VerifiedEmail != nil && *info.VerifiedEmail,
	}
	if err := CheckIdentity(identity, g.allowedDomain); err != nil {
		return nil, err
	}
	return identity, nil
}

// CheckIdentity enforces a verified email and, when allowedDomain is set, membership of it.
func CheckIdentity(id *GoogleIdentity, allowedDomain string) error {
	if id.Email == "" || !id.EmailVerified {
		return fmt.Errorf("%w: email is not verified", ErrIdentityRejected)
	}
	if allowedDomain == "" {
		return nil
	}
	if id.HostedDomain == allowedDomain || strings.HasSuffix(id.Email, "@"+allowedDomain) {
		return nil
	}
	return fmt.Errorf("%w: %s is outside %s", ErrIdentityRejected, id.Email, allowedDomain)
}
