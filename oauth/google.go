package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// Google authenticates against Google's OAuth2 endpoints and reads the
// OpenID userinfo document.
type Google struct {
	Config oauth2.Config

	// UserInfoURL may be overridden in tests.
	UserInfoURL string
}

func NewGoogle(clientID, clientSecret, callbackURL string) *Google {
	if clientID == "" {
		clientID = os.Getenv("OAUTH2_GOOGLE_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("OAUTH2_GOOGLE_CLIENT_SECRET")
	}
	if callbackURL == "" {
		callbackURL = os.Getenv("OAUTH2_GOOGLE_CALLBACK_URL")
	}
	return &Google{
		Config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		UserInfoURL: defaultGoogleUserInfoURL,
	}
}

func (g *Google) Name() string { return "google" }

func (g *Google) AuthCodeURL(state string) string {
	return g.Config.AuthCodeURL(state)
}

func (g *Google) Exchange(ctx context.Context, code string) (*Identity, string, error) {
	tok, err := g.Config.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("google code exchange: %w", err)
	}

	resp, err := g.Config.Client(ctx, tok).Get(g.UserInfoURL)
	if err != nil {
		return nil, "", fmt.Errorf("google userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("google userinfo: status %d", resp.StatusCode)
	}

	var payload struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", fmt.Errorf("google userinfo decode: %w", err)
	}

	return &Identity{
		Email:         payload.Email,
		EmailVerified: payload.EmailVerified,
		GivenName:     payload.GivenName,
		FamilyName:    payload.FamilyName,
		Picture:       payload.Picture,
	}, tok.AccessToken, nil
}
