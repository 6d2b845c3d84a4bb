package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const defaultGitHubAPIURL = "https://api.github.com"

// GitHub authenticates against GitHub. The user's primary email and its
// verified flag come from the emails endpoint, which requires the
// "user:email" scope.
type GitHub struct {
	Config oauth2.Config

	// APIBaseURL may be overridden in tests.
	APIBaseURL string
}

func NewGitHub(clientID, clientSecret, callbackURL string) *GitHub {
	if clientID == "" {
		clientID = os.Getenv("OAUTH2_GITHUB_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("OAUTH2_GITHUB_CLIENT_SECRET")
	}
	if callbackURL == "" {
		callbackURL = os.Getenv("OAUTH2_GITHUB_CALLBACK_URL")
	}
	return &GitHub{
		Config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		APIBaseURL: defaultGitHubAPIURL,
	}
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) AuthCodeURL(state string) string {
	return g.Config.AuthCodeURL(state)
}

func (g *GitHub) Exchange(ctx context.Context, code string) (*Identity, string, error) {
	tok, err := g.Config.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("github code exchange: %w", err)
	}
	client := g.Config.Client(ctx, tok)

	var profile struct {
		Name      string `json:"name"`
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(client, g.APIBaseURL+"/user", &profile); err != nil {
		return nil, "", fmt.Errorf("github user: %w", err)
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(client, g.APIBaseURL+"/user/emails", &emails); err != nil {
		return nil, "", fmt.Errorf("github emails: %w", err)
	}

	ident := &Identity{Picture: profile.AvatarURL}
	for _, e := range emails {
		if e.Primary {
			ident.Email = e.Email
			ident.EmailVerified = e.Verified
			break
		}
	}
	if ident.Email == "" && len(emails) > 0 {
		ident.Email = emails[0].Email
		ident.EmailVerified = emails[0].Verified
	}

	// GitHub exposes a single display name.
	name := profile.Name
	if name == "" {
		name = profile.Login
	}
	if given, family, ok := strings.Cut(name, " "); ok {
		ident.GivenName, ident.FamilyName = given, family
	} else {
		ident.GivenName = name
	}

	return ident, tok.AccessToken, nil
}

func getJSON(client *http.Client, url string, out any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
