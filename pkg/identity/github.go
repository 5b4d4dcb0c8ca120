package identity

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// GitHub is the reference redirect provider for the external OAuth
// identity provider shape, per spec §4.3.
type GitHub struct {
	id           string
	clientID     string
	clientSecret string
	allowedOrgs  []string
	allowedUsers []string

	httpClient *http.Client
}

// NewGitHub constructs a GitHub redirect provider. id is the configured
// identity provider id (e.g. "github"); allowedOrgs/allowedUsers are
// matched case-insensitively.
func NewGitHub(id, clientID, clientSecret string, allowedOrgs, allowedUsers []string) *GitHub {
	return &GitHub{
		id:           id,
		clientID:     clientID,
		clientSecret: clientSecret,
		allowedOrgs:  allowedOrgs,
		allowedUsers: allowedUsers,
		httpClient:   http.DefaultClient,
	}
}

func (g *GitHub) ID() string { return g.id }

// AuthorizationURL builds https://github.com/login/oauth/authorize with
// client_id, redirect_uri, state and, when org membership is restricted, a
// read:org scope (spec §4.3).
func (g *GitHub) AuthorizationURL(callbackURL, state string) string {
	q := url.Values{
		"client_id":    {g.clientID},
		"redirect_uri": {callbackURL},
		"state":        {state},
	}
	if len(g.allowedOrgs) > 0 {
		q.Set("scope", "read:org")
	}
	return "https://github.com/login/oauth/authorize?" + q.Encode()
}

// HandleCallback exchanges the callback's "code" for an access token,
// fetches /user, and enforces allowedUsers/allowedOrgs, per spec §4.3.
func (g *GitHub) HandleCallback(query url.Values) (User, bool) {
	code := query.Get("code")
	if code == "" {
		return User{}, false
	}

	token, ok := g.exchangeCode(code)
	if !ok {
		return User{}, false
	}

	login, id, ok := g.fetchUser(token)
	if !ok {
		return User{}, false
	}

	if len(g.allowedUsers) > 0 && !containsFold(g.allowedUsers, login) {
		return User{}, false
	}
	if len(g.allowedOrgs) > 0 && !g.userInAllowedOrg(token) {
		return User{}, false
	}

	return User{ID: fmt.Sprintf("github:%d", id), DisplayName: login}, true
}

func (g *GitHub) exchangeCode(code string) (string, bool) {
	req, err := http.NewRequest(http.MethodPost, "https://github.com/login/oauth/access_token", strings.NewReader(url.Values{
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"code":          {code},
	}.Encode()))
	if err != nil {
		return "", false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.AccessToken == "" {
		return "", false
	}
	return body.AccessToken, true
}

func (g *GitHub) fetchUser(token string) (login string, id int64, ok bool) {
	var user struct {
		Login string `json:"login"`
		ID    int64  `json:"id"`
	}
	if !g.getJSON("https://api.github.com/user", token, &user) {
		return "", 0, false
	}
	return user.Login, user.ID, true
}

func (g *GitHub) userInAllowedOrg(token string) bool {
	var orgs []struct {
		Login string `json:"login"`
	}
	if !g.getJSON("https://api.github.com/user/orgs?per_page=100", token, &orgs) {
		return false
	}
	for _, org := range orgs {
		if containsFold(g.allowedOrgs, org.Login) {
			return true
		}
	}
	return false
}

func (g *GitHub) getJSON(apiURL, token string, v any) bool {
	req, err := http.NewRequest(http.MethodGet, apiURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}
	return json.Unmarshal(body, v) == nil
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

var _ RedirectProvider = (*GitHub)(nil)
