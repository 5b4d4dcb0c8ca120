package authserver_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kandobyte/mcpbox/pkg/authserver"
	"github.com/kandobyte/mcpbox/pkg/crypto"
	"github.com/kandobyte/mcpbox/pkg/httpapi"
	"github.com/kandobyte/mcpbox/pkg/identity"
	"github.com/kandobyte/mcpbox/pkg/multiplexer"
	"github.com/kandobyte/mcpbox/pkg/store"
)

const (
	publicClientID = "public-client"
	redirectURI    = "http://localhost:3000/callback"
	m2mClientID    = "m2m-client"
	m2mSecret      = "m2m-secret"
)

// newTestGateway wires a store, a local identity provider and two
// preregistered clients (one public authorization_code client, one
// client_credentials client) behind a full httpapi.Router, mirroring how
// cmd/mcpbox assembles the gateway in buildAuthServer and runGateway.
func newTestGateway(t *testing.T) *httptest.Server {
	t.Helper()

	st := store.NewMemory()
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	require.NoError(t, st.SaveClient(ctx, store.Client{
		ClientID:                publicClientID,
		RedirectURIs:            []string{redirectURI},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "none",
	}))
	require.NoError(t, st.SaveClient(ctx, store.Client{
		ClientID:                m2mClientID,
		ClientSecretHash:        crypto.SHA256Hex(m2mSecret),
		GrantTypes:              []string{"client_credentials"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "client_secret_post",
	}))

	local := identity.NewLocal("local", []identity.LocalUser{
		{Username: "testuser", Password: "testpass"},
	})

	mux := multiplexer.New(false)
	t.Cleanup(mux.Shutdown)

	var srv *httptest.Server
	authSrv := authserver.New(authserver.Options{
		FormProviders: []identity.FormProvider{local},
	}, st)
	t.Cleanup(authSrv.Close)

	srv = httptest.NewServer(httpapi.NewRouter(mux, httpapi.Options{
		AuthMode:   httpapi.AuthOAuth,
		Issuer:     "",
		AuthServer: authSrv,
	}))
	t.Cleanup(srv.Close)
	return srv
}

// noRedirectClient follows every step of the flow manually so 302s can be
// inspected instead of auto-followed.
func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

var sessionIDPattern = regexp.MustCompile(`name="session_id" value="([^"]+)"`)

func authorize(t *testing.T, srv *httptest.Server, verifier string) (sessionID, actionQuery string) {
	t.Helper()

	challenge := crypto.PKCEChallengeS256(verifier)
	q := url.Values{
		"client_id":             {publicClientID},
		"redirect_uri":          {redirectURI},
		"response_type":         {"code"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"state":                 {"xyz"},
	}
	resp, err := http.Get(srv.URL + "/authorize?" + q.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	match := sessionIDPattern.FindStringSubmatch(string(body))
	require.Len(t, match, 2, "login page must embed a session_id")
	return match[1], q.Encode()
}

func TestAuthorizationCodePKCERoundTrip(t *testing.T) {
	srv := newTestGateway(t)
	client := noRedirectClient()

	verifier := "a-sufficiently-long-code-verifier-value-1234567890"
	sessionID, _ := authorize(t, srv, verifier)

	form := url.Values{
		"session_id": {sessionID},
		"username":   {"testuser"},
		"password":   {"testpass"},
	}
	resp, err := client.PostForm(srv.URL+"/authorize", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)
	require.Equal(t, "xyz", loc.Query().Get("state"))

	tokenForm := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {publicClientID},
		"redirect_uri":  {redirectURI},
		"code_verifier": {verifier},
	}
	tokResp, err := http.PostForm(srv.URL+"/token", tokenForm)
	require.NoError(t, err)
	defer tokResp.Body.Close()
	require.Equal(t, http.StatusOK, tokResp.StatusCode)

	var tok struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
	}
	require.NoError(t, json.NewDecoder(tokResp.Body).Decode(&tok))
	require.NotEmpty(t, tok.AccessToken)
	require.NotEmpty(t, tok.RefreshToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.Equal(t, 3600, tok.ExpiresIn)
}

func TestAuthorizationCodeWrongVerifierIsRejected(t *testing.T) {
	srv := newTestGateway(t)
	client := noRedirectClient()

	verifier := "a-sufficiently-long-code-verifier-value-1234567890"
	sessionID, _ := authorize(t, srv, verifier)

	form := url.Values{
		"session_id": {sessionID},
		"username":   {"testuser"},
		"password":   {"testpass"},
	}
	resp, err := client.PostForm(srv.URL+"/authorize", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	tokenForm := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {publicClientID},
		"redirect_uri":  {redirectURI},
		"code_verifier": {"not-the-right-verifier"},
	}
	tokResp, err := http.PostForm(srv.URL+"/token", tokenForm)
	require.NoError(t, err)
	defer tokResp.Body.Close()
	require.Equal(t, http.StatusBadRequest, tokResp.StatusCode)

	var errBody struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(tokResp.Body).Decode(&errBody))
	require.Equal(t, "invalid_grant", errBody.Error)
}

func TestClientCredentialsThenPing(t *testing.T) {
	srv := newTestGateway(t)

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {m2mClientID},
		"client_secret": {m2mSecret},
	}
	tokResp, err := http.PostForm(srv.URL+"/token", form)
	require.NoError(t, err)
	defer tokResp.Body.Close()
	require.Equal(t, http.StatusOK, tokResp.StatusCode)

	var tok struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.NewDecoder(tokResp.Body).Decode(&tok))
	require.NotEmpty(t, tok.AccessToken)
	require.Empty(t, tok.RefreshToken)

	pingBody := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", pingBody)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	rpcResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer rpcResp.Body.Close()
	require.Equal(t, http.StatusOK, rpcResp.StatusCode)

	var rpc struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      int             `json:"id"`
		Result  json.RawMessage `json:"result"`
	}
	require.NoError(t, json.NewDecoder(rpcResp.Body).Decode(&rpc))
	require.Equal(t, "2.0", rpc.JSONRPC)
	require.Equal(t, 1, rpc.ID)
	require.JSONEq(t, `{}`, string(rpc.Result))
}

func TestRefreshTokenRotation(t *testing.T) {
	srv := newTestGateway(t)
	client := noRedirectClient()

	verifier := "a-sufficiently-long-code-verifier-value-1234567890"
	sessionID, _ := authorize(t, srv, verifier)

	form := url.Values{
		"session_id": {sessionID},
		"username":   {"testuser"},
		"password":   {"testpass"},
	}
	resp, err := client.PostForm(srv.URL+"/authorize", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	code := loc.Query().Get("code")

	tokenForm := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {publicClientID},
		"redirect_uri":  {redirectURI},
		"code_verifier": {verifier},
	}
	tokResp, err := http.PostForm(srv.URL+"/token", tokenForm)
	require.NoError(t, err)
	defer tokResp.Body.Close()

	var first struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.NewDecoder(tokResp.Body).Decode(&first))
	require.NotEmpty(t, first.RefreshToken)

	refreshForm := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
		"client_id":     {publicClientID},
	}
	refreshResp, err := http.PostForm(srv.URL+"/token", refreshForm)
	require.NoError(t, err)
	defer refreshResp.Body.Close()
	require.Equal(t, http.StatusOK, refreshResp.StatusCode)

	var second struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.NewDecoder(refreshResp.Body).Decode(&second))
	require.NotEmpty(t, second.AccessToken)
	require.NotEmpty(t, second.RefreshToken)
	require.NotEqual(t, first.AccessToken, second.AccessToken)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	reuseResp, err := http.PostForm(srv.URL+"/token", refreshForm)
	require.NoError(t, err)
	defer reuseResp.Body.Close()
	require.Equal(t, http.StatusBadRequest, reuseResp.StatusCode)

	var errBody struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(reuseResp.Body).Decode(&errBody))
	require.Equal(t, "invalid_grant", errBody.Error)
}
