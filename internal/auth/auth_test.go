package auth

import (
	"net/url"
	"testing"

	"github.com/justsurfingit/adaudit/internal/config"
	"github.com/stretchr/testify/require"
)

func TestCheckIdentity(t *testing.T) {
	verified := &GoogleIdentity{Email: "ana@acme.io", EmailVerified: true}
	require.NoError(t, CheckIdentity(verified, ""))
	require.NoError(t, CheckIdentity(verified, "acme.io"))
	require.ErrorIs(t, CheckIdentity(verified, "other.io"), ErrIdentityRejected)

	hosted := &GoogleIdentity{Email: "ana@gmail.com", HostedDomain: "acme.io", EmailVerified: true}
	require.NoError(t, CheckIdentity(hosted, "acme.io"))

	unverified := &GoogleIdentity{Email: "ana@acme.io"}
	require.ErrorIs(t, CheckIdentity(unverified, ""), ErrIdentityRejected)
}

func TestNewGoogleOAuthDisabledWithoutClientID(t *testing.T) {
	require.Nil(t, NewGoogleOAuth(config.GoogleConfig{}))
}

func TestAuthURLCarriesStateAndClient(t *testing.T) {
	g := NewGoogleOAuth(config.GoogleConfig{
		ClientID: "client-123", ClientSecret: "s", RedirectURL: "http://localhost:8080/cb", AllowedDomain: "Acme.io",
	})
	require.NotNil(t, g)

	u, err := url.Parse(g.AuthURL("xyz"))
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "xyz", q.Get("state"))
	require.Equal(t, "client-123", q.Get("client_id"))
	require.Equal(t, "select_account", q.Get("prompt"))
	require.Equal(t, "acme.io", g.allowedDomain)
}

func TestTokens(t *testing.T) {
	a, b := NewToken(), NewToken()
	require.Len(t, a, 64)
	require.NotEqual(t, a, b)
	require.Equal(t, HashToken(a), HashToken(a))
	require.NotEqual(t, a, HashToken(a))

	require.True(t, KeyMatches("secret", "secret"))
	require.False(t, KeyMatches("secret", "other"))
	require.False(t, KeyMatches("", ""))
}
