package ratelimit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bch-rest-gateway/middleware/ratelimit/domain"
)

func TestClientIP_TrustXForwardedForUsesFirstIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")

	assert.Equal(t, "1.2.3.4", ClientIP(r, true))
	assert.Equal(t, "10.0.0.9", ClientIP(r, false))
}

func TestClientIP_NormalizesMappedIPv4(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "[::ffff:127.0.0.1]:5555"

	assert.Equal(t, "127.0.0.1", ClientIP(r, false))
}

func TestClientIP_UnknownWhenEmpty(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = ""

	assert.Equal(t, "unknown", ClientIP(r, false))
}

func TestAccessToken(t *testing.T) {
	cases := map[string]string{
		"Token abc.def.ghi":  "abc.def.ghi",
		"Bearer abc.def.ghi": "abc.def.ghi",
		"token  xyz ":        "xyz",
		"Basic dXNlcjpwYXNz": "",
		"abc":                "",
		"":                   "",
	}
	for header, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		r.Header.Set("Authorization", header)
		assert.Equal(t, want, AccessToken(r), header)
	}
}

func TestResourceForPath(t *testing.T) {
	assert.Equal(t, domain.ResourceSLP, ResourceForPath("/v5/slp/balancesForAddress"))
	assert.Equal(t, domain.ResourceIndexer, ResourceForPath("/v5/electrumx/utxos/addr"))
	assert.Equal(t, domain.ResourceFullNode, ResourceForPath("/v5/blockchain/getBlockCount"))
}

func TestForwardedIdentity_NotJSONKeepsBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://example/", strings.NewReader("hashes=abc"))

	got, err := forwardedIdentity(r)
	require.NoError(t, err)
	assert.Nil(t, got)
	b, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, "hashes=abc", string(b))
}

func TestForwardedIdentity_OversizedBodyReportsAndKeepsBody(t *testing.T) {
	body := `{"usrObj":{"proLimit":true},"pad":"` + strings.Repeat("x", maxIdentityPeek) + `"}`
	r := httptest.NewRequest(http.MethodPost, "http://example/", strings.NewReader(body))

	got, err := forwardedIdentity(r)
	assert.ErrorIs(t, err, errIdentityTooLarge)
	assert.Nil(t, got)
	b, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Len(t, b, len(body))
}

func TestForwardedIdentity_ParsesUsrObj(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://example/",
		strings.NewReader(`{"usrObj":{"jwtToken":"t","proLimit":false,"ip":"9.9.9.9"}}`))

	got, err := forwardedIdentity(r)
	require.NoError(t, err)
	assert.Equal(t, &domain.ForwardedIdentity{Token: "t", IP: "9.9.9.9"}, got)
}

func TestOverLimitMessage(t *testing.T) {
	dec := domain.Decision{RequestsPerWindow: 20}
	assert.Equal(t, "Too many requests. Your limits are currently 20 requests per minute.",
		OverLimitMessage(dec, 0, ""))
}
