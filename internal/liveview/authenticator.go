package liveview

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// observerClaims is the payload of a compact HS256 bearer token presented
// by a connecting live-view client: just enough to name who is watching
// and until when, not a general-purpose JWT claim set.
type observerClaims struct {
	ObserverID string
	ExpiresAt  time.Time
}

// hmacAuthenticator validates a signed bearer token against the process's
// admin token (used here as an HMAC signing secret, not as a token itself),
// grounded on the teacher's hmacWebsocketAuthenticator: read the token from
// a query parameter or header, check its signature and expiry, and hand
// back the observer's subject claim as the client's logical identity for
// liveview's client registry and logs.
type hmacAuthenticator struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

// NewHMACAuthenticator builds an Authenticator that requires every
// connecting observer to present a token signed with secret.
func NewHMACAuthenticator(secret string) (Authenticator, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("liveview: hmac secret must not be empty")
	}
	return &hmacAuthenticator{
		secret: []byte(secret),
		leeway: 2 * time.Second,
		now:    time.Now,
	}, nil
}

// Authenticate implements Authenticator.
func (a *hmacAuthenticator) Authenticate(r *http.Request) (string, error) {
	if a == nil || len(a.secret) == 0 {
		return "", errors.New("liveview: authenticator not configured")
	}
	token := strings.TrimSpace(r.URL.Query().Get("auth_token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Auth-Token"))
	}
	if token == "" {
		return "", errors.New("liveview: missing auth token")
	}
	claims, err := a.verify(token)
	if err != nil {
		return "", err
	}
	return claims.ObserverID, nil
}

// verify checks a compact dot-separated HS256 token's signature and
// expiry, in the same wire shape the teacher's broker issued observer
// tokens in (header.payload.signature, base64url, no padding).
func (a *hmacAuthenticator) verify(token string) (*observerClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.New("liveview: malformed auth token")
	}
	expectedSig := a.sign(parts[0] + "." + parts[1])
	signatureBytes, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || !hmac.Equal(signatureBytes, expectedSig) {
		return nil, errors.New("liveview: auth token signature mismatch")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, errors.New("liveview: malformed auth token payload")
	}
	var payload struct {
		ObserverID string `json:"sub"`
		Expires    int64  `json:"exp"`
	}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, errors.New("liveview: malformed auth token payload")
	}
	if strings.TrimSpace(payload.ObserverID) == "" || payload.Expires <= 0 {
		return nil, errors.New("liveview: auth token missing subject or expiry")
	}
	expiresAt := time.Unix(payload.Expires, 0)
	if expiresAt.Add(a.leeway).Before(a.now()) {
		return nil, errors.New("liveview: auth token expired")
	}
	return &observerClaims{ObserverID: payload.ObserverID, ExpiresAt: expiresAt}, nil
}

func (a *hmacAuthenticator) sign(headerAndPayload string) []byte {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(headerAndPayload))
	return mac.Sum(nil)
}
