package usecase

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goldnightmare/analysis-api/internal/domain"
)

// AdminTokenManager issues and verifies the bearer tokens guarding the
// admin surface. Tokens are self-contained: "adminID.expiryUnix.hmac",
// base64url-encoded, signed with the server secret.
type AdminTokenManager struct {
	secret   []byte
	lifetime time.Duration
	clock    domain.Clock
}

// NewAdminTokenManager builds the token manager.
func NewAdminTokenManager(secret string, lifetime time.Duration, clock domain.Clock) *AdminTokenManager {
	return &AdminTokenManager{secret: []byte(secret), lifetime: lifetime, clock: clock}
}

// Issue mints a token for adminID, returning it with its expiry.
func (m *AdminTokenManager) Issue(adminID string) (string, time.Time) {
	expiry := m.clock.Now().Add(m.lifetime).UTC()
	payload := adminID + "." + strconv.FormatInt(expiry.Unix(), 10)
	token := payload + "." + m.sign(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(token)), expiry
}

// Verify checks the signature and expiry, returning the admin id.
func (m *AdminTokenManager) Verify(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("op=admintoken.Verify: %w", domain.ErrAuthFailed)
	}
	parts := strings.Split(string(raw), ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("op=admintoken.Verify: %w", domain.ErrAuthFailed)
	}
	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(m.sign(payload)), []byte(parts[2])) {
		return "", fmt.Errorf("op=admintoken.Verify: %w", domain.ErrAuthFailed)
	}
	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || m.clock.Now().Unix() > expiry {
		return "", fmt.Errorf("op=admintoken.Verify: %w: token expired", domain.ErrAuthFailed)
	}
	return parts[0], nil
}

func (m *AdminTokenManager) sign(payload string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
