package auth

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// CallerKey is the gin context key holding the authenticated common.Address.
const CallerKey = "caller_address"

const messagePrefix = "nftamm Auth"

// limiterIdle is how long a caller's limiter survives without requests.
const limiterIdle = 10 * time.Minute

// AuthMiddleware authenticates callers by a signed, single-use token
type AuthMiddleware struct {
	nonceMu     sync.Mutex
	nonceStore  map[string]time.Time
	nonceWindow time.Duration

	limiterMu sync.Mutex
	limiters  map[common.Address]*limiterEntry
	lastSweep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(nonceWindow time.Duration) *AuthMiddleware {
	if nonceWindow <= 0 {
		nonceWindow = 5 * time.Minute
	}
	return &AuthMiddleware{
		nonceStore:  make(map[string]time.Time),
		nonceWindow: nonceWindow,
		limiters:    make(map[common.Address]*limiterEntry),
	}
}

// Message is the text a caller signs to authenticate.
func Message(nonce string, timestamp int64) string {
	return fmt.Sprintf("%s:%s:%d", messagePrefix, nonce, timestamp)
}

// SignToken builds a bearer token for key. Token format is
// "signature:nonce:timestamp:address".
func SignToken(key *ecdsa.PrivateKey, nonce string, timestamp int64) (string, error) {
	hash := personalHash(Message(nonce, timestamp))
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return "", err
	}
	address := crypto.PubkeyToAddress(key.PublicKey)
	return fmt.Sprintf("0x%s:%s:%d:%s", hex.EncodeToString(sig), nonce, timestamp, address.Hex()), nil
}

// RequireAuth rejects requests without a valid bearer token and records the
// caller address on the context
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
				"code":  "AUTH_HEADER_MISSING",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization format",
				"code":  "INVALID_AUTH_FORMAT",
			})
			return
		}

		address, err := am.verifySignatureToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			logrus.WithError(err).Warn("Authentication failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication failed",
				"code":  "AUTH_FAILED",
			})
			return
		}

		c.Set(CallerKey, address)
		c.Next()
	}
}

// Caller returns the authenticated caller.
func Caller(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(CallerKey)
	if !ok {
		return common.Address{}, false
	}
	address, ok := v.(common.Address)
	return address, ok
}

// RateLimitByAddress limits each authenticated caller to perMinute requests
// with the given burst.
func (am *AuthMiddleware) RateLimitByAddress(perMinute, burst int) gin.HandlerFunc {
	limit := rate.Limit(float64(perMinute) / 60)
	return func(c *gin.Context) {
		address, ok := Caller(c)
		if !ok || perMinute <= 0 {
			c.Next()
			return
		}

		if !am.limiterFor(address, limit, burst).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"code":        "RATE_LIMITED",
				"retry_after": "1s",
			})
			return
		}
		c.Next()
	}
}

func (am *AuthMiddleware) limiterFor(address common.Address, limit rate.Limit, burst int) *rate.Limiter {
	am.limiterMu.Lock()
	defer am.limiterMu.Unlock()

	now := time.Now()
	if now.Sub(am.lastSweep) > limiterIdle {
		for addr, e := range am.limiters {
			if now.Sub(e.lastSeen) > limiterIdle {
				delete(am.limiters, addr)
			}
		}
		am.lastSweep = now
	}

	e, ok := am.limiters[address]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(limit, burst)}
		am.limiters[address] = e
	}
	e.lastSeen = now
	return e.limiter
}

func (am *AuthMiddleware) verifySignatureToken(token string) (common.Address, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 4 {
		return common.Address{}, fmt.Errorf("invalid token format")
	}
	signature, nonce, timestampStr, address := parts[0], parts[1], parts[2], parts[3]

	if !common.IsHexAddress(address) {
		return common.Address{}, fmt.Errorf("invalid address format")
	}
	if nonce == "" || len(nonce) > 128 {
		return common.Address{}, fmt.Errorf("invalid nonce length")
	}

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid timestamp")
	}
	now := time.Now().Unix()
	if now-timestamp > int64(am.nonceWindow.Seconds()) || timestamp > now+60 {
		return common.Address{}, fmt.Errorf("timestamp out of valid range")
	}

	expected := common.HexToAddress(address)
	if err := verifyEthereumSignature(Message(nonce, timestamp), signature, expected); err != nil {
		return common.Address{}, fmt.Errorf("signature verification failed: %w", err)
	}

	// Nonces are scoped to the signer.
	key := expected.Hex() + ":" + nonce
	am.nonceMu.Lock()
	defer am.nonceMu.Unlock()
	if lastUsed, exists := am.nonceStore[key]; exists && time.Since(lastUsed) < am.nonceWindow {
		return common.Address{}, fmt.Errorf("nonce already used")
	}
	am.nonceStore[key] = time.Now()
	am.cleanupExpiredNoncesLocked()

	return expected, nil
}

func personalHash(message string) common.Hash {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256Hash([]byte(prefixed))
}

func verifyEthereumSignature(message, signature string, expected common.Address) error {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return fmt.Errorf("invalid signature encoding")
	}
	if len(sigBytes) != 65 {
		return fmt.Errorf("invalid signature length")
	}
	// Accept wallet-style recovery ids.
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}

	pubKey, err := crypto.SigToPub(personalHash(message).Bytes(), sigBytes)
	if err != nil {
		return fmt.Errorf("failed to recover public key")
	}
	if crypto.PubkeyToAddress(*pubKey) != expected {
		return fmt.Errorf("signature address mismatch")
	}
	return nil
}

func (am *AuthMiddleware) cleanupExpiredNoncesLocked() {
	now := time.Now()
	for key, ts := range am.nonceStore {
		if now.Sub(ts) > am.nonceWindow {
			delete(am.nonceStore, key)
		}
	}
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Content-Security-Policy", "default-src 'self'")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// SecureCORS echoes allowed origins only
func SecureCORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		if origin := c.Request.Header.Get("Origin"); allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
