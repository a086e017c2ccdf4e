package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/sha256" // SHA-256 hashing for refresh tokens
	"encoding/hex"  // hex encoding for digests
	"errors"        // sentinel errors for token verification
	"strconv"       // subject claim conversion
	"time"          // expiry computation

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
	"github.com/google/uuid"       // unique id per refresh token (jti)
)

// Issuer and audience baked into every token.  Verification rejects tokens
// minted for a different purpose or deployment.
const (
	TokenIssuer   = "inkfolio-api"
	TokenAudience = "inkfolio-client"
)

// Token type discriminators carried in the "typ" claim so an access token
// can never be replayed as a refresh token or vice versa.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrWrongTokenUse = errors.New("token type mismatch")
)

// AccessToken is a signed short-lived JWT along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// RefreshToken is a signed long-lived JWT.  Raw is handed to the client;
// only the SHA-256 hash of Raw is persisted, keyed for revocation by its
// random JTI-backed row.
type RefreshToken struct {
	Raw string    // raw token string returned to the client
	JTI string    // unique id embedded in the token
	Exp time.Time // UTC expiration time
}

// AccessClaims is the decoded, validated content of an access token.
type AccessClaims struct {
	UserID uint64
	Email  string
	Role   string
}

// NewAccessToken builds and signs an HS256 JWT carrying the subject id,
// email, role and the access discriminator.
func NewAccessToken(secret string, userID uint64, email, role string, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":   strconv.FormatUint(userID, 10),
		"email": email,
		"role":  role,
		"typ":   TypeAccess,
		"iss":   TokenIssuer,
		"aud":   TokenAudience,
		"exp":   exp.Unix(),
		"iat":   now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// NewRefreshToken builds and signs a long-lived refresh JWT.  The random
// jti lets the server revoke an individual token by hash lookup without
// ever storing the raw value.
func NewRefreshToken(secret string, userID uint64, ttlDays int) (RefreshToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlDays) * 24 * time.Hour)
	jti := uuid.NewString()
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(userID, 10),
		"typ": TypeRefresh,
		"jti": jti,
		"iss": TokenIssuer,
		"aud": TokenAudience,
		"exp": exp.Unix(),
		"iat": now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{Raw: signed, JTI: jti, Exp: exp}, nil
}

// ParseAccessToken validates signature, method, issuer, audience, expiry and
// the access discriminator, then returns the embedded claims.
func ParseAccessToken(secret, raw string) (AccessClaims, error) {
	claims, err := parse(secret, raw)
	if err != nil {
		return AccessClaims{}, err
	}
	if typ, _ := claims["typ"].(string); typ != TypeAccess {
		return AccessClaims{}, ErrWrongTokenUse
	}
	uid, err := subjectID(claims)
	if err != nil {
		return AccessClaims{}, err
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	return AccessClaims{UserID: uid, Email: email, Role: role}, nil
}

// ParseRefreshToken validates a refresh token and returns its subject id.
func ParseRefreshToken(secret, raw string) (uint64, error) {
	claims, err := parse(secret, raw)
	if err != nil {
		return 0, err
	}
	if typ, _ := claims["typ"].(string); typ != TypeRefresh {
		return 0, ErrWrongTokenUse
	}
	return subjectID(claims)
}

func parse(secret, raw string) (jwt.MapClaims, error) {
	tok, err := jwt.Parse(raw,
		func(t *jwt.Token) (interface{}, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func subjectID(claims jwt.MapClaims) (uint64, error) {
	sub, _ := claims["sub"].(string)
	uid, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || uid == 0 {
		return 0, ErrInvalidToken
	}
	return uid, nil
}

// HashToken returns the SHA-256 hash of a raw token as a hex string.
// Storing only the hash prevents a leaked database from yielding usable
// refresh tokens.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
