package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BuildToken produces the two-segment unsigned token sent during websocket
// authentication: an {alg:"none",typ:"JWT"} header and a {sub, iat} payload,
// joined by dots with an empty signature segment. It carries no signature and
// must not be trusted as a credential without server-side verification.
func BuildToken(id Identity, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": id.UserID,
		"iat": now.Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	return tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
}

// DecodeToken parses a token built by BuildToken and returns the subject and
// issue time.
func DecodeToken(raw string) (string, time.Time, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"none"}))
	tok, err := parser.Parse(raw, func(*jwt.Token) (any, error) {
		return jwt.UnsafeAllowNoneSignatureType, nil
	})
	if err != nil {
		return "", time.Time{}, err
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", time.Time{}, fmt.Errorf("unexpected claims type %T", tok.Claims)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", time.Time{}, err
	}
	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return sub, time.Time{}, err
	}
	return sub, iat.Time, nil
}
