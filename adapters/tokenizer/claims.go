package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with the verified wallet
type SessionClaims struct {
	jwt.RegisteredClaims
	Wallet string `json:"wallet"`
}
