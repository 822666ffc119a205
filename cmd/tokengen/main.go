// Command tokengen mints HS256 bearer tokens for local testing against the
// gateway. The secret must match the gateway's JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 signing secret (defaults to JWT_SECRET)")
	userID := flag.String("user", "dev-user", "user id claim")
	email := flag.String("email", "dev@example.com", "email claim")
	role := flag.String("role", "user", "role claim (user or admin)")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "a signing secret is required: pass -secret or set JWT_SECRET")
		os.Exit(1)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":    *userID,
		"email": *email,
		"role":  *role,
		"iat":   now.Unix(),
		"exp":   now.Add(*ttl).Unix(),
	})

	signed, err := token.SignedString([]byte(*secret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("User: %s (%s, role %s)\n", *userID, *email, *role)
	fmt.Printf("Expires: %s\n", now.Add(*ttl).Format(time.RFC3339))
	fmt.Printf("\nAuthorization: Bearer %s\n", signed)
}
