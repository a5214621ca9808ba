package jwtPkg

import (
	"ProctorGolang/internal/entity"
	"errors"
	"fmt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"os"
	"strings"
	"time"
)

const ReviewerLocalKey = "reviewer"

var (
	ErrEmptyHeader   = errors.New("empty Authorization header")
	ErrInvalidFormat = errors.New("invalid Authorization format")
	ErrSecretNotSet  = errors.New("JWT secret not configured")
	ErrMissingClaims = errors.New("token claims are missing required fields")
	ErrNotAuthorized = errors.New("token is not an authorization token")
)

func Sign(data map[string]interface{}, expiresIn time.Duration, secretEnvKey string) (string, int64, error) {
	expiredAt := time.Now().Add(expiresIn).Unix()

	secret := os.Getenv(secretEnvKey)
	if secret == "" {
		return "", 0, fmt.Errorf("%s not set: %w", secretEnvKey, ErrSecretNotSet)
	}

	claims := jwt.MapClaims{}
	for k, v := range data {
		claims[k] = v
	}
	claims["exp"] = expiredAt
	claims["authorization"] = true

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := token.SignedString([]byte(secret))
	if err != nil {
		logrus.WithError(err).Error("Failed to sign token")
		return "", 0, err
	}

	return accessToken, expiredAt, nil
}

func VerifyTokenHeader(c *fiber.Ctx, secretEnvKey string) (*jwt.Token, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return nil, ErrEmptyHeader
	}

	accessToken, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, ErrInvalidFormat
	}
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, ErrInvalidFormat
	}

	return Parse(accessToken, secretEnvKey)
}

func Parse(accessToken string, secretEnvKey string) (*jwt.Token, error) {
	secret := os.Getenv(secretEnvKey)
	if secret == "" {
		return nil, ErrSecretNotSet
	}

	token, err := jwt.Parse(accessToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	return token, nil
}

// ReviewerFromToken extracts the reviewer identity from verified claims.
func ReviewerFromToken(token *jwt.Token) (entity.Reviewer, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return entity.Reviewer{}, ErrMissingClaims
	}
	if authorized, _ := claims["authorization"].(bool); !authorized {
		return entity.Reviewer{}, ErrNotAuthorized
	}

	id, _ := claims["id"].(string)
	email, _ := claims["email"].(string)
	if id == "" || email == "" {
		return entity.Reviewer{}, ErrMissingClaims
	}
	role, _ := claims["role"].(string)

	return entity.Reviewer{
		ID:    id,
		Email: email,
		Role:  role,
	}, nil
}

func GetReviewer(c *fiber.Ctx) (entity.Reviewer, error) {
	reviewer, ok := c.Locals(ReviewerLocalKey).(entity.Reviewer)
	if !ok {
		return entity.Reviewer{}, fiber.ErrUnauthorized
	}

	return reviewer, nil
}
