package jwtPkg

import (
	"ProctorGolang/internal/entity"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const PrincipalKey = "principal"

var (
	ErrEmptyHeader     = errors.New("empty Authorization header")
	ErrInvalidFormat   = errors.New("invalid Authorization format")
	ErrSecretMissing   = errors.New("JWT secret not configured")
	ErrMissingSubject  = errors.New("token has no id claim")
	ErrNoPrincipal     = errors.New("no authenticated principal")
	ErrUnexpectedToken = errors.New("unexpected token claims")
)

func Sign(data map[string]interface{}, expiresIn time.Duration, secretEnvKey string) (string, int64, error) {
	expiredAt := time.Now().Add(expiresIn).Unix()

	secret := os.Getenv(secretEnvKey)
	if secret == "" {
		return "", 0, fmt.Errorf("%s: %w", secretEnvKey, ErrSecretMissing)
	}

	claims := jwt.MapClaims{}
	for k, v := range data {
		claims[k] = v
	}
	claims["exp"] = expiredAt

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := token.SignedString([]byte(secret))
	if err != nil {
		logrus.WithError(err).Error("Failed to sign token")
		return "", 0, err
	}

	return accessToken, expiredAt, nil
}

func VerifyTokenHeader(c *fiber.Ctx, secretEnvKey string) (*jwt.Token, error) {
	log := logrus.WithField("func", "VerifyTokenHeader")

	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return nil, ErrEmptyHeader
	}

	accessToken, ok := strings.CutPrefix(header, "Bearer ")
	accessToken = strings.TrimSpace(accessToken)
	if !ok || accessToken == "" {
		return nil, ErrInvalidFormat
	}

	secret := os.Getenv(secretEnvKey)
	if secret == "" {
		log.Errorf("%s environment variable not set", secretEnvKey)
		return nil, ErrSecretMissing
	}

	token, err := jwt.Parse(accessToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		log.WithError(err).Debug("Failed to parse JWT token")
		return nil, err
	}

	return token, nil
}

// PrincipalFromClaims requires an id claim; username, email and role are optional.
func PrincipalFromClaims(token *jwt.Token) (entity.Principal, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return entity.Principal{}, ErrUnexpectedToken
	}

	id, _ := claims["id"].(string)
	if id == "" {
		return entity.Principal{}, ErrMissingSubject
	}

	username, _ := claims["username"].(string)
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)

	return entity.Principal{ID: id, Username: username, Email: email, Role: role}, nil
}

func GetPrincipal(c *fiber.Ctx) (entity.Principal, error) {
	principal, ok := c.Locals(PrincipalKey).(entity.Principal)
	if !ok {
		return entity.Principal{}, ErrNoPrincipal
	}
	return principal, nil
}
