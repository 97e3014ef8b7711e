package middleware

import (
	jwtPkg "ProctorGolang/pkg/jwt"
	"ProctorGolang/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const (
	AccessTokenSecret = "JWT_ACCESS_TOKEN_SECRET"
)

func (m *middleware) NewTokenMiddleware(ctx *fiber.Ctx) error {
	fields := logrus.Fields{
		"request_id": m.GetRequestID(ctx),
		"path":       ctx.Path(),
		"method":     ctx.Method(),
		"client_ip":  ctx.IP(),
	}

	token, err := jwtPkg.VerifyTokenHeader(ctx, AccessTokenSecret)
	if err != nil {
		m.log.WithFields(fields).WithField("error", err.Error()).Warn("Token verification failed")
		return unauthorized(ctx)
	}

	principal, err := jwtPkg.PrincipalFromClaims(token)
	if err != nil {
		m.log.WithFields(fields).WithField("error", err.Error()).Warn("Token claims check failed")
		return unauthorized(ctx)
	}

	ctx.Locals(jwtPkg.PrincipalKey, principal)

	m.log.WithFields(fields).WithField("principal_id", principal.ID).Debug("Authentication successful")
	return ctx.Next()
}

func unauthorized(ctx *fiber.Ctx) error {
	return ctx.Status(fiber.StatusUnauthorized).JSON(response.Body{
		Error: "Unauthorized, access token invalid or expired",
		Code:  "UNAUTHORIZED",
	})
}
