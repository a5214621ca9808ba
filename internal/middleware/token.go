package middleware

import (
	jwtPkg "ProctorGolang/pkg/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const (
	AccessTokenSecret = "JWT_ACCESS_TOKEN_SECRET"
)

// NewTokenMiddleware guards reviewer endpoints. The verified reviewer is stored
// under jwtPkg.ReviewerLocalKey.
func (m *middleware) NewTokenMiddleware(ctx *fiber.Ctx) error {
	requestID := m.GetRequestID(ctx)

	token, err := jwtPkg.VerifyTokenHeader(ctx, m.tokenSecretKey)
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
			"client_ip":  ctx.IP(),
			"error":      err.Error(),
		}).Warn("Token verification failed")
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized, access token invalid or expired",
		})
	}

	reviewer, err := jwtPkg.ReviewerFromToken(token)
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
			"error":      err.Error(),
		}).Warn("Token claims check")
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized, access token invalid or expired",
		})
	}

	ctx.Locals(jwtPkg.ReviewerLocalKey, reviewer)

	m.log.WithFields(logrus.Fields{
		"request_id":  requestID,
		"reviewer_id": reviewer.ID,
	}).Debug("Authentication successful")
	return ctx.Next()
}
