package http

import (
	stderrors "errors"
	"strings"
	"time"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/shared/contextkeys"
	"firestore-access/internal/shared/errors"
	"firestore-access/internal/shared/logger"
	"firestore-access/internal/shared/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// HeaderDeviceTimestamp carries the optional client clock of a write.
const HeaderDeviceTimestamp = "X-Device-Timestamp"

// Claims are the bearer token claims. The subject is the account id.
type Claims struct {
	AccountName string `json:"name"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies HMAC bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator for tokens issued by issuer.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Sign issues a token for an account valid for ttl.
func (a *Authenticator) Sign(accountID, accountName string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		AccountName: accountName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errors.NewInternalError("failed to sign token").WithCause(err)
	}
	return signed, nil
}

// Verify parses token and checks its signature, issuer and expiry.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.ErrInvalidToken
		}
		return a.secret, nil
	},
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		switch {
		case stderrors.Is(err, jwt.ErrTokenExpired):
			return nil, errors.NewAuthenticationError("token expired").WithCause(errors.ErrInvalidToken)
		case stderrors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, errors.NewAuthenticationError("token issued by an unknown issuer").WithCause(errors.ErrInvalidToken)
		default:
			return nil, errors.NewAuthenticationError("invalid token").WithCause(errors.ErrInvalidToken)
		}
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, errors.NewAuthenticationError("token has no subject").WithCause(errors.ErrInvalidToken)
	}
	return claims, nil
}

// Protect requires a valid bearer token and binds the calling account,
// and the device time when sent, to the request context.
func (a *Authenticator) Protect() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return errors.NewAuthenticationError("authentication required").WithCause(errors.ErrUnauthorized)
		}
		claims, err := a.Verify(token)
		if err != nil {
			return err
		}

		ctx := utils.WithAccount(c.UserContext(), claims.Subject, claims.AccountName)
		if raw := c.Get(HeaderDeviceTimestamp); raw != "" {
			device, err := model.NewTimestampParser().ParseTimestamp(raw)
			if err != nil {
				return errors.NewValidationError("invalid device timestamp").
					WithCause(errors.ErrInvalidInput).
					WithDetail("header", HeaderDeviceTimestamp)
			}
			ctx = utils.WithDeviceTimestamp(ctx, device)
		}
		c.Locals(contextkeys.ClaimsKey, claims)
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// GetClaims returns the claims Protect verified.
func GetClaims(c *fiber.Ctx) (*Claims, bool) {
	claims, ok := c.Locals(contextkeys.ClaimsKey).(*Claims)
	return claims, ok
}

// RequestID reuses the caller's X-Request-ID or allocates one, and binds
// it to the request context for log correlation.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(fiber.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, id)
		c.Locals(contextkeys.RequestIDKey, id)
		c.SetUserContext(utils.WithRequestID(c.UserContext(), id))
		return c.Next()
	}
}

// AccessLog logs one line per request.
func AccessLog(log logger.Logger) fiber.Handler {
	log = log.WithComponent("http")
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			status, _ = errorResponse(err)
		}
		entry := log.WithContext(c.UserContext()).WithFields(map[string]interface{}{
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if status >= fiber.StatusInternalServerError {
			entry.Error("request failed")
		} else {
			entry.Info("request served")
		}
		return err
	}
}

// ErrorHandler renders errors as JSON with the status their type maps to.
func ErrorHandler(log logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := errorResponse(err)
		if status >= fiber.StatusInternalServerError {
			log.WithContext(c.UserContext()).Errorf("%s %s: %v", c.Method(), c.Path(), err)
		}
		return c.Status(status).JSON(body)
	}
}

func errorResponse(err error) (int, fiber.Map) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		status := appErr.HTTPCode
		if status == 0 {
			status = fiber.StatusInternalServerError
		}
		body := fiber.Map{"error": appErr.Type, "message": appErr.Message}
		if appErr.Code != "" {
			body["code"] = appErr.Code
		}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		return status, body
	}
	var fiberErr *fiber.Error
	if stderrors.As(err, &fiberErr) {
		return fiberErr.Code, fiber.Map{"error": fiberErr.Message}
	}
	switch {
	case errors.IsNotFound(err):
		return fiber.StatusNotFound, fiber.Map{"error": errors.ErrorTypeNotFound, "message": err.Error()}
	case errors.IsConflict(err):
		return fiber.StatusConflict, fiber.Map{"error": errors.ErrorTypeConflict, "message": err.Error()}
	case errors.IsCallerError(err):
		return fiber.StatusBadRequest, fiber.Map{"error": errors.ErrorTypeDomain, "message": err.Error()}
	}
	return fiber.StatusInternalServerError, fiber.Map{"error": errors.ErrorTypeInternal, "message": "internal server error"}
}

// eventBy builds the write attribution from the request context.
func eventBy(c *fiber.Ctx) *model.EventBy {
	ctx := c.UserContext()
	accountID, accountName, err := utils.GetAccountFromContext(ctx)
	if err != nil {
		return nil
	}
	by := &model.EventBy{AccountID: accountID, AccountName: accountName}
	if device, ok := utils.GetDeviceTimestampFromContext(ctx); ok {
		by.DeviceTimestamp = &device
	}
	return by
}
