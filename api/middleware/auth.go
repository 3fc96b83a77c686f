package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/feichai0017/document-tables/internal/models"
	"github.com/feichai0017/document-tables/pkg/logger"
)

const identityKey = "identity"

// Claims is the access token payload. The subject carries the numeric user id.
type Claims struct {
	Role         string `json:"role"`
	DepartmentID *int64 `json:"department_id,omitempty"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret    []byte
	algorithm string
	logger    logger.Logger
}

func NewAuthenticator(secret, algorithm string, log logger.Logger) *Authenticator {
	if algorithm == "" {
		algorithm = jwt.SigningMethodHS256.Alg()
	}
	return &Authenticator{
		secret:    []byte(secret),
		algorithm: algorithm,
		logger:    log.Named("auth"),
	}
}

// Parse verifies a token and returns the identity it carries.
func (a *Authenticator) Parse(tokenStr string) (models.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{a.algorithm}))
	if err != nil {
		return models.Identity{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return models.Identity{}, errors.New("invalid token")
	}

	sub, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return models.Identity{}, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	return models.Identity{
		SubjectID:    sub,
		Role:         models.Role(claims.Role),
		DepartmentID: claims.DepartmentID,
	}, nil
}

// Sign issues a token for id that expires after ttl.
func (a *Authenticator) Sign(id models.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:         string(id.Role),
		DepartmentID: id.DepartmentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.SubjectID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	method := jwt.GetSigningMethod(a.algorithm)
	if method == nil {
		return "", fmt.Errorf("unsupported signing method %q", a.algorithm)
	}
	return jwt.NewWithClaims(method, claims).SignedString(a.secret)
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing or malformed Authorization header",
			})
			return
		}

		id, err := a.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			logger.FromContext(c.Request.Context(), a.logger).Warn("Rejected access token", logger.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "invalid or expired token",
			})
			return
		}

		c.Set(identityKey, id)
		c.Request = c.Request.WithContext(logger.WithSubjectID(c.Request.Context(), id.SubjectID))
		c.Next()
	}
}

// IdentityFrom returns the identity stored by the auth middleware.
func IdentityFrom(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}, false
	}
	id, ok := v.(models.Identity)
	return id, ok
}
