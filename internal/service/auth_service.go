package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/instrolab/lims-portal-api/internal/models"
	"github.com/instrolab/lims-portal-api/pkg/config"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
)

const reviewIssuer = "lims-portal-gateway"

// AuthService validates staff access tokens minted by the central auth
// service and mints/validates customer review tokens of its own.
type AuthService struct {
	staffSecret  []byte
	reviewSecret []byte
	reviewTTL    time.Duration
	logger       *zap.Logger
}

// NewAuthService constructs an auth service from JWT configuration.
func NewAuthService(cfg config.JWTConfig, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		staffSecret:  []byte(cfg.StaffSecret),
		reviewSecret: []byte(cfg.ReviewSecret),
		reviewTTL:    cfg.ReviewLinkTTL,
		logger:       logger,
	}
}

// ValidateStaffToken parses and validates a staff access token.
func (s *AuthService) ValidateStaffToken(tokenString string) (*models.StaffClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.StaffClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.staffSecret, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.StaffClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token carries no user identity")
	}

	return claims, nil
}

// IssueReviewToken mints a review token bound to a link. Tokens for links
// protected by an access code start with CodeOK false and must be exchanged
// via the unlock endpoint before the record can be read.
func (s *AuthService) IssueReviewToken(linkID, recordID, customerID string, codeOK bool, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = s.reviewTTL
	}
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(ttl)

	claims := models.ReviewClaims{
		LinkID:     linkID,
		RecordID:   recordID,
		CustomerID: customerID,
		CodeOK:     codeOK,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    reviewIssuer,
			Subject:   linkID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.reviewSecret)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "sign review token")
	}
	return signed, expiresAt, nil
}

// ValidateReviewToken parses and validates a customer review token.
func (s *AuthService) ValidateReviewToken(tokenString string) (*models.ReviewClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.ReviewClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.reviewSecret, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid review token")
	}

	claims, ok := token.Claims.(*models.ReviewClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid review token claims")
	}
	if claims.LinkID == "" || claims.RecordID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "review token is not bound to a link")
	}

	return claims, nil
}

// HashAccessCode hashes a review link access code for storage.
func (s *AuthService) HashAccessCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "hash access code")
	}
	return string(hash), nil
}

// CheckAccessCode compares a submitted code against the stored hash.
func (s *AuthService) CheckAccessCode(hash, code string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)); err != nil {
		return appErrors.Clone(appErrors.ErrAccessCode, "")
	}
	return nil
}
