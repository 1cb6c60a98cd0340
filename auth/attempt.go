package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/users"
)

// Login types understood by the built-in strategies.
const (
	LoginTypePassword = "PASSWORD"
	LoginTypeIAM      = "IAM"
	LoginTypeOAuth2   = "OAUTH2"
)

// LoginAttempt is a single login request. Which fields are required depends
// on the strategy selected by LoginType.
type LoginAttempt struct {
	Username    string `json:"username" validate:"required,max=64"`
	TenantID    string `json:"tenantId" validate:"required,max=64"`
	LoginType   string `json:"loginType"`
	Password    string `json:"password" validate:"required,max=128"`
	AuthCode    string `json:"authCode" validate:"required,max=2048"`
	RedirectURI string `json:"redirectUri" validate:"omitempty,url"`
	IP          string `json:"-"`
	UserAgent   string `json:"-"`
	DeviceID    string `json:"-"`
}

// PrincipalSummary is the user section of a login response.
type PrincipalSummary struct {
	UserID      string   `json:"userId"`
	Username    string   `json:"username"`
	Nickname    string   `json:"nickname,omitempty"`
	TenantID    string   `json:"tenantId"`
	TenantCode  string   `json:"tenantCode,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	DeviceID    string   `json:"deviceId"`
}

func summarize(p users.Principal, nickname, deviceID string) PrincipalSummary {
	p = p.Clone()
	return PrincipalSummary{
		UserID:      p.UserID,
		Username:    p.Username,
		Nickname:    nickname,
		TenantID:    p.TenantID,
		TenantCode:  p.TenantCode,
		Roles:       p.Roles,
		Permissions: p.Permissions,
		DeviceID:    deviceID,
	}
}

type LoginResponse struct {
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	TokenType    string           `json:"tokenType"`
	ExpiresIn    int              `json:"expiresIn"`
	ExpiresAt    time.Time        `json:"expiresAt"`
	User         PrincipalSummary `json:"user"`
}

var validate = validator.New()

// validateFields checks only the named fields of the attempt and folds the
// failures into one errors.ErrInvalidRequest.
func validateFields(a *LoginAttempt, fields ...string) error {
	if a == nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "missing login attempt")
	}
	err := validate.StructPartial(a, fields...)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, fieldError(fe))
		}
		return errors.Wrapf(errors.ErrInvalidRequest, "%s", strings.Join(msgs, "; "))
	}
	return errors.Wrapf(errors.ErrInvalidRequest, "%v", err)
}

func fieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "url":
		return field + " must be a valid URL"
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
