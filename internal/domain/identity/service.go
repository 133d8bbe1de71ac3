package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mdhs/ehr/internal/domain/access"
	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/internal/platform/blobstore"
	"github.com/mdhs/ehr/internal/platform/db"
	"github.com/mdhs/ehr/internal/platform/metrics"
	"github.com/mdhs/ehr/internal/platform/notification"
	"github.com/mdhs/ehr/internal/platform/sequence"
	"github.com/mdhs/ehr/pkg/pagination"
)

const (
	constraintUserID    = "users_user_id_key"
	constraintUsername  = "users_username_key"
	constraintEmail     = "users_email_key"
	constraintPatientID = "patient_patient_id_key"
)

type conflictField struct {
	field string
	msg   string
}

var conflictFields = map[string]conflictField{
	constraintUsername:  {"username", "username already taken"},
	constraintEmail:     {"email", "email already registered"},
	constraintUserID:    {"user_id", "user id already in use"},
	constraintPatientID: {"patient_id", "patient id already in use"},
}

// translateConflict turns unique violations of known constraints into
// field level conflicts.
func translateConflict(err error) error {
	if name, ok := db.UniqueViolation(err); ok {
		if f, ok := conflictFields[name]; ok {
			return apperr.Conflict(f.field, f.msg)
		}
	}
	return err
}

var errInvalidCredentials = apperr.Unauthorized("invalid username or password")

var errInvalidResetLink = apperr.Validation("token", "reset link is invalid or has expired")

// AccountDeps are the collaborators of AccountService.
type AccountDeps struct {
	Users   UserRepository
	IDs     sequence.Generator
	Tx      db.Transactor
	Guard   *access.Guard
	Tokens  *auth.TokenIssuer
	Resets  *auth.TokenIssuer
	Revoked auth.RevocationStore
	Mailer  *notification.Mailer
	Blobs   blobstore.Store
	Metrics *metrics.Metrics
	Logger  zerolog.Logger

	PublicBaseURL string
	MaxImageBytes int64
}

// AccountService handles registration, login and the caller's own account.
type AccountService struct {
	d AccountDeps
}

func NewAccountService(d AccountDeps) *AccountService {
	if d.MaxImageBytes <= 0 {
		d.MaxImageBytes = 5 << 20
	}
	return &AccountService{d: d}
}

// Register creates a doctor account.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	return s.CreateUser(ctx, req, auth.RoleDoctor)
}

// CreateUser creates an account with the given role together with its
// education row and a generated user id.
func (s *AccountService) CreateUser(ctx context.Context, req RegisterRequest, role string) (*User, error) {
	if !auth.ValidRoles[role] {
		return nil, apperr.Validation("role", "invalid role: "+role)
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Username:      strings.TrimSpace(req.Username),
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash:  hash,
		Role:          role,
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		BirthDate:     req.BirthDate,
		Gender:        req.Gender,
		ContactNumber: strings.TrimSpace(req.ContactNumber),
		IDCardNumber:  req.IDCardNumber,
		Country:       req.Country,
		HomeAddress:   strings.TrimSpace(req.HomeAddress),
	}
	var edu *Education
	if license := strings.TrimSpace(req.LicenseNumber); license != "" {
		edu = &Education{LicenseNumber: license}
	}

	err = s.d.Tx.InTx(ctx, func(ctx context.Context) error {
		_, err := sequence.Allocate(ctx, s.d.IDs, s.d.Metrics, sequence.ScopeUser, "user_id", constraintUserID,
			func(ctx context.Context, displayID string) error {
				u.UserID = displayID
				return s.d.Users.Create(ctx, u)
			})
		if err != nil {
			return err
		}
		if edu != nil {
			return s.d.Users.SaveEducation(ctx, u.ID, edu)
		}
		return nil
	})
	if err != nil {
		return nil, translateConflict(err)
	}
	u.Education = edu

	s.d.Logger.Info().
		Str("user_id", u.UserID).
		Str("role", u.Role).
		Msg("account created")
	return u, nil
}

// Login checks the credentials for the requested role and issues an access
// token. Every failure answers with the same message.
func (s *AccountService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	u, err := s.d.Users.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u == nil || u.Role != req.Role || !auth.CheckPassword(u.PasswordHash, req.Password) {
		s.d.Metrics.AuthAttempt(false)
		s.d.Logger.Warn().Str("username", req.Username).Str("role", req.Role).Msg("login failed")
		return nil, errInvalidCredentials
	}

	token, claims, err := s.d.Tokens.Issue(u.ID, u.Role, u.Email)
	if err != nil {
		return nil, err
	}
	s.d.Metrics.AuthAttempt(true)
	return &LoginResult{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: u}, nil
}

// Logout revokes the caller's token until it would have expired anyway.
func (s *AccountService) Logout(ctx context.Context, actor auth.Actor) error {
	if actor.TokenID == "" || s.d.Revoked == nil {
		return nil
	}
	if err := s.d.Revoked.Revoke(ctx, actor.TokenID, actor.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RequestPasswordReset mails a single purpose reset link to the owner of email.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.d.Users.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.NotFound("email")
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}

	token, _, err := s.d.Resets.Issue(u.ID, u.Role, u.Email)
	if err != nil {
		return err
	}
	link := strings.TrimRight(s.d.PublicBaseURL, "/") + "/reset-password/" + token
	return s.d.Mailer.Send(ctx, u.Email, notification.TemplatePasswordReset, map[string]string{
		"name":       u.FirstName + " " + u.LastName,
		"reset_link": link,
		"expires_in": humanDuration(s.d.Resets.TTL()),
	})
}

// ResetPassword sets a new password from a reset link. A link works once and
// stops working when the account's email changes.
func (s *AccountService) ResetPassword(ctx context.Context, token string, req PasswordResetConfirm) error {
	claims, err := s.d.Resets.Parse(token)
	if err != nil {
		return errInvalidResetLink
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return errInvalidResetLink
	}
	u, err := s.d.Users.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return errInvalidResetLink
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if !strings.EqualFold(u.Email, claims.Email) {
		return errInvalidResetLink
	}

	if u.PasswordHash, err = auth.HashPassword(req.Password); err != nil {
		return err
	}
	// A link is consumed exactly once, even by concurrent submissions.
	if s.d.Revoked != nil {
		first, err := s.d.Revoked.Claim(ctx, claims.ID, claims.ExpiresAt.Time)
		if err != nil {
			return fmt.Errorf("claim reset token: %w", err)
		}
		if !first {
			return errInvalidResetLink
		}
	}
	if err := s.d.Users.Update(ctx, u); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.notifyPasswordChanged(ctx, u)
	return nil
}

func (s *AccountService) GetAccount(ctx context.Context, actor auth.Actor) (*User, error) {
	return s.d.Users.GetByID(ctx, actor.UserID)
}

// UpdateAccount applies the non-nil fields of in to the caller's account.
func (s *AccountService) UpdateAccount(ctx context.Context, actor auth.Actor, in AccountUpdate) (*User, error) {
	u, err := s.d.Users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	passwordChanged := false
	if in.NewPassword != "" {
		if !auth.CheckPassword(u.PasswordHash, in.CurrentPassword) {
			return nil, apperr.Validation("current_password", "current password is incorrect")
		}
		if in.ConfirmPassword != in.NewPassword {
			return nil, apperr.Validation("confirm_password", "passwords do not match")
		}
		if u.PasswordHash, err = auth.HashPassword(in.NewPassword); err != nil {
			return nil, err
		}
		passwordChanged = true
	}
	if in.Username != nil {
		u.Username = strings.TrimSpace(*in.Username)
	}
	if in.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.ContactNumber != nil {
		u.ContactNumber = strings.TrimSpace(*in.ContactNumber)
	}
	if in.Country != nil {
		u.Country = in.Country
	}
	if in.HomeAddress != nil {
		u.HomeAddress = strings.TrimSpace(*in.HomeAddress)
	}

	err = s.d.Tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.d.Users.Update(ctx, u); err != nil {
			return err
		}
		if in.Education != nil {
			return s.d.Users.SaveEducation(ctx, u.ID, in.Education)
		}
		return nil
	})
	if err != nil {
		return nil, translateConflict(err)
	}
	if in.Education != nil {
		u.Education = in.Education
	}
	if passwordChanged {
		s.notifyPasswordChanged(ctx, u)
	}
	return u, nil
}

// SetProfileImage stores a new png or jpeg picture and removes the previous one.
func (s *AccountService) SetProfileImage(ctx context.Context, actor auth.Actor, content io.Reader) (*User, error) {
	u, err := s.d.Users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	obj, err := blobstore.Upload(ctx, s.d.Blobs, "profile", uuid.NewString(), content, s.d.MaxImageBytes, blobstore.ImageTypes)
	if err != nil {
		return nil, blobstore.ValidationError("image", err, s.d.MaxImageBytes)
	}

	previous := u.ProfileImagePath
	u.ProfileImagePath = &obj.Path
	if err := s.d.Users.Update(ctx, u); err != nil {
		_ = s.d.Blobs.Delete(ctx, obj.Path)
		return nil, fmt.Errorf("save profile image: %w", err)
	}
	if previous != nil && *previous != "" {
		if err := s.d.Blobs.Delete(ctx, *previous); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
			s.d.Logger.Warn().Err(err).Str("path", *previous).Msg("failed to remove old profile image")
		}
	}
	return u, nil
}

// ListUsers is the admin user directory.
func (s *AccountService) ListUsers(ctx context.Context, actor auth.Actor, p pagination.Params) ([]*User, int, error) {
	if err := s.d.Guard.RequireRole(actor, auth.RoleAdmin); err != nil {
		return nil, 0, err
	}
	return s.d.Users.List(ctx, p.Query, p.Limit, p.Offset)
}

func (s *AccountService) notifyPasswordChanged(ctx context.Context, u *User) {
	err := s.d.Mailer.Send(ctx, u.Email, notification.TemplatePasswordChanged, map[string]string{
		"name":       u.FirstName + " " + u.LastName,
		"username":   u.Username,
		"changed_at": time.Now().UTC().Format(time.RFC1123),
	})
	if err != nil {
		s.d.Logger.Warn().Err(err).Str("user_id", u.UserID).Msg("password change notice not sent")
	}
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if h := int(d / time.Hour); h > 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
