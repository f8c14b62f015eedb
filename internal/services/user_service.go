package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/Larvizub/arvidev-presupuestos/internal/errors"
	"github.com/Larvizub/arvidev-presupuestos/internal/models"
	"github.com/Larvizub/arvidev-presupuestos/internal/store"
	"github.com/Larvizub/arvidev-presupuestos/internal/validator"
)

const (
	minPasswordLength = 6
	maxDisplayNameLen = 100
	maxFailedAttempts = 5
	lockoutWindow     = 15 * time.Minute
	lockoutDuration   = 15 * time.Minute
)

// userService handles user-related business logic.
type userService struct {
	store       store.Store
	activity    ActivityServicer
	adminEmails map[string]bool
	now         func() time.Time
}

// NewUserService creates a new UserServicer. Users registering with one of
// adminEmails get the admin role.
func NewUserService(st store.Store, activity ActivityServicer, adminEmails []string) UserServicer {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = true
		}
	}
	return &userService{store: st, activity: activity, adminEmails: admins, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func decodeUser(snap store.Snapshot) (*models.User, error) {
	var user models.User
	if err := snap.Decode(&user); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	user.ID = snap.Key()
	return &user, nil
}

func (s *userService) credentials(ctx context.Context, id string) (*models.Credentials, error) {
	snap, err := s.store.Get(ctx, credentialsPath(id))
	if err != nil {
		return nil, storeError(err)
	}
	var creds models.Credentials
	if err := snap.Decode(&creds); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &creds, nil
}

// Register creates a user with a hashed password.
func (s *userService) Register(ctx context.Context, email, password, displayName string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "email and password are required")
	}
	if !strings.Contains(email, "@") {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid email address")
	}
	if len(password) < minPasswordLength {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "password must be at least 6 characters")
	}
	displayName = strings.TrimSpace(displayName)
	if utf8.RuneCountInString(displayName) > maxDisplayNameLen {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "display name is too long")
	}

	existing, err := s.store.Query(ctx, usersRoot, "email", email)
	if err != nil {
		return nil, storeError(err)
	}
	if len(existing.Keys()) > 0 {
		return nil, apperrors.ErrDuplicateEmail
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	id, err := s.store.Push(ctx, usersRoot)
	if err != nil {
		return nil, storeError(err)
	}

	role := models.RoleUser
	if s.adminEmails[email] {
		role = models.RoleAdmin
	}
	user := &models.User{
		ID:          id,
		Email:       email,
		DisplayName: validator.SanitizeString(displayName),
		Role:        role,
		Currency:    models.DefaultCurrency,
		CreatedAt:   s.now().UTC(),
	}

	err = s.store.Update(ctx, map[string]any{
		userPath(id):        user,
		credentialsPath(id): models.Credentials{PasswordHash: string(hashedPassword)},
	})
	if err != nil {
		return nil, storeError(err)
	}
	return user, nil
}

// AttemptLogin verifies a password. Too many failures in a short window lock
// the account for a while.
func (s *userService) AttemptLogin(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}

	creds, err := s.credentials(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if creds.LockedUntil != nil && now.Before(*creds.LockedUntil) {
		return nil, apperrors.ErrAccountLocked
	}

	base := credentialsPath(user.ID)
	if bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)) != nil {
		attempts := 1
		if creds.LastFailedLogin != nil && now.Sub(*creds.LastFailedLogin) < lockoutWindow {
			attempts = creds.FailedLoginAttempts + 1
		}
		values := map[string]any{
			store.Join(base, "failedLoginAttempts"): attempts,
			store.Join(base, "lastFailedLogin"):     timestamp(now),
		}
		if attempts >= maxFailedAttempts {
			values[store.Join(base, "lockedUntil")] = timestamp(now.Add(lockoutDuration))
		}
		if err := s.store.Update(ctx, values); err != nil {
			return nil, storeError(err)
		}
		return nil, apperrors.ErrInvalidCredentials
	}

	err = s.store.Update(ctx, map[string]any{
		store.Join(base, "failedLoginAttempts"):    nil,
		store.Join(base, "lastFailedLogin"):        nil,
		store.Join(base, "lockedUntil"):            nil,
		store.Join(userPath(user.ID), "lastLogin"): timestamp(now),
	})
	if err != nil {
		return nil, storeError(err)
	}
	user.LastLogin = &now
	return user, nil
}

// GetByID retrieves a user by ID.
func (s *userService) GetByID(ctx context.Context, id string) (*models.User, error) {
	if !validID(id) {
		return nil, apperrors.ErrUserNotFound
	}
	snap, err := s.store.Get(ctx, userPath(id))
	if err != nil {
		return nil, storeError(err)
	}
	if !snap.Exists() {
		return nil, apperrors.ErrUserNotFound
	}
	return decodeUser(snap)
}

// GetByEmail retrieves a user by email, ignoring case.
func (s *userService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperrors.ErrUserNotFound
	}
	snap, err := s.store.Query(ctx, usersRoot, "email", email)
	if err != nil {
		return nil, storeError(err)
	}
	children := snap.Children()
	if len(children) == 0 {
		return nil, apperrors.ErrUserNotFound
	}
	return decodeUser(children[0])
}

// UpdateProfile changes the display name of a user.
func (s *userService) UpdateProfile(ctx context.Context, id, displayName string) (*models.User, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || utf8.RuneCountInString(displayName) > maxDisplayNameLen {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "display name must be between 1 and 100 characters")
	}
	if err := s.store.Set(ctx, store.Join(userPath(id), "displayName"), validator.SanitizeString(displayName)); err != nil {
		return nil, storeError(err)
	}
	return s.GetByID(ctx, id)
}

// SetCurrency changes the preferred display currency of a user.
func (s *userService) SetCurrency(ctx context.Context, id, code string) (*models.User, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if !models.IsSupportedCurrency(code) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "unsupported currency")
	}
	if err := s.store.Set(ctx, store.Join(userPath(id), "currency"), code); err != nil {
		return nil, storeError(err)
	}
	return s.GetByID(ctx, id)
}

// StoreRefreshTokenHash stores the hash of the current refresh token. An
// empty hash revokes it.
func (s *userService) StoreRefreshTokenHash(ctx context.Context, id, tokenHash string) error {
	if !validID(id) {
		return apperrors.ErrUserNotFound
	}
	var value any
	if tokenHash != "" {
		value = tokenHash
	}
	return storeError(s.store.Set(ctx, store.Join(credentialsPath(id), "refreshTokenHash"), value))
}

// GetRefreshTokenHash returns the stored refresh token hash, or "" if none.
func (s *userService) GetRefreshTokenHash(ctx context.Context, id string) (string, error) {
	if !validID(id) {
		return "", apperrors.ErrUserNotFound
	}
	creds, err := s.credentials(ctx, id)
	if err != nil {
		return "", err
	}
	return creds.RefreshTokenHash, nil
}

// ListUsers returns every user ordered by email.
func (s *userService) ListUsers(ctx context.Context) ([]models.User, error) {
	snap, err := s.store.Get(ctx, usersRoot)
	if err != nil {
		return nil, storeError(err)
	}
	users := make([]models.User, 0, len(snap.Keys()))
	for _, c := range snap.Children() {
		u, err := decodeUser(c)
		if err != nil {
			continue
		}
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

// SetRole changes the role of targetID. Only admins may do so, and never on
// themselves.
func (s *userService) SetRole(ctx context.Context, actorID, targetID string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, apperrors.ErrUnsupportedRole
	}
	if actorID == targetID {
		return nil, apperrors.ErrOwnRoleChange
	}

	actor, err := s.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, apperrors.ErrForbidden
		}
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}

	target, err := s.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	previous := target.Role

	if err := s.store.Set(ctx, store.Join(userPath(targetID), "role"), string(role)); err != nil {
		return nil, storeError(err)
	}
	target.Role = role

	s.activity.Log(ctx, actorID, models.ActionChangeRole, map[string]any{
		"targetUserId": targetID,
		"from":         string(previous),
		"to":           string(role),
	})
	return target, nil
}
