package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hexorsite/internal/auth"
	"hexorsite/internal/config"
	"hexorsite/internal/metrics"
	"hexorsite/internal/models"
	"hexorsite/internal/notify"
	"hexorsite/internal/rate"
	"hexorsite/internal/session"
	"hexorsite/internal/store"
	"hexorsite/internal/validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account deactivated. Please contact administrator")
	ErrTooManyAttempts    = errors.New("too many failed login attempts, try again later")
	ErrForbidden          = errors.New("access denied")
	ErrSelfDeactivate     = errors.New("cannot deactivate your own account")
	ErrSelfDelete         = errors.New("cannot delete your own account")
	ErrUserExists         = errors.New("user already exists")
)

// InputError is a request that failed a business rule. Handlers answer 400.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// IsInputError reports whether err should be shown to the caller as a bad
// request.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie) || validation.IsFieldError(err)
}

type Service struct {
	cfg      config.Config
	st       *store.Store
	sessions *session.Manager
	leads    notify.LeadSender
	throttle *rate.Throttle
	hashing  auth.Params
	log      zerolog.Logger
}

func New(cfg config.Config, st *store.Store, sessions *session.Manager, leads notify.LeadSender, log zerolog.Logger) *Service {
	if leads == nil {
		leads = notify.NewLogSender(log)
	}
	return &Service{
		cfg:      cfg,
		st:       st,
		sessions: sessions,
		leads:    leads,
		throttle: rate.NewThrottle(10, 15*time.Minute),
		hashing:  cfg.PasswordParams(),
		log:      log,
	}
}

func (s *Service) Store() *store.Store        { return s.st }
func (s *Service) Sessions() *session.Manager { return s.sessions }

type LoginResult struct {
	User    models.User
	Session session.Issued
}

func (s *Service) Login(ctx context.Context, email, password string, meta models.RequestMeta) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return LoginResult{}, invalid("Email and password are required")
	}
	key := meta.IP + "|" + email
	if s.throttle.Blocked(key) {
		metrics.RecordLogin("throttled")
		return LoginResult{}, ErrTooManyAttempts
	}

	u, err := s.st.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		s.throttle.Fail(key)
		metrics.RecordLogin("invalid")
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		metrics.RecordLogin("error")
		return LoginResult{}, err
	}
	if !u.IsActive {
		metrics.RecordLogin("inactive")
		return LoginResult{}, ErrAccountInactive
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		s.throttle.Fail(key)
		metrics.RecordLogin("invalid")
		return LoginResult{}, ErrInvalidCredentials
	}
	s.throttle.Reset(key)
	s.upgradeHash(ctx, u, password)

	now := time.Now().UTC()
	if err := s.st.TouchUserLastLogin(ctx, u.ID, now); err != nil {
		s.log.Warn().Err(err).Int64("user_id", u.ID).Msg("last login not recorded")
	}
	u.LastLogin = &now
	issued, err := s.sessions.Create(ctx, u.ID, meta)
	if err != nil {
		metrics.RecordLogin("error")
		return LoginResult{}, err
	}
	s.audit(ctx, u.Identity(), meta, "login", "User logged into admin panel")
	metrics.RecordLogin("success")
	return LoginResult{User: u, Session: issued}, nil
}

// upgradeHash rewrites a bcrypt hash or one with outdated Argon2id settings
// after a successful login. Failures only cost the upgrade.
func (s *Service) upgradeHash(ctx context.Context, u models.User, password string) {
	if !s.hashing.NeedsRehash(u.PasswordHash) {
		return
	}
	hash, err := s.hashing.Hash(password)
	if err == nil {
		err = s.st.UpdateUserPasswordHash(ctx, u.ID, hash)
	}
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", u.ID).Msg("password hash not upgraded")
		return
	}
	s.log.Info().Int64("user_id", u.ID).Msg("password hash upgraded")
}

// Logout revokes token. It never fails from the caller's point of view; store
// errors are only logged.
func (s *Service) Logout(ctx context.Context, token string, meta models.RequestMeta) {
	if token == "" {
		return
	}
	id, err := s.sessions.Validate(ctx, token)
	if err != nil {
		s.log.Warn().Err(err).Msg("logout lookup failed")
	}
	if err := s.sessions.Revoke(ctx, token); err != nil {
		s.log.Warn().Err(err).Msg("logout revoke failed")
		return
	}
	if id != nil {
		s.audit(ctx, *id, meta, "logout", "User logged out")
	}
}

// IssueSession starts a new session for an already authenticated user, as
// after a restore.
func (s *Service) IssueSession(ctx context.Context, u models.User, meta models.RequestMeta) (session.Issued, error) {
	return s.sessions.Create(ctx, u.ID, meta)
}

func (s *Service) ValidatePassword(pw string) error {
	if strings.TrimSpace(pw) == "" {
		return invalid("Password is required")
	}
	if len(pw) < s.cfg.PasswordMinLength {
		return invalid("Password must be at least %d characters", s.cfg.PasswordMinLength)
	}
	if len(pw) > 256 {
		return invalid("Password must be at most 256 characters")
	}
	return nil
}

type CreateUserInput struct {
	Name     string  `json:"name" validate:"required,max=120"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required"`
	Role     string  `json:"role" validate:"omitempty,oneof=admin user"`
	Phone    *string `json:"phone" validate:"omitempty,max=40"`
	Position *string `json:"position" validate:"omitempty,max=120"`
}

func (s *Service) CreateUser(ctx context.Context, actor models.Identity, meta models.RequestMeta, in CreateUserInput) (models.User, error) {
	if err := validation.Struct(in); err != nil {
		return models.User{}, err
	}
	if err := s.ValidatePassword(in.Password); err != nil {
		return models.User{}, err
	}
	hash, err := s.hashing.Hash(in.Password)
	if err != nil {
		return models.User{}, err
	}
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	u, err := s.st.CreateUser(ctx, store.NewUser{Name: in.Name, Email: in.Email, PasswordHash: hash, Role: in.Role, Phone: in.Phone, Position: in.Position})
	if errors.Is(err, store.ErrConflict) {
		return models.User{}, ErrUserExists
	}
	if err != nil {
		return models.User{}, err
	}
	s.audit(ctx, actor, meta, "create_user", fmt.Sprintf("Created user: %s with role: %s", u.Email, u.Role))
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.st.ListUsers(ctx)
}

// GetUser lets admins read any account and users only their own.
func (s *Service) GetUser(ctx context.Context, actor models.Identity, id int64) (models.User, error) {
	if !actor.IsAdmin() && actor.ID != id {
		return models.User{}, ErrForbidden
	}
	return s.st.GetUserByID(ctx, id)
}

type UpdateUserInput struct {
	Name     string  `json:"name" validate:"required,max=120"`
	Email    string  `json:"email" validate:"omitempty,email"`
	Role     string  `json:"role" validate:"omitempty,oneof=admin user"`
	Phone    *string `json:"phone" validate:"omitempty,max=40"`
	Position *string `json:"position" validate:"omitempty,max=120"`
}

// UpdateUser changes account details. Only admins may change email or role;
// for anyone else those fields are ignored.
func (s *Service) UpdateUser(ctx context.Context, actor models.Identity, meta models.RequestMeta, id int64, in UpdateUserInput) error {
	if !actor.IsAdmin() && actor.ID != id {
		return ErrForbidden
	}
	if err := validation.Struct(in); err != nil {
		return err
	}
	cur, err := s.st.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	upd := store.UserUpdate{Name: in.Name, Email: cur.Email, Role: cur.Role, Phone: in.Phone, Position: in.Position}
	if actor.IsAdmin() {
		if in.Email != "" {
			upd.Email = in.Email
		}
		if in.Role != "" {
			upd.Role = in.Role
		}
	}
	if actor.ID == id && upd.Role != cur.Role {
		return invalid("Cannot change your own role")
	}
	if err := s.st.UpdateUser(ctx, id, upd); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrUserExists
		}
		return err
	}
	s.audit(ctx, actor, meta, "update_user", fmt.Sprintf("Updated user: %d", id))
	return nil
}

type ProfileInput struct {
	Name       string  `json:"name" validate:"required,max=120"`
	Phone      *string `json:"phone" validate:"omitempty,max=40"`
	Position   *string `json:"position" validate:"omitempty,max=120"`
	ProfilePic *string `json:"profile_pic" validate:"omitempty,max=512"`
}

func (s *Service) UpdateProfile(ctx context.Context, actor models.Identity, meta models.RequestMeta, id int64, in ProfileInput) error {
	if !actor.IsAdmin() && actor.ID != id {
		return ErrForbidden
	}
	if err := validation.Struct(in); err != nil {
		return err
	}
	if err := s.st.UpdateProfile(ctx, id, store.ProfileUpdate{Name: in.Name, Phone: in.Phone, Position: in.Position, ProfilePic: in.ProfilePic}); err != nil {
		return err
	}
	s.audit(ctx, actor, meta, "update_profile", fmt.Sprintf("Updated profile for user: %d", id))
	return nil
}

// SetProfilePicture points id's profile picture at an already stored file.
func (s *Service) SetProfilePicture(ctx context.Context, actor models.Identity, meta models.RequestMeta, id int64, picPath string) error {
	if !actor.IsAdmin() && actor.ID != id {
		return ErrForbidden
	}
	cur, err := s.st.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	upd := store.ProfileUpdate{Name: cur.Name, Phone: cur.Phone, Position: cur.Position, ProfilePic: &picPath}
	if err := s.st.UpdateProfile(ctx, id, upd); err != nil {
		return err
	}
	details := "Updated profile picture"
	if actor.ID != id {
		details = fmt.Sprintf("Updated profile picture for user: %d", id)
	}
	s.audit(ctx, actor, meta, "update_profile_pic", details)
	return nil
}

// ChangePassword sets a new password for id and signs the user out
// everywhere.
func (s *Service) ChangePassword(ctx context.Context, actor models.Identity, meta models.RequestMeta, id int64, newPassword string) error {
	if err := s.ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hashing.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.st.UpdateUserPasswordHash(ctx, id, hash); err != nil {
		return err
	}
	revoked, err := s.sessions.RevokeUser(ctx, id)
	if err != nil {
		return err
	}
	s.audit(ctx, actor, meta, "change_user_password", fmt.Sprintf("Changed password for user: %d (%d sessions ended)", id, revoked))
	return nil
}

func (s *Service) SetUserStatus(ctx context.Context, actor models.Identity, meta models.RequestMeta, id int64, active bool) error {
	if actor.ID == id {
		return ErrSelfDeactivate
	}
	if err := s.st.SetUserActive(ctx, id, active); err != nil {
		return err
	}
	statusText := "activated"
	if !active {
		statusText = "deactivated"
		if _, err := s.sessions.RevokeUser(ctx, id); err != nil {
			return err
		}
	}
	s.audit(ctx, actor, meta, "update_user_status", fmt.Sprintf("%s user: %d", statusText, id))
	return nil
}

func (s *Service) DeleteUser(ctx context.Context, actor models.Identity, meta models.RequestMeta, id int64) error {
	if actor.ID == id {
		return ErrSelfDelete
	}
	if err := s.st.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, actor, meta, "delete_user", fmt.Sprintf("Deleted user: %d", id))
	return nil
}

// audit appends to the activity log. A failed write is logged and does not
// fail the operation that triggered it.
func (s *Service) audit(ctx context.Context, actor models.Identity, meta models.RequestMeta, action, details string) {
	entry := models.ActivityLogEntry{UserID: &actor.ID, UserName: actor.Name, Action: action, Details: &details}
	if meta.IP != "" {
		ip := meta.IP
		entry.IPAddress = &ip
	}
	if meta.UserAgent != "" {
		ua := meta.UserAgent
		entry.UserAgent = &ua
	}
	if err := s.st.InsertActivity(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("action", action).Msg("activity log write failed")
	}
}
