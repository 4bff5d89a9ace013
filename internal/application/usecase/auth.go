package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/waste3d/courseplatform-api/internal/domain"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/security"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RegisterInput struct {
	Email    string `validate:"required,email,max=255"`
	Password string `validate:"required,min=6,max=72"`
	Name     string `validate:"required,min=2,max=100"`
}

type Session struct {
	Token     string
	ExpiresAt time.Time
	User      domain.PublicUser
}

type AuthUseCase struct {
	users        UserStore
	settings     SettingStore
	hasher       PasswordHasher
	tokenManager *security.TokenManager
	validate     *validator.Validate
	log          *zap.Logger
	now          func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// dummyPassword is only ever compared against, so unknown emails cost a full hash check.
const dummyPassword = "courseplatform-dummy-password"

func NewAuthUseCase(
	us UserStore,
	ss SettingStore,
	h PasswordHasher,
	tm *security.TokenManager,
	log *zap.Logger,
) *AuthUseCase {
	return &AuthUseCase{
		users:        us,
		settings:     ss,
		hasher:       h,
		tokenManager: tm,
		validate:     validator.New(),
		log:          log,
		now:          time.Now,
	}
}

func (uc *AuthUseCase) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = domain.NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := uc.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	enabled, err := uc.RegistrationEnabled(ctx)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, domain.ErrRegistrationDisabled
	}

	hash, err := uc.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		IsActive:     true,
	}
	if err := uc.users.Create(ctx, user); err != nil {
		return nil, err
	}
	uc.log.Info("user registered", zap.String("user_id", user.ID.String()))

	return uc.session(user)
}

// Login never tells an unknown email apart from a wrong password.
func (uc *AuthUseCase) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := uc.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		_ = uc.hasher.Compare(uc.dummy(), password)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := uc.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, domain.ErrAccountDisabled
	}

	now := uc.now()
	if err := uc.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		// вход всё равно состоялся
		uc.log.Warn("update last login", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
	user.LastLoginAt = &now

	return uc.session(user)
}

// Authenticate turns a session token into the caller identity. The account is
// reloaded so deactivation and role changes apply to tokens already issued.
func (uc *AuthUseCase) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := uc.tokenManager.VerifySession(token)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.ErrTokenMalformed
	}

	user, err := uc.users.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, domain.ErrAccountDisabled
	}
	return &Principal{UserID: user.ID, Email: user.Email, Role: user.Role}, nil
}

func (uc *AuthUseCase) Me(ctx context.Context, p Principal) (*domain.PublicUser, error) {
	user, err := uc.users.GetByID(ctx, p.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, domain.ErrAccountDisabled
	}
	pub := user.Public()
	return &pub, nil
}

func (uc *AuthUseCase) RegistrationEnabled(ctx context.Context) (bool, error) {
	v, ok, err := uc.settings.Get(ctx, domain.SettingRegistrationEnabled)
	if err != nil || !ok {
		return true, err
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		uc.log.Warn("bad registration setting", zap.String("value", v))
		return true, nil
	}
	return enabled, nil
}

func (uc *AuthUseCase) dummy() string {
	uc.dummyOnce.Do(func() {
		hash, err := uc.hasher.Hash(dummyPassword)
		if err != nil {
			uc.log.Error("hash dummy password", zap.Error(err))
		}
		uc.dummyHash = hash
	})
	return uc.dummyHash
}

func (uc *AuthUseCase) session(user *domain.User) (*Session, error) {
	token, exp, err := uc.tokenManager.IssueSession(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: user.Public()}, nil
}

func RequireRole(p Principal, role domain.Role) error {
	if p.Role != role {
		return domain.ErrForbidden
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.Invalid("%v", err)
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return domain.Invalid("%s is required", field)
	case "email":
		return domain.Invalid("%s is not a valid email address", field)
	case "min":
		return domain.Invalid("%s must be at least %s characters", field, fe.Param())
	case "max":
		return domain.Invalid("%s must be at most %s characters", field, fe.Param())
	default:
		return domain.Invalid("%s is invalid", field)
	}
}
