package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/repository"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
)

type authTeacherRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Teacher, error)
}

type authTeacherSeeder interface {
	Seed(ctx context.Context, teachers []models.Teacher) (int, error)
}

type authParentRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Parent, error)
	Create(ctx context.Context, parent models.Parent) error
}

// AuthConfig configures token issuance and the admin account.
type AuthConfig struct {
	Secret            string
	Issuer            string
	AccessTokenExpiry time.Duration
	AdminID           string
	AdminName         string
	AdminEmail        string
	AdminPassword     string
	AdminPasswordHash string
}

// AuthService authenticates admins, teachers and parents.
type AuthService struct {
	teachers  authTeacherRepository
	parents   authParentRepository
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	adminHash []byte
	now       func() time.Time
}

// NewAuthService constructs an AuthService. When no admin hash is configured
// the plain admin password is hashed once here.
func NewAuthService(teachers authTeacherRepository, parents authParentRepository, validate *validator.Validate, logger *zap.Logger, config AuthConfig) (*AuthService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 24 * time.Hour
	}
	hash := []byte(config.AdminPasswordHash)
	if len(hash) == 0 && config.AdminPassword != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(config.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
	}
	return &AuthService{
		teachers:  teachers,
		parents:   parents,
		validator: validate,
		logger:    logger,
		config:    config,
		adminHash: hash,
		now:       time.Now,
	}, nil
}

// Login checks credentials against the admin account, then teachers, then
// parents, and issues an access token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}
	email := strings.TrimSpace(req.Email)

	actor, hash, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(hash) == 0 || bcrypt.CompareHashAndPassword(hash, []byte(req.Password)) != nil {
		s.logger.Info("login failed", zap.String("email", email))
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}
	return s.issue(actor)
}

func (s *AuthService) lookup(ctx context.Context, email string) (models.Actor, []byte, error) {
	if s.config.AdminEmail != "" && strings.EqualFold(email, s.config.AdminEmail) {
		return models.Actor{ID: s.config.AdminID, Name: s.config.AdminName, Email: s.config.AdminEmail, Role: models.RoleAdmin}, s.adminHash, nil
	}

	teacher, err := s.teachers.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return models.Actor{ID: teacher.ID, Name: teacher.Name, Email: teacher.Email, Role: models.RoleTeacher, Subject: teacher.Subject}, []byte(teacher.PasswordHash), nil
	case !errors.Is(err, repository.ErrNotFound):
		return models.Actor{}, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	parent, err := s.parents.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return models.Actor{ID: parent.ID, Name: parent.Name, Email: parent.Email, Role: models.RoleParent}, []byte(parent.PasswordHash), nil
	case errors.Is(err, repository.ErrNotFound):
		return models.Actor{}, nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	default:
		return models.Actor{}, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
}

// RegisterParent creates a parent account and logs it in.
func (s *AuthService) RegisterParent(ctx context.Context, req models.RegisterParentRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if strings.EqualFold(email, s.config.AdminEmail) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}
	if _, err := s.teachers.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	parent := models.Parent{
		ID:           "P" + uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.parents.Create(ctx, parent); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save parent")
	}
	s.logger.Info("parent registered", zap.String("parent_id", parent.ID))
	return s.issue(models.Actor{ID: parent.ID, Name: parent.Name, Email: parent.Email, Role: models.RoleParent})
}

func (s *AuthService) issue(actor models.Actor) (*models.LoginResponse, error) {
	now := s.now()
	claims := models.JWTClaims{
		UserID:  actor.ID,
		Role:    actor.Role,
		Name:    actor.Name,
		Email:   actor.Email,
		Subject: actor.Subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   actor.ID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenExpiry)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}
	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		User:        actor,
	}, nil
}

// HashPassword is used when seeding accounts.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// ValidateToken parses and verifies an access token.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// DemoTeachers is the staff loaded when SEED_DEMO_DATA is enabled.
var DemoTeachers = []models.Teacher{
	{ID: "T001", Name: "Sarah Williams", Email: "sarah.williams@tuition.com", Subject: "English", Phone: "+94 77 123 4567"},
	{ID: "T002", Name: "Kumar Raj", Email: "kumar.raj@tuition.com", Subject: "Tamil", Phone: "+94 71 234 5678"},
	{ID: "T003", Name: "David Chen", Email: "david.chen@tuition.com", Subject: "Mathematics", Phone: "+94 76 345 6789"},
	{ID: "T004", Name: "Nimal Perera", Email: "nimal.perera@tuition.com", Subject: "History", Phone: "+94 72 456 7890"},
	{ID: "T005", Name: "Dr. Samantha Silva", Email: "samantha.silva@tuition.com", Subject: "Science", Phone: "+94 75 567 8901"},
	{ID: "T006", Name: "Rajiv Fernando", Email: "rajiv.fernando@tuition.com", Subject: "Geography", Phone: "+94 78 678 9012"},
}

const demoTeacherPassword = "teacher123"

// SeedDemoTeachers inserts the demo teachers that are not stored yet.
func SeedDemoTeachers(ctx context.Context, repo authTeacherSeeder, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	hash, err := HashPassword(demoTeacherPassword)
	if err != nil {
		return 0, err
	}
	teachers := make([]models.Teacher, len(DemoTeachers))
	for i, t := range DemoTeachers {
		t.PasswordHash = hash
		teachers[i] = t
	}
	added, err := repo.Seed(ctx, teachers)
	if err != nil {
		return 0, err
	}
	logger.Info("demo teachers seeded", zap.Int("added", added))
	return added, nil
}
