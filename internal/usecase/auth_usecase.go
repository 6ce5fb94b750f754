package usecase

import (
	"context"
	"errors"
	"strings"

	"consultation-booking/config"
	"consultation-booking/internal/delivery/dto"
	"consultation-booking/internal/delivery/http/middleware"
	"consultation-booking/internal/domain/entity"
	"consultation-booking/internal/service"
	"consultation-booking/pkg/jwt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var ErrNotAuthenticated = errors.New("operator not found in context")

type AuthUsecase interface {
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error)
	Logout(ctx context.Context) error
	GetCurrentAdmin(ctx context.Context) (*dto.AdminResponse, error)
}

type authUsecase struct {
	log          *logrus.Logger
	admin        config.AdminConfig
	jwtService   *jwt.JWTService
	redisClient  *redis.Client
	auditService service.AuditService
}

func NewAuthUsecase(
	log *logrus.Logger,
	admin config.AdminConfig,
	jwtService *jwt.JWTService,
	redisClient *redis.Client,
	auditService service.AuditService,
) AuthUsecase {
	return &authUsecase{
		log:          log,
		admin:        admin,
		jwtService:   jwtService,
		redisClient:  redisClient,
		auditService: auditService,
	}
}

func (u *authUsecase) Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error) {
	if u.admin.Email == "" || u.admin.PasswordHash == "" {
		u.log.Warnf("Login attempted but no operator account is configured")
		return nil, ErrInvalidCredentials
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	// Always compare the hash so both failure paths take the same time
	passwordErr := bcrypt.CompareHashAndPassword([]byte(u.admin.PasswordHash), []byte(req.Password))
	if email != u.admin.Email || passwordErr != nil {
		return nil, ErrInvalidCredentials
	}

	accessToken, tokenID, err := u.jwtService.GenerateAccessToken(email)
	if err != nil {
		u.log.Warnf("Failed to generate access token: %+v", err)
		return nil, err
	}

	// Store token in Redis; Authenticate rejects tokens without a key
	if err := u.redisClient.Set(ctx, jwt.AccessTokenKey(email, tokenID), "valid", u.jwtService.GetAccessExpiry()).Err(); err != nil {
		u.log.Warnf("Failed to store access token: %+v", err)
		return nil, err
	}

	u.auditService.Record(ctx, nil, nil, email, entity.AuditActionAdminLogin, nil)

	return &dto.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(u.jwtService.GetAccessExpiry().Seconds()),
	}, nil
}

func (u *authUsecase) Logout(ctx context.Context) error {
	email, ok := middleware.GetAdminEmailFromContext(ctx)
	if !ok {
		return ErrNotAuthenticated
	}
	tokenID, ok := middleware.GetTokenIDFromContext(ctx)
	if !ok {
		return ErrNotAuthenticated
	}

	if err := u.redisClient.Del(ctx, jwt.AccessTokenKey(email, tokenID)).Err(); err != nil {
		u.log.Warnf("Failed to revoke access token: %+v", err)
		return err
	}

	u.auditService.Record(ctx, nil, nil, email, entity.AuditActionAdminLogout, nil)
	return nil
}

func (u *authUsecase) GetCurrentAdmin(ctx context.Context) (*dto.AdminResponse, error) {
	email, ok := middleware.GetAdminEmailFromContext(ctx)
	if !ok {
		return nil, ErrNotAuthenticated
	}
	return &dto.AdminResponse{Email: email}, nil
}
