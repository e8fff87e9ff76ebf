package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"bugbot/backend/config"
	"bugbot/backend/internal/dto"
	"bugbot/backend/internal/model"
	"bugbot/backend/internal/repository"
	"bugbot/backend/pkg/jwt"
)

func newAuthTestEnv(t *testing.T) (AuthService, *repository.Repository) {
	t.Helper()
	repo := newTestRepo()
	jwtMgr := jwt.NewManager(&config.AuthConfig{
		JWTSecret:               "test-secret-key-0123456789",
		AccessTokenTTL:          15 * time.Minute,
		RefreshTokenTTLDefault:  24 * time.Hour,
		RefreshTokenTTLRemember: 7 * 24 * time.Hour,
	})
	return NewAuthService(repo, jwtMgr, nil, zap.NewNop()), repo
}

func seedUser(t *testing.T, repo *repository.Repository, username, password, role string) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("生成密码哈希失败: %v", err)
	}
	user := &model.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		SlackUserID:  "U-" + username,
		IsActive:     true,
	}
	if err := repo.User.Create(context.Background(), user); err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}
	return user
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc, repo := newAuthTestEnv(t)
	user := seedUser(t, repo, "alice", "secret123", model.UserRoleAdmin)

	t.Run("正确凭证返回令牌对", func(t *testing.T) {
		tokens, err := svc.Login(ctx, &dto.LoginRequest{Username: "alice", Password: "secret123"})
		if err != nil {
			t.Fatalf("登录失败: %v", err)
		}
		if tokens.AccessToken == "" || tokens.RefreshToken == "" {
			t.Error("期望非空令牌对")
		}
		if tokens.UserID != user.UserID || tokens.Role != model.UserRoleAdmin {
			t.Errorf("期望 %s/admin，得到 %s/%s", user.UserID, tokens.UserID, tokens.Role)
		}
	})

	t.Run("密码错误", func(t *testing.T) {
		_, err := svc.Login(ctx, &dto.LoginRequest{Username: "alice", Password: "wrong"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("期望 ErrInvalidCredentials，得到 %v", err)
		}
	})

	t.Run("用户不存在时返回同一错误", func(t *testing.T) {
		_, err := svc.Login(ctx, &dto.LoginRequest{Username: "nobody", Password: "secret123"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("期望 ErrInvalidCredentials，得到 %v", err)
		}
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	svc, repo := newAuthTestEnv(t)
	seedUser(t, repo, "alice", "secret123", model.UserRoleOperator)

	tokens, err := svc.Login(ctx, &dto.LoginRequest{Username: "alice", Password: "secret123"})
	if err != nil {
		t.Fatalf("登录失败: %v", err)
	}

	t.Run("refresh换发新令牌对", func(t *testing.T) {
		renewed, err := svc.Refresh(ctx, &dto.RefreshRequest{RefreshToken: tokens.RefreshToken})
		if err != nil {
			t.Fatalf("刷新失败: %v", err)
		}
		if renewed.AccessToken == "" || renewed.RefreshToken == "" {
			t.Error("期望非空令牌对")
		}
	})

	t.Run("access token不可用于刷新", func(t *testing.T) {
		_, err := svc.Refresh(ctx, &dto.RefreshRequest{RefreshToken: tokens.AccessToken})
		if !errors.Is(err, ErrInvalidRefresh) {
			t.Errorf("期望 ErrInvalidRefresh，得到 %v", err)
		}
	})

	t.Run("伪造令牌拒绝", func(t *testing.T) {
		_, err := svc.Refresh(ctx, &dto.RefreshRequest{RefreshToken: "not-a-token"})
		if !errors.Is(err, ErrInvalidRefresh) {
			t.Errorf("期望 ErrInvalidRefresh，得到 %v", err)
		}
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	svc, repo := newAuthTestEnv(t)
	seedUser(t, repo, "alice", "secret123", model.UserRoleViewer)

	tokens, _ := svc.Login(ctx, &dto.LoginRequest{Username: "alice", Password: "secret123"})

	// rdb 为 nil 时登出仅校验令牌
	if err := svc.Logout(ctx, tokens.RefreshToken); err != nil {
		t.Errorf("登出失败: %v", err)
	}
	if err := svc.Logout(ctx, "not-a-token"); !errors.Is(err, ErrInvalidRefresh) {
		t.Errorf("期望 ErrInvalidRefresh，得到 %v", err)
	}
}
