package service

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadledger/internal/model"
)

func newUserService(t *testing.T) (*UserService, *CreditService, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	creditSvc := NewCreditService(env.db, env.rdb, env.cfg)
	return NewUserService(env.db, env.cfg, creditSvc), creditSvc, env
}

func TestUserService_SignUp(t *testing.T) {
	ctx := context.Background()

	t.Run("GrantsFreeCredits", func(t *testing.T) {
		svc, creditSvc, env := newUserService(t)

		user, err := svc.SignUp(ctx, &SignUpRequest{
			Email:    "alice@example.com",
			Password: "motdepasse",
			Name:     "Alice",
		})
		require.NoError(t, err)
		assert.Equal(t, model.RoleUser, user.Role)
		assert.NotEqual(t, "motdepasse", user.PasswordHash)

		// 默认定价赠送 15 积分，注册即到账
		balance, err := creditSvc.GetBalance(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, model.DefaultCreditSettings().FreeCreditsOnSignup, balance)

		var trans model.CreditTransaction
		require.NoError(t, env.db.Where("user_id = ?", user.ID).First(&trans).Error)
		assert.Equal(t, model.TransactionKindFreeGift, trans.Kind)
	})

	t.Run("NoGrantWhenDisabled", func(t *testing.T) {
		svc, creditSvc, env := newUserService(t)

		// 赠送额度调成 0 后注册不再送积分
		require.NoError(t, env.db.Create(model.DefaultCreditSettings()).Error)
		require.NoError(t, env.db.Model(&model.CreditSettings{}).
			Where("id = ?", model.SettingsID).
			Update("free_credits_on_signup", 0).Error)

		user, err := svc.SignUp(ctx, &SignUpRequest{
			Email:    "bob@example.com",
			Password: "motdepasse",
			Name:     "Bob",
		})
		require.NoError(t, err)

		balance, err := creditSvc.GetBalance(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)
		assert.Equal(t, int64(0), countTransactions(t, env.db, user.ID))
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		svc, _, _ := newUserService(t)

		_, err := svc.SignUp(ctx, &SignUpRequest{
			Email: "alice@example.com", Password: "motdepasse", Name: "Alice",
		})
		require.NoError(t, err)

		_, err = svc.SignUp(ctx, &SignUpRequest{
			Email: "alice@example.com", Password: "motdepasse", Name: "Imposter",
		})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("ShortPassword", func(t *testing.T) {
		svc, _, _ := newUserService(t)

		_, err := svc.SignUp(ctx, &SignUpRequest{
			Email: "alice@example.com", Password: "court", Name: "Alice",
		})
		assert.Error(t, err)
	})
}

func TestUserService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		svc, _, env := newUserService(t)

		user, err := svc.SignUp(ctx, &SignUpRequest{
			Email: "alice@example.com", Password: "motdepasse", Name: "Alice",
		})
		require.NoError(t, err)

		tokenStr, loggedIn, err := svc.Login(ctx, "alice@example.com", "motdepasse")
		require.NoError(t, err)
		assert.Equal(t, user.ID, loggedIn.ID)

		// 令牌可用配置的密钥解开，sub 指向该用户
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return []byte(env.cfg.Auth.JWTSecret), nil
		})
		require.NoError(t, err)
		require.True(t, token.Valid)

		claims := token.Claims.(jwt.MapClaims)
		assert.Equal(t, "1", claims["sub"])
		assert.Equal(t, string(model.RoleUser), claims["role"])
	})

	t.Run("WrongPassword", func(t *testing.T) {
		svc, _, _ := newUserService(t)

		_, err := svc.SignUp(ctx, &SignUpRequest{
			Email: "alice@example.com", Password: "motdepasse", Name: "Alice",
		})
		require.NoError(t, err)

		_, _, err = svc.Login(ctx, "alice@example.com", "mauvais-mdp")
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		svc, _, _ := newUserService(t)

		_, _, err := svc.Login(ctx, "nobody@example.com", "motdepasse")
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})
}

func TestUserService_GetProfile(t *testing.T) {
	ctx := context.Background()
	svc, creditSvc, _ := newUserService(t)

	user, err := svc.SignUp(ctx, &SignUpRequest{
		Email: "alice@example.com", Password: "motdepasse", Name: "Alice",
	})
	require.NoError(t, err)

	_, err = creditSvc.UseCredits(ctx, &UseCreditsRequest{UserID: user.ID, Amount: 5})
	require.NoError(t, err)

	profile, err := svc.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), profile.Balance)
	assert.Equal(t, int64(5), profile.Consumed)
	assert.Equal(t, user.Email, profile.User.Email)
}

func TestUserService_UpdateRole(t *testing.T) {
	ctx := context.Background()

	t.Run("PromoteToAdmin", func(t *testing.T) {
		svc, creditSvc, _ := newUserService(t)

		user, err := svc.SignUp(ctx, &SignUpRequest{
			Email: "alice@example.com", Password: "motdepasse", Name: "Alice",
		})
		require.NoError(t, err)

		require.NoError(t, svc.UpdateRole(ctx, user.ID, model.RoleAdmin))

		// 升为管理员即切换到不限量额度
		balance, err := creditSvc.GetBalance(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, model.BalanceUnlimited, balance)
	})

	t.Run("InvalidRole", func(t *testing.T) {
		svc, _, env := newUserService(t)
		user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

		assert.Error(t, svc.UpdateRole(ctx, user.ID, model.Role("SUPERUSER")))
	})

	t.Run("UnknownUser", func(t *testing.T) {
		svc, _, _ := newUserService(t)

		assert.ErrorIs(t, svc.UpdateRole(ctx, 9999, model.RoleAdmin), ErrAccountNotFound)
	})
}
