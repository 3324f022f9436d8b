package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadledger/internal/model"
)

func newCreditService(t *testing.T) (*CreditService, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return NewCreditService(env.db, env.rdb, env.cfg), env
}

func TestCreditService_AddCredits(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		svc, env := newCreditService(t)
		user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

		trans, err := svc.AddCredits(ctx, &AddCreditsRequest{
			UserID:      user.ID,
			Amount:      15,
			Kind:        model.TransactionKindFreeGift,
			Description: "Free credits on signup",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, trans.TransactionNo)
		assert.Equal(t, int64(15), trans.Amount)
		assert.Equal(t, model.TransactionKindFreeGift, trans.Kind)

		balance, err := svc.GetBalance(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(15), balance)

		// 入账和事件入队在同一事务
		assert.Equal(t, int64(1), countOutbox(t, env.db))
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		svc, env := newCreditService(t)
		user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

		for _, amount := range []int64{0, -5} {
			_, err := svc.AddCredits(ctx, &AddCreditsRequest{
				UserID: user.ID,
				Amount: amount,
				Kind:   model.TransactionKindFreeGift,
			})
			assert.ErrorIs(t, err, ErrInvalidAmount)
		}
		assert.Equal(t, int64(0), countTransactions(t, env.db, user.ID))
	})

	t.Run("InvalidKind", func(t *testing.T) {
		svc, env := newCreditService(t)
		user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

		// USAGE 是出账类型，不允许从入账入口写
		for _, kind := range []string{model.TransactionKindUsage, "BONUS", ""} {
			_, err := svc.AddCredits(ctx, &AddCreditsRequest{
				UserID: user.ID,
				Amount: 10,
				Kind:   kind,
			})
			assert.ErrorIs(t, err, ErrInvalidKind)
		}
	})

	t.Run("UserNotFound", func(t *testing.T) {
		svc, _ := newCreditService(t)

		_, err := svc.AddCredits(ctx, &AddCreditsRequest{
			UserID: 9999,
			Amount: 10,
			Kind:   model.TransactionKindFreeGift,
		})
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestCreditService_GetBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyLedger", func(t *testing.T) {
		svc, env := newCreditService(t)
		user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

		balance, err := svc.GetBalance(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)
	})

	t.Run("DerivedFromEntries", func(t *testing.T) {
		svc, env := newCreditService(t)
		user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

		_, err := svc.AddCredits(ctx, &AddCreditsRequest{
			UserID: user.ID, Amount: 100, Kind: model.TransactionKindPurchase,
		})
		require.NoError(t, err)

		_, err = svc.UseCredits(ctx, &UseCreditsRequest{UserID: user.ID, Amount: 30})
		require.NoError(t, err)

		balance, err := svc.GetBalance(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(70), balance)
	})

	t.Run("UnlimitedSentinel", func(t *testing.T) {
		svc, env := newCreditService(t)
		admin := seedUser(t, env.db, "admin@example.com", model.RoleAdmin)

		balance, err := svc.GetBalance(ctx, admin.ID)
		require.NoError(t, err)
		assert.Equal(t, model.BalanceUnlimited, balance)
	})
}

func TestCreditService_UseCredits(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		svc, env := newCreditService(t)
		user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

		_, err := svc.AddCredits(ctx, &AddCreditsRequest{
			UserID: user.ID, Amount: 15, Kind: model.TransactionKindFreeGift,
		})
		require.NoError(t, err)

		result, err := svc.UseCredits(ctx, &UseCreditsRequest{
			UserID:      user.ID,
			Amount:      5,
			Description: "Prospect search",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, result.TransactionNo)
		assert.Equal(t, int64(5), result.Charged)
		assert.Equal(t, int64(10), result.Balance)

		// 出账流水是负数
		var trans model.CreditTransaction
		require.NoError(t, env.db.Where("transaction_no = ?", result.TransactionNo).First(&trans).Error)
		assert.Equal(t, int64(-5), trans.Amount)
		assert.Equal(t, model.TransactionKindUsage, trans.Kind)
	})

	t.Run("InsufficientCredit", func(t *testing.T) {
		svc, env := newCreditService(t)
		user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

		_, err := svc.AddCredits(ctx, &AddCreditsRequest{
			UserID: user.ID, Amount: 15, Kind: model.TransactionKindFreeGift,
		})
		require.NoError(t, err)

		_, err = svc.UseCredits(ctx, &UseCreditsRequest{UserID: user.ID, Amount: 20})
		assert.ErrorIs(t, err, ErrInsufficientCredit)

		// 失败的扣费不留任何痕迹
		balance, err := svc.GetBalance(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(15), balance)
		assert.Equal(t, int64(1), countTransactions(t, env.db, user.ID))
	})

	t.Run("ExactBalance", func(t *testing.T) {
		svc, env := newCreditService(t)
		user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

		_, err := svc.AddCredits(ctx, &AddCreditsRequest{
			UserID: user.ID, Amount: 15, Kind: model.TransactionKindFreeGift,
		})
		require.NoError(t, err)

		// 余额恰好等于扣费金额，允许扣到 0
		result, err := svc.UseCredits(ctx, &UseCreditsRequest{UserID: user.ID, Amount: 15})
		require.NoError(t, err)
		assert.Equal(t, int64(0), result.Balance)
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		svc, env := newCreditService(t)
		user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

		for _, amount := range []int64{0, -1} {
			_, err := svc.UseCredits(ctx, &UseCreditsRequest{UserID: user.ID, Amount: amount})
			assert.ErrorIs(t, err, ErrInvalidAmount)
		}
	})

	t.Run("UnlimitedAccount", func(t *testing.T) {
		svc, env := newCreditService(t)
		admin := seedUser(t, env.db, "admin@example.com", model.RoleAdmin)

		// 不限量账户随便扣，不写流水不计消耗
		result, err := svc.UseCredits(ctx, &UseCreditsRequest{UserID: admin.ID, Amount: 10000})
		require.NoError(t, err)
		assert.Empty(t, result.TransactionNo)
		assert.Equal(t, int64(0), result.Charged)
		assert.Equal(t, model.BalanceUnlimited, result.Balance)
		assert.Equal(t, int64(0), countTransactions(t, env.db, admin.ID))

		consumed, err := svc.GetConsumed(ctx, admin.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), consumed)
	})
}

// 并发扣费只允许一个成功：两笔各 20，余额只有 30
func TestCreditService_UseCredits_Concurrent(t *testing.T) {
	ctx := context.Background()
	svc, env := newCreditService(t)
	user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

	_, err := svc.AddCredits(ctx, &AddCreditsRequest{
		UserID: user.ID, Amount: 30, Kind: model.TransactionKindPurchase,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = svc.UseCredits(ctx, &UseCreditsRequest{UserID: user.ID, Amount: 20})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientCredit)
		}
	}
	assert.Equal(t, 1, succeeded)

	balance, err := svc.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestCreditService_ApplyPaymentOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("FirstApply", func(t *testing.T) {
		svc, env := newCreditService(t)
		user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

		result, err := svc.ApplyPaymentOnce(ctx, &ApplyPaymentRequest{
			UserID:         user.ID,
			Credits:        50,
			Description:    "Credit purchase via Stripe",
			ReconcileToken: "cs_test_001",
		})
		require.NoError(t, err)
		assert.False(t, result.AlreadyApplied)
		assert.Equal(t, model.TransactionKindPurchase, result.Transaction.Kind)
		require.NotNil(t, result.Transaction.ReconcileToken)
		assert.Equal(t, "cs_test_001", *result.Transaction.ReconcileToken)

		balance, err := svc.GetBalance(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(50), balance)
	})

	t.Run("DuplicateToken", func(t *testing.T) {
		svc, env := newCreditService(t)
		user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

		first, err := svc.ApplyPaymentOnce(ctx, &ApplyPaymentRequest{
			UserID: user.ID, Credits: 50, ReconcileToken: "cs_test_001",
		})
		require.NoError(t, err)

		// 同一凭证重复入账：返回已有流水，不再记账
		for i := 0; i < 3; i++ {
			again, err := svc.ApplyPaymentOnce(ctx, &ApplyPaymentRequest{
				UserID: user.ID, Credits: 50, ReconcileToken: "cs_test_001",
			})
			require.NoError(t, err)
			assert.True(t, again.AlreadyApplied)
			assert.Equal(t, first.Transaction.TransactionNo, again.Transaction.TransactionNo)
		}

		assert.Equal(t, int64(1), countTransactions(t, env.db, user.ID))

		balance, err := svc.GetBalance(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(50), balance)
	})

	t.Run("DistinctTokens", func(t *testing.T) {
		svc, env := newCreditService(t)
		user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

		for _, token := range []string{"cs_test_001", "cs_test_002"} {
			_, err := svc.ApplyPaymentOnce(ctx, &ApplyPaymentRequest{
				UserID: user.ID, Credits: 50, ReconcileToken: token,
			})
			require.NoError(t, err)
		}

		balance, err := svc.GetBalance(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(100), balance)
	})

	t.Run("EmptyToken", func(t *testing.T) {
		svc, env := newCreditService(t)
		user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

		_, err := svc.ApplyPaymentOnce(ctx, &ApplyPaymentRequest{
			UserID: user.ID, Credits: 50, ReconcileToken: "",
		})
		assert.ErrorIs(t, err, ErrEmptyToken)
	})

	t.Run("InvalidCredits", func(t *testing.T) {
		svc, env := newCreditService(t)
		user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

		_, err := svc.ApplyPaymentOnce(ctx, &ApplyPaymentRequest{
			UserID: user.ID, Credits: 0, ReconcileToken: "cs_test_001",
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

// webhook 和主动核验并发携带同一凭证，只允许入账一次
func TestCreditService_ApplyPaymentOnce_Concurrent(t *testing.T) {
	ctx := context.Background()
	svc, env := newCreditService(t)
	user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

	const workers = 4
	var wg sync.WaitGroup
	results := make([]*ApplyPaymentResult, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = svc.ApplyPaymentOnce(ctx, &ApplyPaymentRequest{
				UserID: user.ID, Credits: 50, ReconcileToken: "cs_test_race",
			})
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		if !results[i].AlreadyApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, int64(1), countTransactions(t, env.db, user.ID))

	balance, err := svc.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)
}

func TestCreditService_GetConsumed(t *testing.T) {
	ctx := context.Background()
	svc, env := newCreditService(t)
	user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

	_, err := svc.AddCredits(ctx, &AddCreditsRequest{
		UserID: user.ID, Amount: 100, Kind: model.TransactionKindPurchase,
	})
	require.NoError(t, err)

	// 两笔消耗，一笔退还
	_, err = svc.UseCredits(ctx, &UseCreditsRequest{UserID: user.ID, Amount: 10})
	require.NoError(t, err)
	_, err = svc.UseCredits(ctx, &UseCreditsRequest{UserID: user.ID, Amount: 5})
	require.NoError(t, err)
	_, err = svc.AddCredits(ctx, &AddCreditsRequest{
		UserID: user.ID, Amount: 5, Kind: model.TransactionKindRefund,
	})
	require.NoError(t, err)

	// 累计消耗只看 USAGE，退还不抵扣
	consumed, err := svc.GetConsumed(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), consumed)

	balance, err := svc.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), balance)
}

func TestCreditService_GetTransactions(t *testing.T) {
	ctx := context.Background()
	svc, env := newCreditService(t)
	user := seedUser(t, env.db, "alice@example.com", model.RoleUser)

	for i := 0; i < 3; i++ {
		_, err := svc.AddCredits(ctx, &AddCreditsRequest{
			UserID: user.ID, Amount: 10, Kind: model.TransactionKindPurchase,
		})
		require.NoError(t, err)
	}

	list, total, err := svc.GetTransactions(ctx, user.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 2)
	// 新流水在前
	assert.Greater(t, list[0].ID, list[1].ID)

	list, _, err = svc.GetTransactions(ctx, user.ID, 2, 2)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
