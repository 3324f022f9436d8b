package service

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"leadledger/internal/config"
	"leadledger/internal/infrastructure/database"
	"leadledger/internal/model"
)

// testEnv 服务层测试环境：内存 sqlite + miniredis
type testEnv struct {
	db  *gorm.DB
	rdb *redis.Client
	cfg *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库必须绑定单连接，多连接会各自看到一个空库
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return &testEnv{db: db, rdb: rdb, cfg: newTestConfig()}
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Brokers: []string{"127.0.0.1:9092"},
			Topic: config.KafkaTopicConfig{
				CreditEvents: "credit_events",
				SearchEvents: "search_events",
			},
		},
		Stripe: config.StripeConfig{
			SecretKey:     "sk_test_leadledger",
			WebhookSecret: "whsec_test_leadledger",
			SuccessURL:    "https://app.example.com/checkout/success",
			CancelURL:     "https://app.example.com/checkout/cancel",
		},
		Auth: config.AuthConfig{
			JWTSecret:        "test-jwt-secret",
			TokenExpireHours: 72,
		},
		Business: config.BusinessConfig{
			CheckoutTimeoutMinutes: 30,
			MaxRetryCount:          3,
		},
	}
}

func seedUser(t *testing.T, db *gorm.DB, email string, role model.Role) *model.User {
	t.Helper()
	user := &model.User{
		Email:        email,
		PasswordHash: "not-a-real-hash",
		Name:         "测试用户",
		Role:         role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func countTransactions(t *testing.T, db *gorm.DB, userID int64) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&model.CreditTransaction{}).
		Where("user_id = ?", userID).Count(&count).Error)
	return count
}

func countOutbox(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&model.OutboxMessage{}).Count(&count).Error)
	return count
}
