package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"leadledger/internal/config"
	"leadledger/internal/model"
	"leadledger/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserService 用户注册、登录与角色管理
// 注册赠送的积分和用户创建在同一事务内，不会出现有号无积分的半成品
type UserService struct {
	db           *gorm.DB
	cfg          *config.Config
	creditSvc    *CreditService
	userRepo     *repository.UserRepository
	settingsRepo *repository.SettingsRepository
}

func NewUserService(db *gorm.DB, cfg *config.Config, creditSvc *CreditService) *UserService {
	return &UserService{
		db:           db,
		cfg:          cfg,
		creditSvc:    creditSvc,
		userRepo:     repository.NewUserRepository(db),
		settingsRepo: repository.NewSettingsRepository(db),
	}
}

type SignUpRequest struct {
	Email    string
	Password string
	Name     string
}

// SignUp 注册新用户并发放注册赠送积分
func (s *UserService) SignUp(ctx context.Context, req *SignUpRequest) (*model.User, error) {
	if len(req.Password) < 8 {
		return nil, errors.New("密码至少8位")
	}

	existing, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("密码加密失败: %w", err)
	}

	settings, err := s.settingsRepo.GetOrCreate(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取定价配置失败: %w", err)
	}

	user := &model.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Role:         model.RoleUser,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.Create(ctx, tx, user); err != nil {
			return fmt.Errorf("创建用户失败: %w", err)
		}

		if settings.FreeCreditsOnSignup > 0 {
			description := fmt.Sprintf("Free credits on signup (%d credits)", settings.FreeCreditsOnSignup)
			trans, txErr := s.creditSvc.CreditTx(ctx, tx, user.ID, settings.FreeCreditsOnSignup,
				model.TransactionKindFreeGift, description, nil)
			if txErr != nil {
				return txErr
			}
			if err := s.creditSvc.appendCreditEvent(ctx, tx, "credit.added", trans); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		// 并发注册同一邮箱时后到者撞唯一索引，翻译成已注册
		if existing, qErr := s.userRepo.GetByEmail(ctx, req.Email); qErr == nil && existing != nil {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	log.Printf("用户注册成功: userID=%d, email=%s, 赠送积分=%d",
		user.ID, user.Email, settings.FreeCreditsOnSignup)

	return user, nil
}

// Login 校验密码并签发 JWT
func (s *UserService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("查询用户失败: %w", err)
	}
	if user == nil {
		return "", nil, ErrInvalidCredential
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredential
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   strconv.FormatInt(user.ID, 10),
		"role":  string(user.Role),
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Duration(s.cfg.Auth.TokenExpireHours) * time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Auth.JWTSecret))
	if err != nil {
		return "", nil, fmt.Errorf("签发令牌失败: %w", err)
	}

	log.Printf("用户登录成功: userID=%d, email=%s", user.ID, user.Email)

	return token, user, nil
}

type Profile struct {
	User     *model.User `json:"user"`
	Balance  int64       `json:"balance"`
	Consumed int64       `json:"consumed"`
}

// GetProfile 用户信息加余额、累计消耗
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	balance, err := s.creditSvc.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	consumed, err := s.creditSvc.GetConsumed(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Profile{User: user, Balance: balance, Consumed: consumed}, nil
}

// UpdateRole 变更用户角色（管理端操作）
// 升为 ADMIN 即获得不限量额度，必须留日志
func (s *UserService) UpdateRole(ctx context.Context, userID int64, role model.Role) error {
	if !role.Valid() {
		return errors.New("角色不合法")
	}

	err := s.userRepo.UpdateRole(ctx, userID, role)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return ErrAccountNotFound
		}
		return err
	}

	log.Printf("角色变更: userID=%d, role=%s", userID, role)
	return nil
}

func (s *UserService) ListUsers(ctx context.Context, page, pageSize int) ([]*model.User, int64, error) {
	return s.userRepo.List(ctx, page, pageSize)
}
