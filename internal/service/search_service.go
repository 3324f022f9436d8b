package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"leadledger/internal/config"
	"leadledger/internal/infrastructure/lock"
	"leadledger/internal/model"
	"leadledger/internal/repository"
	"leadledger/internal/scraper"
	"leadledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ============================================================================
// 潜客搜索服务（计量计费编排）
// ============================================================================
//
// 一次搜索的计费协议：
//  1. 预检：余额连基础消耗都不够就直接拒绝，不浪费抓取资源
//  2. 执行抓取（耗时大头），得到实际结果数
//  3. 实际消耗 = 基础消耗 + 结果数 × 单条消耗
//  4. 按实际消耗扣费：扣费、落潜客、落批次记录在同一事务内
//  5. 终检扣费失败（预检后余额被并发消耗掉了）则整体回滚：
//     不扣积分、不保留任何结果，对外返回积分不足
//
// ============================================================================

type SearchService struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cfg          *config.Config
	creditSvc    *CreditService
	registry     *scraper.Registry
	userRepo     *repository.UserRepository
	settingsRepo *repository.SettingsRepository
	prospectRepo *repository.ProspectRepository
	searchRepo   *repository.SearchRepository
	outboxRepo   *repository.OutboxRepository
}

func NewSearchService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, creditSvc *CreditService, registry *scraper.Registry) *SearchService {
	return &SearchService{
		db:           db,
		redisClient:  redisClient,
		cfg:          cfg,
		creditSvc:    creditSvc,
		registry:     registry,
		userRepo:     repository.NewUserRepository(db),
		settingsRepo: repository.NewSettingsRepository(db),
		prospectRepo: repository.NewProspectRepository(db),
		searchRepo:   repository.NewSearchRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
	}
}

const (
	defaultMaxResults = 20
	maxMaxResults     = 50
)

type SearchRequest struct {
	UserID     int64
	Category   string
	City       string
	Source     string
	MaxResults int
}

type SearchResult struct {
	SearchNo       string            `json:"search_no"`
	Prospects      []*model.Prospect `json:"prospects"`
	ResultCount    int               `json:"result_count"`
	CreditsCharged int64             `json:"credits_charged"`
	Balance        int64             `json:"balance"`
}

// Search 执行一次计量搜索
func (s *SearchService) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req.Source == "" {
		req.Source = model.SourceAll
	}
	if req.MaxResults <= 0 {
		req.MaxResults = defaultMaxResults
	}
	if req.MaxResults > maxMaxResults {
		req.MaxResults = maxMaxResults
	}

	if !s.registry.Has(req.Source) {
		return nil, scraper.ErrUnknownSource
	}

	user, err := s.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}

	settings, err := s.settingsRepo.GetOrCreate(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取定价配置失败: %w", err)
	}

	// 抓取前的快速预检，只挡住明显付不起的请求
	// 真正的余额校验在扣费事务内完成
	if !user.Role.Unlimited() {
		balance, err := s.creditSvc.GetBalance(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		if balance < settings.CreditsPerSearch {
			return nil, ErrInsufficientCredit
		}
	}

	scraped, err := s.registry.Scrape(ctx, req.Source, req.Category, req.City, req.MaxResults)
	if err != nil {
		if err == scraper.ErrUnknownSource {
			return nil, err
		}
		return nil, fmt.Errorf("抓取失败: %w", err)
	}

	actualCost := settings.CreditsPerSearch + int64(len(scraped))*settings.CreditsPerResult
	searchNo := idgen.GenerateSearchNo()
	prospects := buildProspects(req.UserID, searchNo, scraped)

	record := &model.SearchRecord{
		SearchNo:    searchNo,
		UserID:      req.UserID,
		Category:    req.Category,
		City:        req.City,
		Source:      req.Source,
		MaxResults:  req.MaxResults,
		ResultCount: len(prospects),
	}

	result := &SearchResult{
		SearchNo:    searchNo,
		Prospects:   prospects,
		ResultCount: len(prospects),
	}

	if user.Role.Unlimited() {
		// 不限量账户不扣费，结果照常保留
		record.CreditsCharged = 0
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.prospectRepo.CreateBatch(ctx, tx, prospects); err != nil {
				return fmt.Errorf("保存潜客失败: %w", err)
			}
			if err := s.searchRepo.Create(ctx, tx, record); err != nil {
				return fmt.Errorf("保存搜索记录失败: %w", err)
			}
			return s.appendSearchEvent(ctx, tx, record)
		})
		if err != nil {
			return nil, err
		}
		result.CreditsCharged = 0
		result.Balance = model.BalanceUnlimited
	} else {
		description := fmt.Sprintf("Prospect search: %s in %s (%d results)", req.Category, req.City, len(prospects))

		creditLock := lock.NewCreditLock(s.redisClient, req.UserID, uuid.NewString())
		err = creditLock.Lock(ctx, 100*time.Millisecond, 30)
		if err != nil {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer creditLock.Unlock(ctx)

		record.CreditsCharged = actualCost
		err = s.db.Transaction(func(tx *gorm.DB) error {
			trans, balance, txErr := s.creditSvc.DebitTx(ctx, tx, req.UserID, actualCost, description)
			if txErr != nil {
				return txErr
			}
			if err := s.creditSvc.appendCreditEvent(ctx, tx, "credit.used", trans); err != nil {
				return err
			}
			if err := s.prospectRepo.CreateBatch(ctx, tx, prospects); err != nil {
				return fmt.Errorf("保存潜客失败: %w", err)
			}
			if err := s.searchRepo.Create(ctx, tx, record); err != nil {
				return fmt.Errorf("保存搜索记录失败: %w", err)
			}
			result.Balance = balance
			return s.appendSearchEvent(ctx, tx, record)
		})
		if err != nil {
			return nil, err
		}
		result.CreditsCharged = actualCost
	}

	log.Printf("搜索完成: searchNo=%s, userID=%d, results=%d, charged=%d",
		searchNo, req.UserID, len(prospects), result.CreditsCharged)

	return result, nil
}

func buildProspects(userID int64, searchNo string, scraped []*scraper.Result) []*model.Prospect {
	prospects := make([]*model.Prospect, 0, len(scraped))
	for _, r := range scraped {
		prospects = append(prospects, &model.Prospect{
			UserID:     userID,
			SearchNo:   searchNo,
			Name:       r.Name,
			Category:   r.Category,
			Address:    r.Address,
			City:       r.City,
			PostalCode: r.PostalCode,
			Phone:      r.Phone,
			Email:      r.Email,
			Website:    r.Website,
			Source:     r.Source,
			Confidence: r.Confidence,
		})
	}
	return prospects
}

func (s *SearchService) appendSearchEvent(ctx context.Context, tx *gorm.DB, record *model.SearchRecord) error {
	msgPayload := map[string]interface{}{
		"event":           "search.completed",
		"search_no":       record.SearchNo,
		"user_id":         record.UserID,
		"category":        record.Category,
		"city":            record.City,
		"source":          record.Source,
		"result_count":    record.ResultCount,
		"credits_charged": record.CreditsCharged,
		"occurred_at":     time.Now().Format(time.RFC3339),
	}
	payloadBytes, _ := json.Marshal(msgPayload)

	outboxMsg := &model.OutboxMessage{
		MessageKey: record.SearchNo,
		Topic:      s.cfg.Kafka.Topic.SearchEvents,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// 查询
// ----------------------------------------------------------------------------

// Sources 可用的数据源（含聚合源 all）
func (s *SearchService) Sources() []string {
	return append(s.registry.Sources(), model.SourceAll)
}

func (s *SearchService) ListProspects(ctx context.Context, userID int64, page, pageSize int) ([]*model.Prospect, int64, error) {
	return s.prospectRepo.ListByUserID(ctx, userID, page, pageSize)
}

func (s *SearchService) ListProspectsBySearchNo(ctx context.Context, userID int64, searchNo string) ([]*model.Prospect, error) {
	return s.prospectRepo.ListBySearchNo(ctx, userID, searchNo)
}

func (s *SearchService) ListSearchRecords(ctx context.Context, userID int64, page, pageSize int) ([]*model.SearchRecord, int64, error) {
	return s.searchRepo.ListByUserID(ctx, userID, page, pageSize)
}
