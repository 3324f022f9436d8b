package scraper

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"

	"leadledger/internal/model"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// mockScraper 本地模拟数据源
// 开发和测试环境代替真实目录站点，按类目+城市生成稳定的假数据
// （同样的查询总是返回同样的结果，便于断言）
type mockScraper struct{}

func NewMockScraper() Scraper {
	return &mockScraper{}
}

func (m *mockScraper) Source() string {
	return model.SourceMock
}

// 单个数据源一次最多返回 20 条
const mockMaxPerScrape = 20

var (
	mockSuffixes = []string{
		"Excellence", "Prestige", "Royal", "Central", "Express",
		"Plus", "Pro", "Elite", "Premium", "du Centre",
		"Moderne", "Tradition", "Service", "Rapide", "Confort",
		"Qualité", "Horizon", "Avenir", "Distinction", "Renommée",
	}
	mockStreets = []string{
		"rue de la République", "avenue Victor Hugo", "boulevard Saint-Michel",
		"rue du Commerce", "place de la Mairie", "rue des Lilas",
		"avenue de la Gare", "rue Pasteur",
	}
)

func (m *mockScraper) Scrape(ctx context.Context, category, city string, maxResults int) ([]*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	count := maxResults
	if count > mockMaxPerScrape {
		count = mockMaxPerScrape
	}
	if count <= 0 {
		return nil, nil
	}

	rng := rand.New(rand.NewSource(mockSeed(category, city)))
	titleCaser := cases.Title(language.French)

	results := make([]*Result, 0, count)
	for i := 0; i < count; i++ {
		suffix := mockSuffixes[i%len(mockSuffixes)]
		name := fmt.Sprintf("%s %s", titleCaser.String(category), suffix)
		street := mockStreets[rng.Intn(len(mockStreets))]

		r := &Result{
			Name:       name,
			Category:   category,
			Address:    fmt.Sprintf("%d %s", 1+rng.Intn(120), street),
			City:       city,
			PostalCode: fmt.Sprintf("%05d", 10000+rng.Intn(85000)),
			Phone:      mockPhone(rng),
			Source:     model.SourceMock,
			Confidence: 1 + rng.Intn(4),
		}

		// 约七成商家有自己的网站，挂网站的再给一个联系邮箱
		if rng.Float64() < 0.7 {
			slug := mockSlug(name)
			r.Website = fmt.Sprintf("https://www.%s.fr", slug)
			r.Email = fmt.Sprintf("contact@%s.fr", slug)
		}

		results = append(results, r)
	}

	return results, nil
}

func mockSeed(category, city string) int64 {
	h := fnv.New64a()
	h.Write([]byte(category))
	h.Write([]byte("|"))
	h.Write([]byte(city))
	return int64(h.Sum64())
}

func mockPhone(rng *rand.Rand) string {
	return fmt.Sprintf("01 %02d %02d %02d %02d",
		rng.Intn(100), rng.Intn(100), rng.Intn(100), rng.Intn(100))
}

func mockSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "é", "e")
	return slug
}
