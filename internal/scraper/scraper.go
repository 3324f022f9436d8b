package scraper

import (
	"context"
	"log"

	"leadledger/internal/model"
)

// Result 抓取到的一条商家线索（落库前的中间结构）
type Result struct {
	Name       string
	Category   string
	Address    string
	City       string
	PostalCode string
	Phone      string
	Email      string
	Website    string
	Source     string
	Confidence int // 数据可信度 1-4
}

// Scraper 数据源抓取器
// 真实实现对接各商家目录站点，这里只约定边界：
// 给定类目、城市和数量上限，返回一批线索
type Scraper interface {
	Source() string
	Scrape(ctx context.Context, category, city string, maxResults int) ([]*Result, error)
}

// Registry 数据源注册表
// 按注册顺序聚合，source 传 model.SourceAll 时依次调用全部数据源
type Registry struct {
	scrapers map[string]Scraper
	order    []string
}

func NewRegistry(scrapers ...Scraper) *Registry {
	r := &Registry{scrapers: make(map[string]Scraper)}
	for _, s := range scrapers {
		if _, exists := r.scrapers[s.Source()]; exists {
			continue
		}
		r.scrapers[s.Source()] = s
		r.order = append(r.order, s.Source())
	}
	return r
}

// Has 数据源是否可用
func (r *Registry) Has(source string) bool {
	if source == model.SourceAll {
		return len(r.order) > 0
	}
	_, exists := r.scrapers[source]
	return exists
}

// Sources 已注册的数据源列表
func (r *Registry) Sources() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Scrape 执行抓取
// 聚合模式下单个数据源失败只记日志不中断，凑满 maxResults 即停
func (r *Registry) Scrape(ctx context.Context, source, category, city string, maxResults int) ([]*Result, error) {
	if source != model.SourceAll {
		s, exists := r.scrapers[source]
		if !exists {
			return nil, ErrUnknownSource
		}
		return s.Scrape(ctx, category, city, maxResults)
	}

	var results []*Result
	for _, name := range r.order {
		if len(results) >= maxResults {
			break
		}
		remaining := maxResults - len(results)
		batch, err := r.scrapers[name].Scrape(ctx, category, city, remaining)
		if err != nil {
			log.Printf("数据源 %s 抓取失败: %v", name, err)
			continue
		}
		results = append(results, batch...)
	}
	return results, nil
}
