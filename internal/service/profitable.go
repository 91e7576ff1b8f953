package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"truemarket-api/internal/cache"
	"truemarket-api/internal/model"
	"truemarket-api/internal/repository"
)

// Sort orders for profitable skin queries.
const (
	SortByProfit   = "profit"
	SortByDiscount = "discount"
	SortByGain     = "gain"
)

// ProfitableQuery filters and orders a profitable skin scan.
type ProfitableQuery struct {
	MinProfitBp int64
	Sort        string
	Limit       int
}

// ProfitableSkin is a listed skin together with its computed margins.
type ProfitableSkin struct {
	Skin   model.Skin         `json:"skin"`
	Profit model.ProfitResult `json:"profit"`
}

// ProfitableService scans stored skins for fee-adjusted arbitrage
// opportunities against their latest Steam price snapshots.
type ProfitableService struct {
	skinRepo    repository.SkinRepository
	historyRepo repository.PriceHistoryRepository
	calculator  *ProfitCalculator
	cache       cache.Cache
	cacheTTL    time.Duration
}

// NewProfitableService creates a profitable skin scanner.
func NewProfitableService(
	skinRepo repository.SkinRepository,
	historyRepo repository.PriceHistoryRepository,
	calculator *ProfitCalculator,
	c cache.Cache,
	cacheTTL time.Duration,
) *ProfitableService {
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	return &ProfitableService{
		skinRepo:    skinRepo,
		historyRepo: historyRepo,
		calculator:  calculator,
		cache:       c,
		cacheTTL:    cacheTTL,
	}
}

// List returns profitable skins matching the query, most attractive
// first. Results are cached per query shape for a short window since the
// scan walks every stored skin.
func (s *ProfitableService) List(ctx context.Context, q ProfitableQuery) ([]ProfitableSkin, error) {
	if q.Sort == "" {
		q.Sort = SortByProfit
	}

	key := fmt.Sprintf("profitable:%d:%s:%d", q.MinProfitBp, q.Sort, q.Limit)
	payload, err := s.cache.GetOrSet(ctx, key, s.cacheTTL, func() ([]byte, error) {
		skins, err := s.scan(ctx, q)
		if err != nil {
			return nil, err
		}
		return json.Marshal(skins)
	})
	if err != nil {
		return nil, err
	}

	var result []ProfitableSkin
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode cached profitable skins: %w", err)
	}
	return result, nil
}

func (s *ProfitableService) scan(ctx context.Context, q ProfitableQuery) ([]ProfitableSkin, error) {
	skins, err := s.skinRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list skins: %w", err)
	}

	result := make([]ProfitableSkin, 0)
	for _, skin := range skins {
		if skin.Status != model.StatusAvailable || skin.Price == nil {
			continue
		}

		latest, err := s.historyRepo.FindLatest(ctx, skin.Name, skin.Wear)
		if err != nil {
			return nil, fmt.Errorf("find latest history for %s (%s): %w", skin.Name, skin.Wear, err)
		}
		if latest == nil {
			continue
		}

		profit, err := s.calculator.Calculate(*skin.Price, latest.AveragePrice, latest.LastSalePrice, latest.LowestBuyOrderPrice)
		if err != nil {
			if errors.Is(err, model.ErrInvalidPrice) {
				log.Printf("[ProfitableService] Skipping %s: %v", skin.ID, err)
				continue
			}
			return nil, err
		}

		if profit.ProfitBp < q.MinProfitBp {
			continue
		}

		result = append(result, ProfitableSkin{Skin: skin, Profit: profit})
	}

	sortProfitable(result, q.Sort)

	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

func sortProfitable(skins []ProfitableSkin, order string) {
	sort.SliceStable(skins, func(i, j int) bool {
		a, b := skins[i].Profit, skins[j].Profit
		switch order {
		case SortByDiscount:
			return a.DiscountBp > b.DiscountBp
		case SortByGain:
			return a.ExpectedGainUSD > b.ExpectedGainUSD
		default:
			return a.ProfitBp > b.ProfitBp
		}
	})
}
