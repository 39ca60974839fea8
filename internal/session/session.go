// Package session hands typed form answers from one page to the next.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/tamerun-invest/pkg/apperror"
	"github.com/iwvelando/tamerun-invest/pkg/constants"
	"github.com/iwvelando/tamerun-invest/pkg/mathutil"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Load for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// InvestForm holds the investment form answers.
type InvestForm struct {
	InitialAmount float64 `json:"initial_amount"`
	Term          int     `json:"term"`
}

// Validate checks the answers before they are stored.
func (f InvestForm) Validate() error {
	if !mathutil.IsFinite(f.InitialAmount) || f.InitialAmount <= 0 {
		return apperror.Invalid("initial_amount", "Введите стартовый капитал")
	}
	if f.Term < constants.MinInvestmentYears || f.Term > constants.MaxInvestmentYears {
		return apperror.Invalid("term", "Выберите срок от %d до %d лет", constants.MinInvestmentYears, constants.MaxInvestmentYears)
	}
	return nil
}

// InstallmentForm holds the installment form answers. A nil date means the
// schedule starts today.
type InstallmentForm struct {
	PropertyPrice   float64    `json:"property_price"`
	DownPaymentDate *time.Time `json:"down_payment_date,omitempty"`
}

// Validate checks the answers before they are stored.
func (f InstallmentForm) Validate() error {
	if !mathutil.IsFinite(f.PropertyPrice) || f.PropertyPrice <= 0 {
		return apperror.Invalid("property_price", "Введите стоимость квартиры")
	}
	return nil
}

// State is everything kept for one visitor.
type State struct {
	Invest      *InvestForm      `json:"invest,omitempty"`
	Installment *InstallmentForm `json:"installment,omitempty"`
}

// Store persists State by session ID.
type Store interface {
	Load(ctx context.Context, id string) (State, error)
	Save(ctx context.Context, id string, state State) error
	Clear(ctx context.Context, id string) error
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id could have been issued by NewID.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Config selects and configures a Store.
type Config struct {
	Store string
	TTL   time.Duration
	Redis RedisConfig
}

// RedisConfig addresses a Redis server.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// NewStore builds the Store named by cfg.Store.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Store {
	case "", constants.SessionStoreMemory:
		return NewMemoryStore(cfg.TTL, nil), nil
	case constants.SessionStoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisStore(rdb, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}
