package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ezquant/azsignal/azsignal/model"
)

var ErrInvalidFilter = errors.New("invalid filter")

type OrderFilter func(model.Trade) bool

// Storage persists the simulated fills of a run
type Storage interface {
	CreateTrade(trade *model.Trade) error
	Trades(filters ...OrderFilter) ([]*model.Trade, error)
}

// fileConnLifetime recycles the connection of file databases. An in memory database lives
// as long as its only connection, so it is never recycled.
var fileConnLifetime = time.Hour

type SQL struct {
	db *gorm.DB
}

// FromMemory creates a private in memory database
func FromMemory() (Storage, error) {
	return newSQL(sqlite.Open(":memory:"), 0)
}

// FromFile creates (or opens) a sqlite database at path
func FromFile(path string) (Storage, error) {
	return newSQL(sqlite.Open(path), fileConnLifetime)
}

func newSQL(dialect gorm.Dialector, lifetime time.Duration) (*SQL, error) {
	db, err := gorm.Open(dialect, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// every connection of an in memory sqlite database is a different database
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(lifetime)

	if err := db.AutoMigrate(&model.Trade{}); err != nil {
		return nil, fmt.Errorf("migrate storage: %w", err)
	}
	return &SQL{db: db}, nil
}

func (s *SQL) CreateTrade(trade *model.Trade) error {
	return s.db.Create(trade).Error
}

// Trades returns the stored trades in time order, keeping those accepted by every filter
func (s *SQL) Trades(filters ...OrderFilter) ([]*model.Trade, error) {
	trades := make([]*model.Trade, 0)
	if err := s.db.Order("time, id").Find(&trades).Error; err != nil {
		return nil, err
	}

	result := make([]*model.Trade, 0, len(trades))
	for _, trade := range trades {
		keep := true
		for _, filter := range filters {
			if filter == nil {
				return nil, ErrInvalidFilter
			}
			keep = keep && filter(*trade)
		}
		if keep {
			result = append(result, trade)
		}
	}
	return result, nil
}

// WithPair keeps the trades of one pair
func WithPair(pair string) OrderFilter {
	return func(trade model.Trade) bool {
		return trade.Pair == pair
	}
}

// WithSide keeps buys or sells
func WithSide(side model.SideType) OrderFilter {
	return func(trade model.Trade) bool {
		return trade.Side == side
	}
}

// WithUpdateAtBeforeOrEqual keeps trades filled at or before t
func WithUpdateAtBeforeOrEqual(t time.Time) OrderFilter {
	return func(trade model.Trade) bool {
		return !trade.Time.After(t)
	}
}
