package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLStore keeps orders in a relational table through gorm.
type SQLStore struct {
	db      *gorm.DB
	nowFunc func() time.Time
}

var _ Repository = (*SQLStore)(nil)

// OpenSQL opens a gorm connection for driver "postgres" or "mysql".
func OpenSQL(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres", "":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown DATABASE_DRIVER: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return db, nil
}

// NewSQLStore wraps an open gorm DB.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db, nowFunc: time.Now}
}

// AutoMigrate creates or updates the orders table.
func (s *SQLStore) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Order{})
}

func (s *SQLStore) Create(ctx context.Context, o Order) error {
	now := s.nowFunc().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateOrderNo
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, orderNo string) (*Order, error) {
	var o Order
	err := s.db.WithContext(ctx).First(&o, "order_no = ?", orderNo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}
	return &o, nil
}

// MarkPaid filters on status so concurrent or repeated deliveries update at most one row once.
func (s *SQLStore) MarkPaid(ctx context.Context, orderNo, gatewayTradeNo string) (bool, error) {
	now := s.nowFunc().UTC()
	res := s.db.WithContext(ctx).Model(&Order{}).
		Where("order_no = ? AND status = ?", orderNo, StatusPending).
		Updates(map[string]any{
			"status":           StatusPaid,
			"gateway_trade_no": gatewayTradeNo,
			"paid_at":          &now,
			"updated_at":       now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("update order (mark paid): %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
