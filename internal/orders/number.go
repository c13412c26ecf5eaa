package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// MaxNumberAttempts bounds CreateWithNumber retries on order number collisions.
const MaxNumberAttempts = 5

// NumberGenerator produces order numbers of the form <prefix><unix seconds>, e.g. DORIS1700000000.
type NumberGenerator struct {
	Prefix string
	Now    func() time.Time
}

// Next returns the order number for the current second shifted by offset seconds.
func (g NumberGenerator) Next(offset int) string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	return g.Prefix + strconv.FormatInt(now().Unix()+int64(offset), 10)
}

// CreateWithNumber assigns o.OrderNo from gen and creates it, moving to the next second
// when the number is already taken. It returns the stored order.
func CreateWithNumber(ctx context.Context, repo Repository, gen NumberGenerator, o Order) (Order, error) {
	for attempt := 0; attempt < MaxNumberAttempts; attempt++ {
		o.OrderNo = gen.Next(attempt)
		err := repo.Create(ctx, o)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrDuplicateOrderNo) {
			return Order{}, err
		}
	}
	return Order{}, fmt.Errorf("allocate order number after %d attempts: %w", MaxNumberAttempts, ErrDuplicateOrderNo)
}
