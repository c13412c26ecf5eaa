package orders

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNumberGenerator_Next(t *testing.T) {
	gen := NumberGenerator{Prefix: "DORIS", Now: func() time.Time { return time.Unix(1700000000, 0) }}

	if got := gen.Next(0); got != "DORIS1700000000" {
		t.Fatalf("unexpected order number %s", got)
	}
	if got := gen.Next(2); got != "DORIS1700000002" {
		t.Fatalf("unexpected shifted order number %s", got)
	}
}

func TestCreateWithNumber_SkipsTakenNumbers(t *testing.T) {
	store, _ := newTestStore(t, time.Now())
	ctx := context.Background()
	gen := NumberGenerator{Prefix: "DORIS", Now: func() time.Time { return time.Unix(1700000000, 0) }}

	first, err := CreateWithNumber(ctx, store, gen, pendingOrder(""))
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := CreateWithNumber(ctx, store, gen, pendingOrder(""))
	if err != nil {
		t.Fatalf("second create: %v", err)
	}

	if first.OrderNo != "DORIS1700000000" || second.OrderNo != "DORIS1700000001" {
		t.Fatalf("unexpected numbers %s, %s", first.OrderNo, second.OrderNo)
	}
}

func TestCreateWithNumber_GivesUp(t *testing.T) {
	store, _ := newTestStore(t, time.Now())
	ctx := context.Background()
	gen := NumberGenerator{Prefix: "DORIS", Now: func() time.Time { return time.Unix(1700000000, 0) }}

	for i := 0; i < MaxNumberAttempts; i++ {
		o := pendingOrder(gen.Next(i))
		if err := store.Create(ctx, o); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	_, err := CreateWithNumber(ctx, store, gen, pendingOrder(""))
	if !errors.Is(err, ErrDuplicateOrderNo) {
		t.Fatalf("expected ErrDuplicateOrderNo, got %v", err)
	}
}
