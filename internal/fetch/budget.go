package fetch

import (
	"fmt"
	"sync/atomic"

	"vidgrab/internal/services"
)

// budget is the per-job byte allowance shared by parallel transfers.
type budget struct {
	limit int64
	used  atomic.Int64
}

func newBudget(limit int64) *budget {
	return &budget{limit: limit}
}

func (b *budget) fits(n int64) error {
	if b.limit <= 0 || n <= 0 {
		return nil
	}
	if b.used.Load()+n > b.limit {
		return b.exceeded(b.used.Load() + n)
	}
	return nil
}

func (b *budget) charge(n int64) error {
	total := b.used.Add(n)
	if b.limit > 0 && total > b.limit {
		return b.exceeded(total)
	}
	return nil
}

func (b *budget) refund(n int64) {
	if n > 0 {
		b.used.Add(-n)
	}
}

func (b *budget) total() int64 {
	return b.used.Load()
}

func (b *budget) exceeded(n int64) error {
	return services.Wrap(services.ErrResourceLimit, "fetch", "download",
		fmt.Sprintf("download size %d bytes exceeds limit of %d bytes", n, b.limit), nil)
}
