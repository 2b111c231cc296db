package repository_test

import (
	"context"
	"fmt"
	"testing"

	repository "github.com/analyzemyteam/defsync/internal/adapters/repository"
)

func BenchmarkCacheUpsert(b *testing.B) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := repository.NewTreapCache(ctx, repository.WithMaxEvents(1<<20))
	defer c.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Upsert(ctx, formation(fmt.Sprintf("f-%d", i), int64(i*40), int64(i), 0.9))
	}
}

func BenchmarkCacheAt(b *testing.B) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := repository.NewTreapCache(ctx, repository.WithMaxEvents(1<<20))
	defer c.Close()

	const n = 10000
	for i := 0; i < n; i++ {
		_, _ = c.Upsert(ctx, formation(fmt.Sprintf("f-%d", i), int64(i*40), int64(i), 0.9))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.At(ctx, "formation", int64((i%n)*40+17))
	}
}
