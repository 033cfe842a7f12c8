//go:build !race

package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/user/sctid/internal/reservation"
	"github.com/user/sctid/internal/sctid"
	"github.com/user/sctid/internal/store"
	"github.com/user/sctid/internal/strategy"
)

func benchService(b *testing.B, backend, strat string) *Service {
	b.Helper()
	var st store.IdentifierStore
	if backend == store.BackendMemory {
		st = store.NewMemoryStore()
	} else {
		var err error
		st, err = store.Open(backend, b.TempDir(), store.Options{NoSync: true})
		if err != nil {
			b.Fatalf("Open(%s): %v", backend, err)
		}
		b.Cleanup(func() { _ = st.Close() })
	}
	reg := reservation.NewMemoryRegistry()
	s, err := strategy.New(strat, st, reg)
	if err != nil {
		b.Fatalf("strategy.New: %v", err)
	}
	return New(st, s, reg, DefaultConfig())
}

func BenchmarkGenerate(b *testing.B) {
	for _, backend := range []string{store.BackendMemory, store.BackendPebble, store.BackendBadger, store.BackendSQLite} {
		for _, strat := range []string{strategy.NameSequential, strategy.NameRandom} {
			for _, batch := range []int{1, 100} {
				b.Run(fmt.Sprintf("%s/%s/batch=%d", backend, strat, batch), func(b *testing.B) {
					svc := benchService(b, backend, strat)
					ctx := context.Background()
					b.ResetTimer()
					for i := 0; i < b.N; i++ {
						if _, err := svc.Generate(ctx, "", sctid.Concept, batch); err != nil {
							b.Fatalf("Generate: %v", err)
						}
					}
					b.ReportMetric(float64(b.N*batch)/b.Elapsed().Seconds(), "ids/sec")
				})
			}
		}
	}
}

func BenchmarkGenerateParallel(b *testing.B) {
	svc := benchService(b, store.BackendPebble, strategy.NameSequential)
	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			cat := sctid.Categories[i%len(sctid.Categories)]
			i++
			if _, err := svc.Generate(ctx, "", cat, 10); err != nil {
				b.Errorf("Generate: %v", err)
				return
			}
		}
	})
}
