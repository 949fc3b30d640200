package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func BenchmarkMemoryTier_Get(b *testing.B) {
	tier := NewMemoryTier(MemoryTierConfig{})
	ctx := context.Background()
	for i := 0; i < 1024; i++ {
		_ = tier.Set(ctx, fmt.Sprintf("k%d", i), validEntry("value", 0.5, 0))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _, _ = tier.Get(ctx, fmt.Sprintf("k%d", i%1024))
			i++
		}
	})
}

func BenchmarkLayer_SetModulated(b *testing.B) {
	layer := NewLayer(LayerConfig{})
	defer layer.Close()
	ctx := context.Background()
	value := []byte("payload")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = layer.Set(ctx, "k", value, SetOptions{
			TTL:      time.Hour,
			Priority: 0.5,
			Reward:   RewardRewarded,
		})
	}
}

func BenchmarkMeta_Modulate(b *testing.B) {
	m := baseMeta(time.Hour, 0.5)
	m.Reward = RewardPromoted
	m.Penalty = PenaltyWarned

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Modulate()
	}
}
