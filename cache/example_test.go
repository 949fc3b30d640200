package cache_test

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/repguard/cache"
)

func Example() {
	layer := cache.NewLayer(cache.LayerConfig{
		Loader: func(ctx context.Context, key string) ([]byte, error) {
			return []byte("loaded:" + key), nil
		},
	})
	defer layer.Close()

	ctx := context.Background()

	// A rewarded write gets a priority boost and a longer TTL.
	_ = layer.Set(ctx, "entity:42", []byte("profile"), cache.SetOptions{
		TTL:      time.Hour,
		Priority: 0.5,
		Reward:   cache.RewardPromoted,
	})

	result, _ := layer.Get(ctx, "entity:42")
	fmt.Println(result.Hit, string(result.Value))

	// A true miss falls through to the origin loader.
	result, _ = layer.Get(ctx, "entity:7")
	fmt.Println(result.Hit, string(result.Value))

	// Output:
	// true profile
	// false loaded:entity:7
}
