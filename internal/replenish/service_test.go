package replenish

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestComputeCachesResult(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewService(client, time.Minute, nil)
	ctx := context.Background()

	items := []Item{item("SKU-1", 1, "2", "3")}
	first, err := svc.Compute(ctx, items)
	require.NoError(t, err)
	require.EqualValues(t, 19, first[0].FinalBuyQty)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	require.Contains(t, keys[0], "replenish:")

	// Second call is served from the cached payload.
	second, err := svc.Compute(ctx, items)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestComputeSurvivesCorruptCacheEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewService(client, time.Minute, nil)
	ctx := context.Background()

	items := []Item{item("SKU-1", 10, "2", "3")}
	_, err := svc.Compute(ctx, items)
	require.NoError(t, err)

	for _, key := range mr.Keys() {
		require.NoError(t, mr.Set(key, "not json"))
	}

	out, err := svc.Compute(ctx, items)
	require.NoError(t, err)
	require.Equal(t, StatusOK, out[0].Status)
}

func TestComputeWithoutCacheClient(t *testing.T) {
	svc := NewService(nil, 0, nil)
	out, err := svc.Compute(context.Background(), []Item{item("SKU-1", 25, "2", "3")})
	require.NoError(t, err)
	require.Equal(t, StatusOverstock, out[0].Status)
}

func TestComputeEmptyInput(t *testing.T) {
	svc := NewService(nil, 0, nil)
	out, err := svc.Compute(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, out)
}
