package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xcalcc/llvm-project/internal/peephole"
)

func TestDiskCacheRoundTrip(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)

	f := parseModule(t).Funcs[2]
	key, err := cacheKey(f, Options{Target: peephole.RISCV()}, 1)
	require.NoError(t, err)

	var payload DiskPayload
	hit, err := cache.Get(key, &payload)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, cache.Put(key, funcPayload(f, FuncReport{Rounds: 1})))
	hit, err = cache.Get(key, &payload)
	require.NoError(t, err)
	require.True(t, hit)

	got := payloadFunc(&payload)
	require.NotNil(t, got)
	require.Equal(t, f.Name, got.Name)
	require.Equal(t, f.NumInstrs(), got.NumInstrs())

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Join(cache.Dir(), "funcs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCacheKeyDependsOnOptions(t *testing.T) {
	f := parseModule(t).Funcs[0]
	base, err := cacheKey(f, Options{Target: peephole.RISCV()}, 1)
	require.NoError(t, err)

	same, err := cacheKey(f.Clone(), Options{Target: peephole.RISCV(), Jobs: 16}, 1)
	require.NoError(t, err)
	require.Equal(t, base, same, "job count must not affect the key")

	for _, opts := range []Options{
		{Target: peephole.RISCV(), Pass: peephole.Options{DisableJumpToReturn: true}},
		{Target: peephole.RISCV(), Pass: peephole.Options{DisableAssignAfterTest: true}},
	} {
		k, err := cacheKey(f, opts, 1)
		require.NoError(t, err)
		require.NotEqual(t, base, k)
	}

	k, err := cacheKey(f, Options{Target: peephole.RISCV()}, 3)
	require.NoError(t, err)
	require.NotEqual(t, base, k)
}

func TestOptimizeUsesCache(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)
	opts := Options{Target: peephole.RISCV(), Cache: cache}

	first := parseModule(t)
	rep, err := Optimize(context.Background(), first, opts)
	require.NoError(t, err)
	for _, fr := range rep.Funcs {
		require.False(t, fr.Cached)
	}

	second := parseModule(t)
	rep2, err := Optimize(context.Background(), second, opts)
	require.NoError(t, err)
	for _, fr := range rep2.Funcs {
		require.True(t, fr.Cached, fr.Name)
	}
	require.Equal(t, rep.Total, rep2.Total)
	require.Equal(t, render(t, first), render(t, second))
}

func TestDropAll(t *testing.T) {
	cache, err := NewDiskCache(filepath.Join(t.TempDir(), "xpeep"))
	require.NoError(t, err)
	f := parseModule(t).Funcs[1]
	key, err := cacheKey(f, Options{}, 1)
	require.NoError(t, err)
	require.NoError(t, cache.Put(key, funcPayload(f, FuncReport{})))

	require.NoError(t, cache.DropAll())
	var payload DiskPayload
	hit, err := cache.Get(key, &payload)
	require.NoError(t, err)
	require.False(t, hit)
}
