package provider

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"arbiter/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := BuildRegistry(config.AIConfig{
		Advisors: []config.AdvisorModelConfig{
			{ID: "deepseek", Enabled: true, Model: "deepseek-chat", APIURL: "https://api.example"},
			{ID: "gemini", Enabled: true, Model: "gemini-pro", APIURL: "https://api.example", Tier: "phase2"},
		},
	})
	require.NoError(t, err)
	return reg
}

func TestRegistry_LookupAndTiers(t *testing.T) {
	reg := testRegistry(t)

	adv, err := reg.Lookup("deepseek")
	require.NoError(t, err)
	assert.Equal(t, "deepseek", adv.ID())

	_, err = reg.Lookup("nope")
	assert.ErrorContains(t, err, "unknown advisor")

	p1 := reg.ByTier(TierPhase1)
	require.Len(t, p1, 1)
	assert.Equal(t, "deepseek", p1[0].ID())

	p2 := reg.ByTier(TierPhase2)
	require.Len(t, p2, 1)
	assert.Equal(t, "gemini", p2[0].ID())
}

func TestRoster_EmptyPathDisablesFeature(t *testing.T) {
	r, err := NewRoster("  ", testRegistry(t))
	require.NoError(t, err)
	assert.Nil(t, r)
	// nil Roster 的方法都安全
	assert.Empty(t, r.Snapshot().Weights)
	assert.NoError(t, r.Close())
}

func TestRoster_LoadsOverrides(t *testing.T) {
	reg := testRegistry(t)
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
advisors:
  - id: deepseek
    enabled: false
    weight: 2.5
  - id: ghost
    enabled: true
  - id: gemini
    weight: -1
`), 0o644))

	r, err := NewRoster(path, reg)
	require.NoError(t, err)
	defer r.Close()

	// deepseek 被禁用；ghost 未配置，忽略；非正权重不覆盖
	assert.Empty(t, reg.ByTier(TierPhase1))
	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	assert.Equal(t, map[string]float64{"deepseek": 2.5}, snap.Weights)
}

func TestRoster_HotReloadOnWrite(t *testing.T) {
	reg := testRegistry(t)
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("advisors: []\n"), 0o644))

	r, err := NewRoster(path, reg)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, int64(1), r.Snapshot().Version)

	require.NoError(t, os.WriteFile(path, []byte(`
advisors:
  - id: gemini
    weight: 3.0
`), 0o644))

	// 去抖 200ms，等版本号前进
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if r.Snapshot().Version > 1 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	snap := r.Snapshot()
	require.Greater(t, snap.Version, int64(1), "写入后应热加载")
	assert.Equal(t, 3.0, snap.Weights["gemini"])
}

func TestRoster_InvalidFileFailsFast(t *testing.T) {
	_, err := NewRoster(filepath.Join(t.TempDir(), "missing.yaml"), testRegistry(t))
	assert.ErrorContains(t, err, "reading roster failed")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("advisors: {not a list}"), 0o644))
	_, err = NewRoster(path, testRegistry(t))
	assert.ErrorContains(t, err, "parsing roster failed")
}
