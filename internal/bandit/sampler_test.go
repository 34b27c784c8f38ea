package bandit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPosteriorStore struct {
	mock.Mock
}

func (m *MockPosteriorStore) LoadPosteriors() ([]Posterior, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Posterior), args.Error(1)
}

func (m *MockPosteriorStore) SavePosterior(p Posterior) error {
	return m.Called(p).Error(0)
}

func TestSampler_SampleWeightsInUnitInterval(t *testing.T) {
	s := NewSampler(nil)
	providers := []string{"deepseek", "gemini", "qwen"}
	for i := 0; i < 50; i++ {
		weights := s.SampleWeights("trend_up", providers)
		require.Len(t, weights, 3)
		for id, w := range weights {
			assert.Greater(t, w, 0.0, id)
			assert.LessOrEqual(t, w, 1.0, id)
		}
	}
}

func TestSampler_WinsLiftExpectedWeight(t *testing.T) {
	s := NewSampler(nil)
	for i := 0; i < 20; i++ {
		s.UpdateFromOutcome("sharp", "trend_up", true)
		s.UpdateFromOutcome("blunt", "trend_up", false)
	}

	m := s.ExpectedWeights("trend_up", []string{"sharp", "blunt", "fresh"})
	// sharp 后验 Beta(21,1)，blunt Beta(1,21)，fresh 仍是先验
	assert.InDelta(t, 21.0/22.0, m["sharp"], 1e-9)
	assert.InDelta(t, 1.0/22.0, m["blunt"], 1e-9)
	assert.InDelta(t, 0.5, m["fresh"], 1e-9)
}

func TestSampler_RegimeBucketFallsBackToDefault(t *testing.T) {
	s := NewSampler(nil)
	// trend_up 的更新同时写进 default 桶
	for i := 0; i < 9; i++ {
		s.UpdateFromOutcome("sharp", "trend_up", true)
	}

	m := s.ExpectedWeights("range", []string{"sharp"})
	assert.InDelta(t, 10.0/11.0, m["sharp"], 1e-9, "range 无专属后验时回退 default")

	// range 桶有了自己的样本后不再回退
	s.UpdateFromOutcome("sharp", "range", false)
	m = s.ExpectedWeights("range", []string{"sharp"})
	assert.InDelta(t, 1.0/3.0, m["sharp"], 1e-9)
}

func TestSampler_EmptyRegimeOnlyTouchesDefault(t *testing.T) {
	s := NewSampler(nil)
	s.UpdateFromOutcome("sharp", "", true)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, RegimeDefault, snap[0].Regime)
	assert.InDelta(t, 2.0, snap[0].Alpha, 1e-9)
}

func TestSampler_PersistsAndReplaysPosteriors(t *testing.T) {
	store := new(MockPosteriorStore)
	store.On("LoadPosteriors").Return([]Posterior{
		{Provider: "sharp", Regime: "trend_up", Alpha: 9, Beta: 1, UpdatedAt: time.Now()},
	}, nil)
	// trend_up 与 default 两个桶各落库一次
	store.On("SavePosterior", mock.MatchedBy(func(p Posterior) bool {
		return p.Provider == "sharp" && p.Regime == "trend_up" && p.Alpha == 10
	})).Return(nil).Once()
	store.On("SavePosterior", mock.MatchedBy(func(p Posterior) bool {
		return p.Provider == "sharp" && p.Regime == RegimeDefault && p.Alpha == 2
	})).Return(nil).Once()

	s := NewSampler(store)
	m := s.ExpectedWeights("trend_up", []string{"sharp"})
	assert.InDelta(t, 0.9, m["sharp"], 1e-9, "预热自 store 的后验")

	s.UpdateFromOutcome("sharp", "trend_up", true)
	store.AssertExpectations(t)
}

func TestSampler_StoreLoadFailureStartsFromPrior(t *testing.T) {
	store := new(MockPosteriorStore)
	store.On("LoadPosteriors").Return(nil, assert.AnError)

	s := NewSampler(store)
	m := s.ExpectedWeights("trend_up", []string{"sharp"})
	assert.InDelta(t, 0.5, m["sharp"], 1e-9)
}

func TestPosterior_Mean(t *testing.T) {
	assert.InDelta(t, 0.5, Posterior{}.Mean(), 1e-9)
	assert.InDelta(t, 0.75, Posterior{Alpha: 3, Beta: 1}.Mean(), 1e-9)
}
