package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	require.NotNil(t, m)

	t.Run("ホールドカウンターを記録できる", func(t *testing.T) {
		m.HoldsTotal.WithLabelValues("success").Inc()
		m.HoldsTotal.WithLabelValues("contended").Inc()
		m.HoldsTotal.WithLabelValues("contended").Inc()

		assert.Equal(t, 1.0, testutil.ToFloat64(m.HoldsTotal.WithLabelValues("success")))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.HoldsTotal.WithLabelValues("contended")))
	})

	t.Run("キャッシュカウンターを記録できる", func(t *testing.T) {
		m.AvailabilityCacheTotal.WithLabelValues("hit").Inc()
		m.AvailabilityCacheTotal.WithLabelValues("miss").Inc()

		assert.Equal(t, 1.0, testutil.ToFloat64(m.AvailabilityCacheTotal.WithLabelValues("hit")))
	})

	t.Run("アクティブホールドゲージを増減できる", func(t *testing.T) {
		m.ActiveHolds.Inc()
		m.ActiveHolds.Inc()
		m.ActiveHolds.Dec()

		assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveHolds))
	})

	t.Run("二重登録はパニックする", func(t *testing.T) {
		assert.Panics(t, func() {
			NewWithRegistry(reg)
		})
	})
}

func TestInitAndGet(t *testing.T) {
	// デフォルトレジストリを汚染しないよう、独自レジストリで差し替える
	reg := prometheus.NewRegistry()
	defaultMetrics = NewWithRegistry(reg)

	assert.NotNil(t, Get())
	assert.Same(t, defaultMetrics, Get())
}
