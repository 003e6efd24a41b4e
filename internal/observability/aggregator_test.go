package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(status int, dur time.Duration) Sample {
	return Sample{
		Endpoint: "/apps/estimatrack/api/delivery-estimate",
		Method:   "GET",
		Status:   status,
		Duration: dur,
		Shop:     "demo.myshopify.com",
	}
}

func TestAggregator_Health(t *testing.T) {
	t.Run("Should report healthy with no traffic", func(t *testing.T) {
		a := NewAggregator()

		h := a.Health()
		assert.Equal(t, StatusHealthy, h.Status)
		assert.Zero(t, h.TotalRequests)
		assert.Empty(t, h.Issues)
	})

	t.Run("Should stay healthy at low error rate", func(t *testing.T) {
		a := NewAggregator()
		for i := 0; i < 96; i++ {
			a.Record(sample(200, 10*time.Millisecond))
		}
		for i := 0; i < 4; i++ {
			a.Record(sample(500, 10*time.Millisecond))
		}

		h := a.Health()
		assert.Equal(t, StatusHealthy, h.Status)
		assert.InDelta(t, 4.0, h.ErrorRate, 0.01)
	})

	t.Run("Should degrade above five percent errors", func(t *testing.T) {
		a := NewAggregator()
		for i := 0; i < 92; i++ {
			a.Record(sample(200, 10*time.Millisecond))
		}
		for i := 0; i < 8; i++ {
			a.Record(sample(500, 10*time.Millisecond))
		}

		h := a.Health()
		assert.Equal(t, StatusDegraded, h.Status)
		assert.Contains(t, h.Issues, "Elevated error rate")
	})

	t.Run("Should go unhealthy above ten percent errors", func(t *testing.T) {
		a := NewAggregator()
		for i := 0; i < 80; i++ {
			a.Record(sample(200, 10*time.Millisecond))
		}
		for i := 0; i < 20; i++ {
			a.Record(sample(500, 10*time.Millisecond))
		}

		h := a.Health()
		assert.Equal(t, StatusUnhealthy, h.Status)
		assert.Contains(t, h.Issues, "High error rate")
	})

	t.Run("Should degrade on slow average latency", func(t *testing.T) {
		a := NewAggregator()
		a.Record(sample(200, 6*time.Second))

		h := a.Health()
		assert.Equal(t, StatusDegraded, h.Status)
		assert.Contains(t, h.Issues, "Slow response times")
	})

	t.Run("Should combine high errors and slow latency into unhealthy", func(t *testing.T) {
		a := NewAggregator()
		a.Record(sample(200, 6*time.Second))
		a.Record(sample(500, 6*time.Second))

		h := a.Health()
		assert.Equal(t, StatusUnhealthy, h.Status)
		assert.Len(t, h.Issues, 2)
	})
}

func TestAggregator_Stats(t *testing.T) {
	t.Run("Should accumulate counters and durations", func(t *testing.T) {
		a := NewAggregator()
		a.Record(sample(200, 10*time.Millisecond))
		a.Record(sample(200, 30*time.Millisecond))
		a.Record(sample(404, 20*time.Millisecond))

		snap := a.Stats()
		assert.Equal(t, int64(3), snap.Total)
		assert.Equal(t, int64(2), snap.Success)
		assert.Equal(t, int64(1), snap.Errors)
		assert.InDelta(t, 33.33, snap.ErrorRate, 0.01)
		assert.Equal(t, float64(10), snap.MinDurationMs)
		assert.Equal(t, float64(30), snap.MaxDurationMs)
		assert.Equal(t, int64(2), snap.ByStatus[200])
		assert.Equal(t, int64(1), snap.ByStatus[404])
		assert.Equal(t, int64(3), snap.ByEndpoint["GET /apps/estimatrack/api/delivery-estimate"])
	})

	t.Run("Should keep only the last ten errors, newest first", func(t *testing.T) {
		a := NewAggregator()
		for i := 0; i < 15; i++ {
			s := sample(500, time.Millisecond)
			s.Error = "boom"
			a.Record(s)
		}

		snap := a.Stats()
		require.Len(t, snap.RecentErrors, 10)
		assert.Equal(t, "boom", snap.RecentErrors[0].Message)
	})

	t.Run("Should rank shops by volume and cap at five", func(t *testing.T) {
		a := NewAggregator()
		shops := []string{"a", "b", "c", "d", "e", "f"}
		for i, shop := range shops {
			for j := 0; j <= i; j++ {
				s := sample(200, time.Millisecond)
				s.Shop = shop
				a.Record(s)
			}
		}

		snap := a.Stats()
		require.Len(t, snap.TopShops, 5)
		assert.Equal(t, ShopCount{Shop: "f", Count: 6}, snap.TopShops[0])
		assert.Equal(t, ShopCount{Shop: "b", Count: 2}, snap.TopShops[4])
	})

	t.Run("Should zero everything on reset", func(t *testing.T) {
		a := NewAggregator()
		a.Record(sample(500, time.Second))
		a.Reset()

		snap := a.Stats()
		assert.Zero(t, snap.Total)
		assert.Empty(t, snap.RecentErrors)
		assert.Empty(t, snap.TopShops)
	})
}

func TestAggregator_ConcurrentRecord(t *testing.T) {
	a := NewAggregator()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				a.Record(sample(200, time.Millisecond))
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	assert.Equal(t, int64(800), a.Stats().Total)
}
