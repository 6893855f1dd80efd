package saxo

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aristath/saxo-portfolio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDetails_MapsFields(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, clientDetailsPath, r.URL.Path)
		writeJSON(w, map[string]interface{}{
			"ClientKey":        "ck-1",
			"ClientId":         "9226397",
			"DefaultAccountId": "9226397/EUR",
			"Name":             "Jane Doe",
		})
	})

	details, err := client.ClientDetails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &domain.ClientDetails{
		ClientKey: "ck-1",
		ClientID:  "9226397",
		AccountID: "9226397/EUR",
		Name:      "Jane Doe",
	}, details)
}

func TestPerformanceV3_Query(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, performanceV3Path, r.URL.Path)
		assert.Equal(t, "ck-1", r.URL.Query().Get("ClientKey"))
		assert.Equal(t, "AllTime", r.URL.Query().Get("StandardPeriod"))
		writeJSON(w, map[string]interface{}{
			"BalancePerformance": map[string]interface{}{"AccumulatedProfitLoss": 4321.5},
		})
	})

	pl, err := client.PerformanceV3(context.Background(), "ck-1")
	require.NoError(t, err)
	assert.Equal(t, 4321.5, pl)
}

func TestPerformanceV3_MissingBlock(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{})
	})

	_, err := client.PerformanceV3(context.Background(), "ck-1")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = client.PerformanceV3(context.Background(), "")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestPerformanceV4Batch_FetchesPeriodsInOrder(t *testing.T) {
	fractions := map[string]float64{"AllTime": 0.25, "Year": 0.0523, "Month": -0.01, "Quarter": 0.02}

	var mu sync.Mutex
	var periods []string
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, performanceV4Path, r.URL.Path)
		assert.Equal(t, "ck-1", q.Get("ClientKey"))
		assert.Equal(t, performanceFieldGroups, q.Get("FieldGroups"))

		period := q.Get("StandardPeriod")
		mu.Lock()
		periods = append(periods, period)
		mu.Unlock()

		writeJSON(w, map[string]interface{}{
			"KeyFigures": map[string]interface{}{"ReturnFraction": fractions[period]},
			"Balance": map[string]interface{}{
				"CashTransfer": []map[string]interface{}{
					{"Date": "2025-01-01", "Value": 100.0},
					{"Date": "2025-02-01", "Value": 750.0},
				},
			},
		})
	})

	results, err := client.PerformanceV4Batch(context.Background(), "ck-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"AllTime", "Year", "Month", "Quarter"}, periods)
	require.Len(t, results, 4)
	assert.InDelta(t, 5.23, results[domain.PeriodYear].Percentage(), 1e-9)
	assert.Equal(t, 750.0, results[domain.PeriodAllTime].LatestCashTransfer)
	assert.True(t, results[domain.PeriodAllTime].HasCashTransferData)
}

func TestPerformanceV4Batch_PausesBetweenCalls(t *testing.T) {
	var mu sync.Mutex
	var trace []string
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		trace = append(trace, r.URL.Query().Get("StandardPeriod"))
		mu.Unlock()
		writeJSON(w, map[string]interface{}{"KeyFigures": map[string]interface{}{"ReturnFraction": 0.1}})
	})
	client.batchSpacing = batchCallSpacing
	client.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		trace = append(trace, "pause "+d.String())
		return nil
	}

	_, err := client.PerformanceV4Batch(context.Background(), "ck-1")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"AllTime", "pause 500ms",
		"Year", "pause 500ms",
		"Month", "pause 500ms",
		"Quarter",
	}, trace)
}

func TestPerformanceV4Batch_PauseCancelled(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"KeyFigures": map[string]interface{}{"ReturnFraction": 0.1}})
	})
	client.batchSpacing = batchCallSpacing
	client.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	results, err := client.PerformanceV4Batch(context.Background(), "ck-1")
	assert.Nil(t, results)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPerformanceV4Batch_AbortsOnFirstFailure(t *testing.T) {
	var mu sync.Mutex
	var periods []string
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		period := r.URL.Query().Get("StandardPeriod")
		mu.Lock()
		periods = append(periods, period)
		mu.Unlock()
		if period == "Month" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]interface{}{"KeyFigures": map[string]interface{}{"ReturnFraction": 0.1}})
	})

	results, err := client.PerformanceV4Batch(context.Background(), "ck-1")
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Contains(t, err.Error(), "Month")
	assert.Equal(t, []string{"AllTime", "Year", "Month"}, periods)
}

func TestPerformanceV4_NoCashTransfers(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"KeyFigures": map[string]interface{}{"ReturnFraction": 0.1}})
	})

	perf, err := client.PerformanceV4(context.Background(), "ck-1", domain.PeriodQuarter)
	require.NoError(t, err)
	assert.Equal(t, domain.PeriodQuarter, perf.Period)
	assert.False(t, perf.HasCashTransferData)
	assert.Equal(t, 0.0, perf.LatestCashTransfer)
}

func TestNetPositions(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, netPositionsPath, r.URL.Path)
		writeJSON(w, map[string]interface{}{
			"Data": []map[string]interface{}{
				{
					"NetPositionId":    "AAPL:xnas__Stock",
					"NetPositionBase":  map[string]interface{}{"Amount": 10, "AssetType": "Stock"},
					"NetPositionView":  map[string]interface{}{"MarketValue": 1900.5, "ProfitLossOnTrade": 120.25},
					"DisplayAndFormat": map[string]interface{}{"Symbol": "AAPL:xnas", "Currency": "USD"},
				},
			},
		})
	})

	positions, err := client.NetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, domain.NetPosition{
		NetPositionID: "AAPL:xnas__Stock",
		Symbol:        "AAPL:xnas",
		AssetType:     "Stock",
		Amount:        10,
		MarketValue:   1900.5,
		ProfitLoss:    120.25,
		Currency:      "USD",
	}, positions[0])
}
