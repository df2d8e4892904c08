package awattar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/janneh/batteryctl-go/config"
	"github.com/janneh/batteryctl-go/forecast"
	"github.com/janneh/batteryctl-go/slice"
	"github.com/janneh/batteryctl-go/types"
)

// rawMarketEntry is one day-ahead market record as the aWATTar API returns
// it: epoch milliseconds and a price whose unit tag varies by market area.
type rawMarketEntry struct {
	StartTimestamp int64   `json:"start_timestamp"`
	EndTimestamp   int64   `json:"end_timestamp"`
	MarketPrice    float64 `json:"marketprice"`
	Unit           string  `json:"unit"`
}

type marketDataResponse struct {
	Data []rawMarketEntry `json:"data"`
}

type Awattar struct {
	cnfg config.AppConfigMarketData
}

func New(cnfg config.AppConfigMarketData) Awattar {
	return Awattar{cnfg: cnfg}
}

func (a Awattar) Name() string {
	return a.cnfg.GetLabel()
}

// GetPriceSlots fetches the day-ahead market data and normalizes it into
// canonical slots, truncated to the configured horizon.
func (a Awattar) GetPriceSlots(ctx context.Context) ([]types.PriceSlot, error) {
	url := strings.TrimSuffix(a.cnfg.Url, "/") + "/v1/marketdata"

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var payload marketDataResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	raw := slice.Map(payload.Data, func(entry rawMarketEntry) forecast.RawPriceRecord {
		return forecast.RawPriceRecord{
			Start: entry.StartTimestamp,
			End:   entry.EndTimestamp,
			Price: entry.MarketPrice,
			Unit:  entry.Unit,
		}
	})

	slots := forecast.NormalizePriceSlots(raw)

	horizon := time.Now().Add(time.Duration(a.cnfg.GetMaxHours()) * time.Hour)
	kept := make([]types.PriceSlot, 0, len(slots))
	for _, slot := range slots {
		if slot.Start.After(horizon) {
			continue
		}
		kept = append(kept, slot)
	}

	return kept, nil
}
