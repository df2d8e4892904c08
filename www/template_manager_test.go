package www

import (
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/janneh/batteryctl-go/types"
)

func TestNewTemplateManagerEmbedded(t *testing.T) {
	tm, err := NewTemplateManager(slog.Default(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	buf, err := tm.Execute("status.html", nil)
	if err != nil {
		t.Fatalf("rendering without a snapshot failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No evaluation run") {
		t.Error("expected the empty-state message for a nil snapshot")
	}
}

func TestNewTemplateManagerRendersSnapshot(t *testing.T) {
	tm, err := NewTemplateManager(slog.Default(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snapshot := &types.SnapshotPayload{
		Timestamp:             time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
		CurrentSocPercent:     42,
		RecommendedSocPercent: 100,
		ForecastSource:        "market_data",
		OracleEntries: []types.OracleEntry{
			{
				Start:           time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
				DurationHours:   1,
				StartSocPercent: 42,
				EndSocPercent:   71,
				GridPowerW:      3480,
				PriceEurPerKwh:  0.18,
				Strategy:        "charge",
			},
		},
		Warnings: []string{"market data (market_data): timeout"},
	}

	buf, err := tm.Execute("status.html", snapshot)
	if err != nil {
		t.Fatalf("rendering failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"charge", "market_data", "timeout"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered page is missing %q", want)
		}
	}
}

func TestNewTemplateManagerBadExternalDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	if _, err := NewTemplateManager(slog.Default(), &dir); err == nil {
		t.Error("expected an error for a missing external template directory")
	}
}
