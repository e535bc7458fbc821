package holiday

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateEaster(t *testing.T) {
	tests := []struct {
		year int
		want string
	}{
		{2024, "2024-03-31"},
		{2025, "2025-04-20"},
		{2026, "2026-04-05"},
	}
	for _, tt := range tests {
		got := formatDateFromTime(calculateEaster(tt.year))
		if got != tt.want {
			t.Errorf("calculateEaster(%d) = %s, want %s", tt.year, got, tt.want)
		}
	}
}

func TestNRWHolidays(t *testing.T) {
	p, err := ForRegion("DE-NRW")
	require.NoError(t, err)

	byDate := map[string]string{}
	for _, h := range p.Holidays(2025) {
		byDate[h.Date] = h.Name
	}
	assert.Len(t, byDate, 11)
	assert.Equal(t, "Karfreitag", byDate["2025-04-18"])
	assert.Equal(t, "Ostermontag", byDate["2025-04-21"])
	assert.Equal(t, "Christi Himmelfahrt", byDate["2025-05-29"])
	assert.Equal(t, "Pfingstmontag", byDate["2025-06-09"])
	assert.Equal(t, "Fronleichnam", byDate["2025-06-19"])
}

func TestUSHolidays(t *testing.T) {
	p, err := ForRegion("us")
	require.NoError(t, err)

	byName := map[string]string{}
	for _, h := range p.Holidays(2024) {
		byName[h.Name] = h.Date
	}
	assert.Equal(t, "2024-01-15", byName["Martin Luther King Jr. Day"])
	assert.Equal(t, "2024-05-27", byName["Memorial Day"])
	assert.Equal(t, "2024-09-02", byName["Labor Day"])
	assert.Equal(t, "2024-11-28", byName["Thanksgiving Day"])
}

func TestForRegionUnknown(t *testing.T) {
	_, err := ForRegion("atlantis")
	assert.Error(t, err)
}

func TestInRangeSpansYears(t *testing.T) {
	p, _ := ForRegion("de-nrw")
	start := time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)

	events := InRange(p, start, end, time.UTC)
	require.Len(t, events, 3)
	assert.Equal(t, "holiday-de-nrw-2024-12-25", events[0].ID)
	assert.Equal(t, "2. Weihnachtstag", events[1].Title)
	assert.Equal(t, "Neujahr", events[2].Title)
	for _, ev := range events {
		assert.True(t, ev.AllDay)
		assert.Nil(t, ev.Recurring)
		assert.Equal(t, 24*time.Hour, ev.End.Sub(ev.Start))
	}
}

func TestInRangeIncludesDayStraddlingWindowStart(t *testing.T) {
	p, _ := ForRegion("de-nrw")
	start := time.Date(2025, 12, 25, 15, 0, 0, 0, time.UTC)
	end := time.Date(2025, 12, 25, 18, 0, 0, 0, time.UTC)

	events := InRange(p, start, end, time.UTC)
	require.Len(t, events, 1)
	assert.Equal(t, "1. Weihnachtstag", events[0].Title)
}
