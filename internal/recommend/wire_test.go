package recommend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cisec/aisac-logformat/pkg/types"
)

func TestOptionsFromWire(t *testing.T) {
	off := false
	got := OptionsFromWire(types.Options{
		MaxResults:            3,
		IncludePartialMatches: &off,
		GroupFilter:           "FIREWALL",
		TimeoutMs:             250,
	}, DefaultOptions())

	assert.Equal(t, 3, got.MaxResults)
	assert.False(t, got.IncludePartialMatches)
	assert.True(t, got.Parallel, "unset parallel keeps the default")
	assert.Equal(t, "FIREWALL", got.GroupFilter)
	assert.Equal(t, 250*time.Millisecond, got.Timeout)

	assert.Equal(t, DefaultOptions(), OptionsFromWire(types.Options{}, DefaultOptions()))
}

func TestOptionsWireRoundTrip(t *testing.T) {
	opts := DefaultOptions()
	opts.MinConfidence = 50
	opts.VendorFilter = "ACME"
	opts.Parallel = false

	assert.Equal(t, opts, OptionsFromWire(OptionsToWire(opts), Options{}))
}

func TestRecommendationWire(t *testing.T) {
	r := newRecommender(t, format("F1", "Firewall", `%{IP:src} -> %{IP:dst}`))
	recs, err := r.Recommend(context.Background(), arrowLine, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, recs, 1)

	w := recs[0].Wire()
	assert.Equal(t, 1, w.Rank)
	assert.Equal(t, "F1", w.Format.ID)
	assert.Equal(t, "Firewall", w.Format.Group)
	assert.Equal(t, 1, w.Format.PatternCount)
	assert.Equal(t, types.StatusComplete, w.Status)
	assert.Equal(t, 98.0, w.Confidence)
	assert.Equal(t, "F1_1", w.Template)
	assert.Equal(t, "Default", w.LogType)
	assert.Equal(t, map[string]string{"src": "10.0.0.1", "dst": "10.0.0.2"}, w.Fields)

	assert.Len(t, WireList(recs), 1)
}
