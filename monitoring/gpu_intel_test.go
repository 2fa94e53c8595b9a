package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const intelSample = `{
	"engines": {
		"Render/3D": {"busy": 42.5, "unit": "%"},
		"Video": {"busy": 7.0, "unit": "%"}
	},
	"clients": {
		"4293542249": {
			"name": "glxgears",
			"pid": "4242",
			"engine-classes": {
				"Render/3D": {"busy": "55.0", "unit": "%"},
				"Video": {"busy": "2.5", "unit": "%"}
			}
		}
	}
}`

var intelCmd = []string{"sudo", "-n", "timeout", "1", "intel_gpu_top", "-J", "-o", "-"}

func TestIntelProcessesAndTotals(t *testing.T) {
	runner := newFakeRunner()
	runner.set(intelSample, intelCmd...)

	provider := NewIntelProvider(runner)

	processes := provider.Processes()
	require.Len(t, processes, 1)
	client := processes[4242]
	assert.Equal(t, 55.0, client.Usage)
	assert.Equal(t, 2.5, client.Encoding)
	assert.Equal(t, 2.5, client.Decoding)
	assert.Equal(t, VendorIntel, client.Vendor)

	totals := provider.Totals()
	assert.Equal(t, 42.5, totals.Usage)
	assert.Equal(t, 7.0, totals.Encoding)
}

func TestIntelTruncatedJSONRecovery(t *testing.T) {
	// intel_gpu_top streams a JSON array and gets cut off by timeout;
	// the last complete sample must still parse.
	truncated := "[\n" + intelSample + `,
	{
		"engines": {
			"Render/3D": {"busy": 99`

	runner := newFakeRunner()
	runner.set(truncated, intelCmd...)

	provider := NewIntelProvider(runner)
	totals := provider.Totals()
	assert.Equal(t, 42.5, totals.Usage)

	processes := provider.Processes()
	require.Len(t, processes, 1)
	assert.Equal(t, 55.0, processes[4242].Usage)
}

func TestIntelSampleCache(t *testing.T) {
	runner := newFakeRunner()
	runner.set(intelSample, intelCmd...)

	provider := NewIntelProvider(runner)
	baseTime := time.Now()
	provider.now = func() time.Time { return baseTime }

	provider.Processes()
	provider.Totals()
	provider.Processes()
	assert.Equal(t, 1, runner.callCount(intelCmd...), "fresh cache must not re-run the tool")

	baseTime = baseTime.Add(intelCacheTTL + time.Millisecond)
	provider.Totals()
	assert.Equal(t, 2, runner.callCount(intelCmd...), "expired cache must refresh")
}

func TestIntelUnparseableOutputKeepsLastGood(t *testing.T) {
	runner := newFakeRunner()
	runner.set(intelSample, intelCmd...)

	provider := NewIntelProvider(runner)
	baseTime := time.Now()
	provider.now = func() time.Time { return baseTime }

	require.NotEmpty(t, provider.Processes())

	runner.set("not json at all", intelCmd...)
	baseTime = baseTime.Add(intelCacheTTL + time.Millisecond)
	// Garbage output falls back to the previous sample.
	assert.NotEmpty(t, provider.Processes())
}

func TestLastCompleteObject(t *testing.T) {
	t.Run("braces inside strings are skipped", func(t *testing.T) {
		in := `{"a": "{not a brace}", "b": 1}`
		assert.Equal(t, in, lastCompleteObject(in))
	})

	t.Run("no complete object", func(t *testing.T) {
		assert.Equal(t, "", lastCompleteObject(`{"a": 1`))
	})
}
