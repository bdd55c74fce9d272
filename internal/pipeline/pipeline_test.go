package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/convert-iq/convertiq/internal/ai"
	"github.com/convert-iq/convertiq/internal/cache"
	"github.com/convert-iq/convertiq/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGenerator returns canned responses in order and records the
// temperature of each call.
type stubGenerator struct {
	responses []string
	errs      []error
	calls     int
	temps     []float64
}

func (g *stubGenerator) Generate(_ context.Context, _ []ai.Message, temperature float64) (string, error) {
	idx := g.calls
	g.calls++
	g.temps = append(g.temps, temperature)
	if idx < len(g.errs) && g.errs[idx] != nil {
		return "", g.errs[idx]
	}
	if idx < len(g.responses) {
		return g.responses[idx], nil
	}
	return "", errors.New("unexpected call")
}

func newTestRunner(gen ai.Generator) *Runner {
	return NewRunner(gen, cache.New(config.RedisConfig{}))
}

const sampleDescription = `Ultra Comfort Running Shoes
- Breathable **mesh upper** keeps feet cool on long runs
- short
• Cushioned midsole absorbs impact with every stride
* Durable rubber outsole grips wet and dry surfaces
Just a plain paragraph line.`

func TestRun_FullChain(t *testing.T) {
	gen := &stubGenerator{responses: []string{"analysis text", sampleDescription, "audit text", "hooks text"}}
	runner := newTestRunner(gen)

	result, errRun := runner.Run(context.Background(), 1, "running shoes", AllStages())
	require.NoError(t, errRun)

	assert.Equal(t, 4, gen.calls)
	assert.Equal(t, []float64{ai.TemperatureAnalysis, ai.TemperatureDescription, ai.TemperatureAudit, ai.TemperatureAdHooks}, gen.temps)
	assert.Equal(t, "Ultra Comfort Running Shoes", result.Title)
	assert.Equal(t, []string{
		"Breathable mesh upper keeps feet cool on long runs",
		"Cushioned midsole absorbs impact with every stride",
		"Durable rubber outsole grips wet and dry surfaces",
	}, result.Bullets)
	assert.Equal(t, sampleDescription, result.Description)
	assert.Equal(t, "audit text", result.Audit)
	assert.Equal(t, "hooks text", result.AdHooksAndTest)
}

func TestRun_AnalysisOnly(t *testing.T) {
	gen := &stubGenerator{responses: []string{"analysis text"}}
	runner := newTestRunner(gen)

	result, errRun := runner.Run(context.Background(), 1, "running shoes", AnalysisOnly())
	require.NoError(t, errRun)

	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, Result{}, result)
}

func TestRun_AnalysisCached(t *testing.T) {
	gen := &stubGenerator{responses: []string{"analysis text", sampleDescription, "audit text", "hooks text"}}
	store := cache.New(config.RedisConfig{})
	runner := NewRunner(gen, store)

	_, errFirst := runner.Run(context.Background(), 7, "running shoes", AnalysisOnly())
	require.NoError(t, errFirst)
	require.Equal(t, 1, gen.calls)

	// Second run reuses the cached analysis and only generates the
	// later stages.
	result, errSecond := runner.Run(context.Background(), 7, "running shoes", AllStages())
	require.NoError(t, errSecond)
	assert.Equal(t, 4, gen.calls)
	assert.Equal(t, "Ultra Comfort Running Shoes", result.Title)
}

func TestRun_CacheIsPerUserAndInput(t *testing.T) {
	gen := &stubGenerator{responses: []string{"analysis a", "analysis b", "analysis c"}}
	store := cache.New(config.RedisConfig{})
	runner := NewRunner(gen, store)

	_, errA := runner.Run(context.Background(), 1, "shoes", AnalysisOnly())
	require.NoError(t, errA)
	_, errB := runner.Run(context.Background(), 2, "shoes", AnalysisOnly())
	require.NoError(t, errB)
	_, errC := runner.Run(context.Background(), 1, "hats", AnalysisOnly())
	require.NoError(t, errC)

	assert.Equal(t, 3, gen.calls)
}

func TestRun_StageFailureAborts(t *testing.T) {
	gen := &stubGenerator{
		responses: []string{"analysis text", ""},
		errs:      []error{nil, errors.New("model down")},
	}
	runner := newTestRunner(gen)

	result, errRun := runner.Run(context.Background(), 1, "running shoes", AllStages())
	require.Error(t, errRun)
	assert.Contains(t, errRun.Error(), "description stage")
	assert.Equal(t, Result{}, result)
	assert.Equal(t, 2, gen.calls)
}

func TestRun_LaterStagesNeedDependencies(t *testing.T) {
	gen := &stubGenerator{responses: []string{"analysis text"}}
	runner := newTestRunner(gen)

	// Audit and ad hooks require a description; without it they are
	// silently skipped.
	result, errRun := runner.Run(context.Background(), 1, "running shoes", Stages{Analysis: true, Audit: true, AdHooks: true})
	require.NoError(t, errRun)
	assert.Equal(t, 1, gen.calls)
	assert.Empty(t, result.Audit)
	assert.Empty(t, result.AdHooksAndTest)
}

func TestParseDescription(t *testing.T) {
	title, bullets := parseDescription("")
	assert.Equal(t, "Product Description", title)
	assert.Empty(t, bullets)

	long := strings.Repeat("x", 150)
	title, _ = parseDescription(long)
	assert.Len(t, title, 100)

	var sb strings.Builder
	sb.WriteString("Title line\n")
	for i := 0; i < 15; i++ {
		sb.WriteString("- this bullet line is long enough to keep\n")
	}
	_, bullets = parseDescription(sb.String())
	assert.Len(t, bullets, 10)
}
