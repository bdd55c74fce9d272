// Package pipeline chains the four generation stages: product analysis,
// conversion description, CRO audit, and ad hooks.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/convert-iq/convertiq/internal/ai"
	"github.com/convert-iq/convertiq/internal/cache"
)

const (
	titleMaxLen  = 100
	bulletsMax   = 10
	bulletMinLen = 10
	defaultTitle = "Product Description"
)

// Stages selects which pipeline stages run. Later stages only run when
// every stage they depend on produced output.
type Stages struct {
	Analysis    bool
	Description bool
	Audit       bool
	AdHooks     bool
}

// AllStages enables the full chain.
func AllStages() Stages {
	return Stages{Analysis: true, Description: true, Audit: true, AdHooks: true}
}

// AnalysisOnly enables just the first stage.
func AnalysisOnly() Stages {
	return Stages{Analysis: true}
}

// Result accumulates the output of completed stages.
type Result struct {
	Title          string   `json:"title,omitempty"`
	Bullets        []string `json:"bullets,omitempty"`
	Description    string   `json:"description,omitempty"`
	Audit          string   `json:"audit,omitempty"`
	AdHooksAndTest string   `json:"ad_hooks_and_test,omitempty"`
}

// analysisOutput is the cacheable stage-1 payload.
type analysisOutput struct {
	RawAnalysis string `json:"raw_analysis"`
	ProductInfo string `json:"product_info"`
}

// Runner executes the staged generation chain against a single
// language-model generator, consulting the response cache for stage 1.
type Runner struct {
	generator ai.Generator
	cache     *cache.Store
}

// NewRunner constructs a Runner.
func NewRunner(generator ai.Generator, cacheStore *cache.Store) *Runner {
	return &Runner{generator: generator, cache: cacheStore}
}

// Run executes the enabled stages in order. Any stage failure aborts
// the remainder and surfaces as a single error; stages already
// completed are discarded with it.
func (r *Runner) Run(ctx context.Context, userID uint64, productInfo string, stages Stages) (Result, error) {
	var result Result

	var analysis *analysisOutput
	if stages.Analysis {
		var cached analysisOutput
		if r.cache.Get(ctx, userID, productInfo, &cached) && cached.RawAnalysis != "" {
			analysis = &cached
		} else {
			text, errGen := r.generator.Generate(ctx, ai.AnalysisPrompt(productInfo), ai.TemperatureAnalysis)
			if errGen != nil {
				return Result{}, fmt.Errorf("pipeline analysis stage: %w", errGen)
			}
			analysis = &analysisOutput{RawAnalysis: text, ProductInfo: productInfo}
			r.cache.Put(ctx, userID, productInfo, analysis)
		}
	}

	var description string
	if stages.Description && analysis != nil {
		text, errGen := r.generator.Generate(ctx, ai.DescriptionPrompt(analysis.RawAnalysis, productInfo), ai.TemperatureDescription)
		if errGen != nil {
			return Result{}, fmt.Errorf("pipeline description stage: %w", errGen)
		}
		description = text
		title, bullets := parseDescription(text)
		result.Title = title
		result.Bullets = bullets
		result.Description = text
	}

	var audit string
	if stages.Audit && description != "" {
		text, errGen := r.generator.Generate(ctx, ai.AuditPrompt(productInfo, description), ai.TemperatureAudit)
		if errGen != nil {
			return Result{}, fmt.Errorf("pipeline audit stage: %w", errGen)
		}
		audit = text
		result.Audit = text
	}

	if stages.AdHooks && description != "" && audit != "" {
		text, errGen := r.generator.Generate(ctx, ai.AdHooksPrompt(description, audit), ai.TemperatureAdHooks)
		if errGen != nil {
			return Result{}, fmt.Errorf("pipeline ad hooks stage: %w", errGen)
		}
		result.AdHooksAndTest = text
	}

	return result, nil
}

// bulletMarkers are the line prefixes recognized as bullets.
var bulletMarkers = []string{"-", "•", "*"}

// parseDescription extracts a title and cleaned bullet list from the raw
// stage-2 text.
func parseDescription(text string) (string, []string) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	title := defaultTitle
	if len(lines) > 0 {
		title = truncate(lines[0], titleMaxLen)
	}

	var bullets []string
	for _, line := range lines {
		marker := ""
		for _, m := range bulletMarkers {
			if strings.HasPrefix(line, m) {
				marker = m
				break
			}
		}
		if marker == "" {
			continue
		}
		clean := strings.TrimSpace(strings.ReplaceAll(strings.TrimPrefix(line, marker), "**", ""))
		if len(clean) > bulletMinLen {
			bullets = append(bullets, clean)
		}
	}
	if len(bullets) > bulletsMax {
		bullets = bullets[:bulletsMax]
	}
	return title, bullets
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
