package ai

import "fmt"

// Stage temperatures tuned per prompt.
const (
	TemperatureAnalysis    = 0.6
	TemperatureDescription = 0.8
	TemperatureAudit       = 0.4
	TemperatureAdHooks     = 0.8
)

// AnalysisPrompt builds the stage-1 product analysis prompt.
func AnalysisPrompt(productInfo string) []Message {
	prompt := fmt.Sprintf(`
Analyze the product information below and extract:

1. Product type
2. Target customer persona
3. Primary problem solved
4. Top 3 emotional triggers
5. Likely objections
6. Price sensitivity (low / medium / high)
7. One-sentence core value proposition

Product information:
%s

Return structured sections.
`, productInfo)
	return []Message{
		{Role: "system", Content: "You are an expert eCommerce product analyst."},
		{Role: "user", Content: prompt},
	}
}

// DescriptionPrompt builds the stage-2 product description prompt.
func DescriptionPrompt(analysis, productInfo string) []Message {
	prompt := fmt.Sprintf(`
Using the product understanding below, write a HIGH-CONVERTING product description.

RULES:
- Conversion-focused
- No buzzwords
- Skimmable
- Shopify-ready

STRUCTURE:
1. Hook headline
2. Emotional opener
3. Feature → Benefit bullets (min 5)
4. Objection handling
5. Social proof placeholder
6. Clear CTA

Product Understanding:
%s

Original Product Info:
%s
`, analysis, productInfo)
	return []Message{
		{Role: "system", Content: "You are a high-converting eCommerce copywriter."},
		{Role: "user", Content: prompt},
	}
}

// AuditPrompt builds the stage-3 conversion audit prompt.
func AuditPrompt(productInfo, description string) []Message {
	prompt := fmt.Sprintf(`
Act as a CRO expert.

Give EXACTLY 5 bullets:
1. Confusion points
2. Missing conversion elements
3. Trust weaknesses
4. What to move higher
5. One test to run first

Original Product Info:
%s

Optimized Description:
%s
`, productInfo, description)
	return []Message{
		{Role: "system", Content: "You are a CRO expert. Be blunt."},
		{Role: "user", Content: prompt},
	}
}

// AdHooksPrompt builds the stage-4 ad hooks and A/B test prompt.
func AdHooksPrompt(description, audit string) []Message {
	prompt := fmt.Sprintf(`
Generate:

SECTION A — Ad Hooks
- 5 hooks
- 3 angles: Problem, Desire, Proof

SECTION B — A/B Test
- One test
- Why it works (≤3 lines)

Rules:
- No emojis
- Facebook/Instagram tone

Description:
%s

Audit:
%s
`, description, audit)
	return []Message{
		{Role: "system", Content: "You are a paid ads and A/B testing expert."},
		{Role: "user", Content: prompt},
	}
}
