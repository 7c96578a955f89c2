package agents

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/tally/internal/models"
)

// Regex fallback used when the model output cannot be parsed. Only figures
// actually present in the text are reported.

var (
	revenuePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\brevenues?\b[^$\n]{0,40}\$(\d+(?:\.\d+)?)\s*(billion|million|bn|b|m)?\b`),
		regexp.MustCompile(`(?i)\$(\d+(?:\.\d+)?)\s*(billion)`),
	}
	netIncomePattern    = regexp.MustCompile(`(?i)\bnet\s+income\b[^$\d\n]{0,20}\$?(\d+(?:\.\d+)?)\s*(billion|million|bn|b|m)?\b`)
	epsPattern          = regexp.MustCompile(`(?i)(?:earnings\s+per\s+share|\bEPS\b)[^$\d\n]{0,30}\$?(\d+(?:\.\d+)?)`)
	estimatePattern     = regexp.MustCompile(`(?i)\b(?:estimates?|consensus|expectations?)\b[^$\d\n]{0,20}\$?(\d+(?:\.\d+)?)`)
	marginPattern       = regexp.MustCompile(`(?i)\boperating\s+margins?\b[^\d\n]{0,30}(\d+(?:\.\d+)?)\s*(%?)`)
	previousPattern     = regexp.MustCompile(`(?i)\b(?:from|previous(?:ly)?|prior|compared\s+(?:to|with)|vs\.?|versus)[^\d\n]{0,20}(\d+(?:\.\d+)?)\s*(%?)`)
	freeCashFlowPattern = regexp.MustCompile(`(?i)\bfree\s+cash\s+flow\b[^$\d\n]{0,20}\$?(\d+(?:\.\d+)?)\s*(billion|million|bn|b|m)?\b`)

	// growthVerbPattern captures "up 12%", "declined 3%" and similar
	growthVerbPattern = regexp.MustCompile(`(?i)\b(up|down|grew|rose|fell|declined|increased|decreased|growth\s+of|decline\s+of)\s+(?:by\s+)?(\d+(?:\.\d+)?)%`)
	// growthSignedPattern captures "+12% YoY" and "-2% year-over-year"
	growthSignedPattern = regexp.MustCompile(`(?i)([+-]?\d+(?:\.\d+)?)%\s*(?:YoY|y/y|year[- ]over[- ]year)`)

	q4RevenuePattern      = regexp.MustCompile(`(?i)\bQ4\b[^\n]{0,80}?\brevenue\b[^$\d\n]{0,30}\$?(\d+(?:\.\d+)?)\s*(?:billion|bn|b)?\s*(?:-|–|to|and)\s*\$?(\d+(?:\.\d+)?)`)
	q4EPSPattern          = regexp.MustCompile(`(?i)\bQ4\b[^\n]{0,120}?\bEPS\b[^$\d\n]{0,30}\$?(\d+(?:\.\d+)?)\s*(?:-|–|to|and)\s*\$?(\d+(?:\.\d+)?)`)
	fullYearGrowthPattern = regexp.MustCompile(`(?i)\bfull[- ]year\b[^\n]{0,80}?\bgrowth\b[^\d\n]{0,30}(\d+(?:\.\d+)?)\s*%?\s*(?:-|–|to|and)\s*(\d+(?:\.\d+)?)\s*%`)
)

// segmentRule maps a segment key to the words that introduce it in a report
type segmentRule struct {
	key     string
	pattern *regexp.Regexp
}

var segmentRules = []segmentRule{
	{key: "cloud_services", pattern: regexp.MustCompile(`(?i)\bcloud\b[^$\n]{0,60}\$(\d+(?:\.\d+)?)\s*(?:billion|bn|b)\b`)},
	{key: "software_products", pattern: regexp.MustCompile(`(?i)\bsoftware\b[^$\n]{0,60}\$(\d+(?:\.\d+)?)\s*(?:billion|bn|b)\b`)},
	{key: "hardware", pattern: regexp.MustCompile(`(?i)\bhardware\b[^$\n]{0,60}\$(\d+(?:\.\d+)?)\s*(?:billion|bn|b)\b`)},
}

// ExtractMetricsFromText pulls the headline figures out of report text
func ExtractMetricsFromText(text string) *models.MetricsResult {
	metrics := &models.MetricsResult{Source: models.SourcePattern}

	for _, pattern := range revenuePatterns {
		if loc := pattern.FindStringSubmatchIndex(text); loc != nil {
			metrics.Revenue = amountAt(text, loc)
			break
		}
	}

	if loc := netIncomePattern.FindStringSubmatchIndex(text); loc != nil {
		metrics.NetIncome = amountAt(text, loc)
	}

	if loc := epsPattern.FindStringSubmatchIndex(text); loc != nil {
		eps := &models.EPS{Value: parseFloat(text[loc[2]:loc[3]])}
		if m := estimatePattern.FindStringSubmatch(clauseAfter(text, loc[1])); m != nil {
			estimate := parseFloat(m[1])
			eps.AnalystEstimate = &estimate
			eps.BeatEstimate = eps.Value > estimate
		}
		metrics.EPS = eps
	}

	if loc := marginPattern.FindStringSubmatchIndex(text); loc != nil {
		margin := &models.Margin{Current: toFraction(parseFloat(text[loc[2]:loc[3]]))}
		if m := previousPattern.FindStringSubmatch(clauseAfter(text, loc[1])); m != nil {
			previous := toFraction(parseFloat(m[1]))
			margin.Previous = &previous
		}
		margin.Trend = marginTrend(margin)
		metrics.OperatingMargin = margin
	}

	if loc := freeCashFlowPattern.FindStringSubmatchIndex(text); loc != nil {
		metrics.FreeCashFlow = amountAt(text, loc)
	}

	for _, rule := range segmentRules {
		loc := rule.pattern.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		segment := models.Segment{Revenue: parseFloat(text[loc[2]:loc[3]])}
		if growth, ok := growthIn(clauseAfter(text, loc[1])); ok {
			segment.GrowthRate = &growth
		}
		if metrics.Segments == nil {
			metrics.Segments = map[string]models.Segment{}
		}
		metrics.Segments[rule.key] = segment
	}

	guidance := &models.Guidance{
		Q4RevenueRange: rangeFrom(q4RevenuePattern, text, false),
		Q4EPSRange:     rangeFrom(q4EPSPattern, text, false),
		FullYearGrowth: rangeFrom(fullYearGrowthPattern, text, true),
	}
	if guidance.Q4RevenueRange != nil || guidance.Q4EPSRange != nil || guidance.FullYearGrowth != nil {
		metrics.Guidance = guidance
	}

	return metrics
}

// amountAt builds an Amount from a match with value and optional unit groups,
// reading the YoY change from the rest of the clause.
func amountAt(text string, loc []int) *models.Amount {
	amount := &models.Amount{
		Value: parseFloat(text[loc[2]:loc[3]]),
		Unit:  "billion USD",
	}
	if len(loc) > 5 && loc[4] >= 0 {
		switch strings.ToLower(text[loc[4]:loc[5]]) {
		case "million", "m":
			amount.Unit = "million USD"
		}
	}
	if growth, ok := growthIn(clauseAfter(text, loc[1])); ok {
		amount.YoYChange = &growth
	}
	return amount
}

// growthIn finds the first growth figure in a clause as a signed fraction
func growthIn(clause string) (float64, bool) {
	if m := growthVerbPattern.FindStringSubmatch(clause); m != nil {
		value := parseFloat(m[2]) / 100
		switch strings.ToLower(strings.Fields(m[1])[0]) {
		case "down", "fell", "declined", "decreased", "decline":
			value = -value
		}
		return value, true
	}
	if m := growthSignedPattern.FindStringSubmatch(clause); m != nil {
		return parseFloat(m[1]) / 100, true
	}
	return 0, false
}

// clauseAfter returns the text following pos up to the end of its clause
func clauseAfter(text string, pos int) string {
	const maxClause = 160
	rest := text[pos:]
	if len(rest) > maxClause {
		rest = rest[:maxClause]
	}
	for _, sep := range []string{";", "\n", ". "} {
		if i := strings.Index(rest, sep); i >= 0 {
			rest = rest[:i]
		}
	}
	return rest
}

func rangeFrom(pattern *regexp.Regexp, text string, percent bool) []float64 {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	low, high := parseFloat(m[1]), parseFloat(m[2])
	if percent {
		low, high = toFraction(low), toFraction(high)
	}
	if low > high {
		low, high = high, low
	}
	return []float64{low, high}
}

func marginTrend(m *models.Margin) string {
	if m.Previous == nil || m.Current >= *m.Previous {
		return "improving"
	}
	return "declining"
}

// toFraction normalises a percentage written as 12 or 12.5 to 0.12 or 0.125
func toFraction(v float64) float64 {
	if v > 1 {
		return v / 100
	}
	return v
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
