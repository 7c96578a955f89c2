package models

// Amount is a reported monetary figure
type Amount struct {
	Value     float64  `json:"value"`
	Unit      string   `json:"unit,omitempty"`
	YoYChange *float64 `json:"yoy_change,omitempty"` // fraction, 0.12 = 12%
}

// EPS is earnings per share against the consensus estimate
type EPS struct {
	Value           float64  `json:"value"`
	AnalystEstimate *float64 `json:"analyst_estimate,omitempty"`
	BeatEstimate    bool     `json:"beat_estimate"`
}

// Margin is an operating margin with its prior-period comparison
type Margin struct {
	Current  float64  `json:"current"`
	Previous *float64 `json:"previous,omitempty"`
	Trend    string   `json:"trend,omitempty"` // "improving" or "declining"
}

// Segment is one business segment's performance
type Segment struct {
	Revenue    float64  `json:"revenue"`
	GrowthRate *float64 `json:"growth_rate,omitempty"`
}

// Guidance is management's forward guidance
type Guidance struct {
	Q4RevenueRange []float64 `json:"q4_revenue_range,omitempty"`
	Q4EPSRange     []float64 `json:"q4_eps_range,omitempty"`
	FullYearGrowth []float64 `json:"full_year_growth,omitempty"`
}

// Metric sources
const (
	SourceModel   = "model"
	SourcePattern = "pattern"
)

// MetricsResult is written by the extraction step
type MetricsResult struct {
	Revenue         *Amount            `json:"revenue,omitempty"`
	NetIncome       *Amount            `json:"net_income,omitempty"`
	EPS             *EPS               `json:"eps,omitempty"`
	OperatingMargin *Margin            `json:"operating_margin,omitempty"`
	FreeCashFlow    *Amount            `json:"free_cash_flow,omitempty"`
	Segments        map[string]Segment `json:"segments,omitempty"`
	Guidance        *Guidance          `json:"guidance,omitempty"`
	Source          string             `json:"source,omitempty"`
}

// HasFinancials reports whether at least one headline figure was found
func (m *MetricsResult) HasFinancials() bool {
	if m == nil {
		return false
	}
	return m.Revenue != nil || m.NetIncome != nil || m.EPS != nil ||
		m.OperatingMargin != nil || m.FreeCashFlow != nil
}

// RevenueGrowth returns the YoY revenue change when known
func (m *MetricsResult) RevenueGrowth() (float64, bool) {
	if m == nil || m.Revenue == nil || m.Revenue.YoYChange == nil {
		return 0, false
	}
	return *m.Revenue.YoYChange, true
}

// CurrentMargin returns the current operating margin when known
func (m *MetricsResult) CurrentMargin() (float64, bool) {
	if m == nil || m.OperatingMargin == nil {
		return 0, false
	}
	return m.OperatingMargin.Current, true
}

// BeatEstimate reports whether EPS beat the analyst estimate
func (m *MetricsResult) BeatEstimate() bool {
	return m != nil && m.EPS != nil && m.EPS.BeatEstimate
}
