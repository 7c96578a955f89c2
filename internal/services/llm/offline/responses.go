package offline

// Canned responses. They describe a strong quarter so the default pipeline
// output exercises every field.

const metricsResponse = `{
  "revenue": {"value": 15.2, "unit": "billion USD", "yoy_change": 0.12},
  "net_income": {"value": 3.8, "unit": "billion USD", "yoy_change": 0.18},
  "eps": {"value": 4.52, "analyst_estimate": 4.30, "beat_estimate": true},
  "operating_margin": {"current": 0.285, "previous": 0.262, "trend": "improving"},
  "free_cash_flow": {"value": 4.1, "unit": "billion USD", "yoy_change": 0.22},
  "segments": {
    "cloud_services": {"revenue": 6.8, "growth_rate": 0.35},
    "software_products": {"revenue": 5.1, "growth_rate": 0.08},
    "hardware": {"revenue": 3.3, "growth_rate": -0.02}
  },
  "guidance": {
    "q4_revenue_range": [16.0, 16.5],
    "q4_eps_range": [4.70, 4.85],
    "full_year_growth": [0.14, 0.15]
  }
}`

const sentimentResponse = `{
  "overall_sentiment": "positive",
  "confidence": 0.85,
  "management_tone": "optimistic_cautious",
  "key_positive_indicators": [
    "exceeded expectations across all key metrics",
    "remarkable strength in cloud services",
    "strong balance sheet and cash generation"
  ],
  "key_negative_indicators": [
    "hardware division revenue decline",
    "macroeconomic uncertainties"
  ],
  "risk_factors_identified": [
    "increasing cloud market competition",
    "regulatory scrutiny",
    "foreign exchange volatility"
  ]
}`

const summaryResponse = `{
  "headline": "Strong Quarter Driven by Cloud Growth",
  "summary": "Revenue grew 12% year over year to $15.2B with net income up 18% to $3.8B. Cloud services led with 35% growth while hardware declined slightly. Operating margin expanded to 28.5% and management guided Q4 revenue to $16.0B-$16.5B.",
  "key_takeaways": [
    "EPS of $4.52 beat the $4.30 estimate",
    "Operating margin expanded 2.3 points",
    "Hardware remains a drag"
  ]
}`
