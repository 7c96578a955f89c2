package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the settings that shape a run
func PrintBanner(cfg *Config, logger arbor.ILogger) {
	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorCyan).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(60)

	b.PrintTopLine()
	b.PrintCenteredText("TALLY")
	b.PrintCenteredText("Earnings report analysis")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", GetVersion(), 12)
	b.PrintKeyValue("Provider", string(cfg.LLM.DefaultProvider), 12)
	b.PrintKeyValue("Address", address, 12)
	b.PrintBottomLine()

	logger.Info().
		Str("version", GetVersion()).
		Str("environment", cfg.Environment).
		Str("provider", string(cfg.LLM.DefaultProvider)).
		Str("address", address).
		Int("max_retries", cfg.Pipeline.MaxRetries).
		Str("run_budget", cfg.Pipeline.RunBudget).
		Msg("Tally starting")
}
