package main

import (
	"fmt"
	"strings"

	"github.com/ternarybob/tally/internal/models"
)

// formatSteps renders the step listing as markdown
func formatSteps(steps []models.StepInfo) string {
	var sb strings.Builder
	sb.WriteString("# Analysis steps\n\n")
	for _, step := range steps {
		fmt.Fprintf(&sb, "%d. **%s** - %s\n", step.Order, step.Name, step.Description)
	}
	return sb.String()
}
