package interfaces

import (
	"context"

	"github.com/ternarybob/tally/internal/models"
)

// AnalysisService runs the earnings analysis pipeline over one report.
//
// Ordinary step failures never surface as an error: they are recorded in
// AnalysisResult.Errors and the run still returns whatever was produced.
// Only invalid input (*models.InvalidInputError), context cancellation and
// step defects (*models.StepContractViolation) are returned as errors.
//
// Example Usage:
//
//	result, err := analysis.Analyze(ctx, reportText, models.RunOptions{})
//	if err != nil {
//	    // invalid input or a defect
//	}
//	fmt.Println(result.RunMetadata.Status, result.Summary.Recommendation)
type AnalysisService interface {
	// Analyze runs extraction, sentiment and summarization over the report text
	Analyze(ctx context.Context, reportText string, options models.RunOptions) (*models.AnalysisResult, error)

	// Steps lists the registered steps in execution order
	Steps() []models.StepInfo
}

// ReportLoader reads report text from a file
type ReportLoader interface {
	// Load returns the report text at path. HTML is converted to markdown.
	Load(ctx context.Context, path string) (string, error)
}
