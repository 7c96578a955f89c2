package agents

import (
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tally/internal/models"
)

// Coordinator checks the entry input and plans the run
type Coordinator struct {
	logger arbor.ILogger
}

// NewCoordinator creates the coordinator
func NewCoordinator(logger arbor.ILogger) *Coordinator {
	return &Coordinator{logger: logger}
}

func (c *Coordinator) Name() models.StepName {
	return models.StepCoordinator
}

func (c *Coordinator) Description() string {
	return "Validates the report input and plans step execution"
}

// Plan returns the execution plan, or InvalidInputError for blank text
func (c *Coordinator) Plan(reportText string, options models.RunOptions, parallel bool, maxRetries int) (*models.ExecutionPlan, error) {
	if strings.TrimSpace(reportText) == "" {
		return nil, &models.InvalidInputError{Field: "report_text", Reason: "must not be empty"}
	}
	if err := validate.Struct(options); err != nil {
		return nil, &models.InvalidInputError{Field: "options", Reason: err.Error()}
	}

	if options.MaxRetries != nil {
		maxRetries = *options.MaxRetries
	}
	if options.ParallelIndependent != nil {
		parallel = *options.ParallelIndependent
	}

	plan := &models.ExecutionPlan{
		Steps:         models.PipelineSteps(),
		ReportLength:  len(reportText),
		InitializedAt: time.Now(),
		Parallel:      parallel,
		MaxRetries:    maxRetries,
	}

	c.logger.Debug().
		Int("report_length", plan.ReportLength).
		Int("max_retries", plan.MaxRetries).
		Bool("parallel", plan.Parallel).
		Msg("Execution plan ready")

	return plan, nil
}
