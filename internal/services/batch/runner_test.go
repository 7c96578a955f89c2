package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tally/internal/models"
)

type mapLoader map[string]string

func (m mapLoader) Load(ctx context.Context, path string) (string, error) {
	text, ok := m[path]
	if !ok {
		return "", fmt.Errorf("report not found: %w", fs.ErrNotExist)
	}
	return text, nil
}

// countingAnalysis records peak concurrency and echoes the text as the run id
type countingAnalysis struct {
	active atomic.Int32
	peak   atomic.Int32
	mu     sync.Mutex
	texts  []string
}

func (c *countingAnalysis) Analyze(ctx context.Context, text string, options models.RunOptions) (*models.AnalysisResult, error) {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()

	if text == "" {
		return nil, &models.InvalidInputError{Field: "report_text", Reason: "must not be empty"}
	}
	return &models.AnalysisResult{
		RunMetadata: models.RunMetadata{RunID: "run_" + text, Status: models.RunStatusSuccess},
	}, nil
}

func (c *countingAnalysis) Steps() []models.StepInfo { return nil }

func TestRunner_Run(t *testing.T) {
	loader := mapLoader{}
	var paths []string
	for i := 0; i < 12; i++ {
		path := fmt.Sprintf("q%d.txt", i)
		loader[path] = fmt.Sprintf("report-%d", i)
		paths = append(paths, path)
	}
	paths = append(paths, "missing.txt")
	loader["empty.txt"] = ""
	paths = append(paths, "empty.txt")

	analysis := &countingAnalysis{}
	runner := NewRunner(analysis, loader, 3, arbor.NewLogger())

	items := runner.Run(context.Background(), paths, models.RunOptions{})

	require.Len(t, items, len(paths))
	for i := 0; i < 12; i++ {
		assert.Equal(t, paths[i], items[i].Path)
		require.NoError(t, items[i].Err)
		assert.Equal(t, fmt.Sprintf("run_report-%d", i), items[i].Result.RunMetadata.RunID)
	}

	assert.True(t, errors.Is(items[12].Err, fs.ErrNotExist))
	assert.Nil(t, items[12].Result)

	var invalid *models.InvalidInputError
	assert.True(t, errors.As(items[13].Err, &invalid))
	assert.NotEmpty(t, items[13].Error)

	assert.LessOrEqual(t, int(analysis.peak.Load()), 3)
	assert.Len(t, analysis.texts, 13)
}

func TestRunner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	analysis := &countingAnalysis{}
	runner := NewRunner(analysis, mapLoader{"a.txt": "a", "b.txt": "b"}, 2, arbor.NewLogger())

	items := runner.Run(ctx, []string{"a.txt", "b.txt"}, models.RunOptions{})

	for _, item := range items {
		assert.ErrorIs(t, item.Err, context.Canceled)
	}
	assert.Empty(t, analysis.texts)
}

func TestRunner_Empty(t *testing.T) {
	runner := NewRunner(&countingAnalysis{}, mapLoader{}, 0, arbor.NewLogger())
	assert.Empty(t, runner.Run(context.Background(), nil, models.RunOptions{}))
}

func TestRunner_WorkerLimit(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		reports int
	}{
		{name: "single worker", workers: 1, reports: 5},
		{name: "fewer reports than workers", workers: 8, reports: 3},
		{name: "default pool", workers: 0, reports: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := mapLoader{}
			paths := make([]string, 0, tt.reports+1)
			for i := 0; i < tt.reports; i++ {
				path := fmt.Sprintf("r%d.txt", i)
				loader[path] = path
				paths = append(paths, path)
			}
			// A rejected report in the middle must not stop the rest
			paths = append(paths[:1], append([]string{"missing.txt"}, paths[1:]...)...)

			analysis := &countingAnalysis{}
			runner := NewRunner(analysis, loader, tt.workers, arbor.NewLogger())
			items := runner.Run(context.Background(), paths, models.RunOptions{})

			limit := tt.workers
			if limit <= 0 {
				limit = 4
			}
			assert.LessOrEqual(t, int(analysis.peak.Load()), limit)
			assert.Len(t, analysis.texts, tt.reports)

			require.Len(t, items, len(paths))
			assert.ErrorIs(t, items[1].Err, fs.ErrNotExist)
			for i, item := range items {
				assert.Equal(t, paths[i], item.Path)
				if i != 1 {
					require.NoError(t, item.Err)
					assert.Equal(t, "run_"+paths[i], item.Result.RunMetadata.RunID)
				}
			}
		})
	}
}
