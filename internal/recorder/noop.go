package recorder

import "cortex5/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(string, *model.Report) (int64, error) { return 0, nil }
func (n *NoopRecorder) RecordFailure(string, string, model.BacktestConfig, error) (int64, error) {
	return 0, nil
}
func (n *NoopRecorder) ListRuns(int) ([]RunSummary, error) { return nil, nil }
func (n *NoopRecorder) GetRun(int64) (*RunDetail, error)   { return nil, ErrNotFound }
func (n *NoopRecorder) Close() error                       { return nil }
