package metrics

// EvaluationSource labels where a flag decision came from.
const (
	SourceCache   = "cache"
	SourceStore   = "store"
	SourceDefault = "default"
)

// Observer receives counters from the evaluator, the rollback coordinator
// and the rollout monitor. The prometheus implementation is used in the
// server; tests pass a nop.
type Observer interface {
	RecordEvaluation(source string)
	RecordCacheInvalidation(removed int)
	RecordRollback(strategy string)
	SetFlagCounts(total, enabled, partialRollout int)
}

type nopObserver struct{}

func (nopObserver) RecordEvaluation(string)     {}
func (nopObserver) RecordCacheInvalidation(int) {}
func (nopObserver) RecordRollback(string)       {}
func (nopObserver) SetFlagCounts(_, _, _ int)   {}

// NewNopObserver returns an Observer that discards everything.
func NewNopObserver() Observer {
	return nopObserver{}
}
