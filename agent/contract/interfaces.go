package contract

import "context"

// Plugin wraps one platform's retrieval logic. Implementations report every
// internal failure as a failed RetrievalResult instead of panicking.
type Plugin interface {
	Name() string
	Retrieve(ctx context.Context, subQuery string) RetrievalResult
}

type Binding struct {
	Primary  Plugin
	Fallback Plugin
}

type Registry interface {
	Platforms() []PlatformInfo
	Lookup(id PlatformID) (Binding, bool)
}

type Router interface {
	Route(ctx context.Context, query Query, available []PlatformInfo, history []Step) (Decision, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, plan DispatchPlan) ([]RetrievalResult, error)
}

type SourceSummarizer interface {
	Summarize(ctx context.Context, query Query, result RetrievalResult) (SourceSummary, error)
}

type FinalSummarizer interface {
	Aggregate(ctx context.Context, query Query, summaries []SourceSummary) (FinalAnswer, error)
}
