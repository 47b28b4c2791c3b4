package orchestratornode

const (
	NodeValidateRequest = "validate_request"
	NodeRoute           = "route"
	NodeDispatch        = "dispatch"
	NodeSummarize       = "summarize"
	NodeDecide          = "decide"
	NodeFinalize        = "finalize"
	NodeRecordSession   = "record_session"
)

// AfterRoute goes to dispatch unless routing ended the session.
func AfterRoute(in *GraphState) string {
	if in.Stop != "" {
		return NodeFinalize
	}
	return NodeDispatch
}

// AfterDispatch skips summarization when the round produced no ok result.
func AfterDispatch(in *GraphState) string {
	if in.Stop != "" {
		return NodeFinalize
	}
	for _, r := range in.Round {
		if r.OK() {
			return NodeSummarize
		}
	}
	return NodeFinalize
}

// AfterDecide loops back to route while a pending plan exists.
func AfterDecide(in *GraphState) string {
	if in.Stop == "" && in.Pending != nil {
		return NodeRoute
	}
	return NodeFinalize
}
