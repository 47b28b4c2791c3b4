package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/router.txt
	routerRaw string

	//go:embed template/source_summary.txt
	sourceSummaryRaw string

	//go:embed template/final_summary.txt
	finalSummaryRaw string
)

// PromptSet holds the system prompts of every LLM-backed component.
// Literal braces are doubled because prompts are rendered as FString templates.
type PromptSet struct {
	Router        string
	SourceSummary string
	FinalSummary  string
}

func LoadPromptSet() PromptSet {
	return PromptSet{
		Router:        strings.TrimSpace(routerRaw),
		SourceSummary: strings.TrimSpace(sourceSummaryRaw),
		FinalSummary:  strings.TrimSpace(finalSummaryRaw),
	}
}
