package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
)

func askCMD() *cobra.Command {
	var lang, domain string
	var asJSON bool
	ask := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print the cited answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			answer, err := a.orchestrator.AskQuery(cmd.Context(), contractx.NewQuery(strings.Join(args, " "), lang, domain))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(answer)
			}
			printAnswer(out, answer)
			return nil
		},
	}
	ask.Flags().StringVar(&lang, "lang", "", "answer language (detected from the question when empty)")
	ask.Flags().StringVar(&domain, "domain", "", "game the question is about")
	ask.Flags().BoolVar(&asJSON, "json", false, "print the answer as JSON")
	return ask
}

func printAnswer(w io.Writer, answer contractx.FinalAnswer) {
	fmt.Fprintln(w, answer.Text)
	fmt.Fprintln(w)
	if len(answer.Citations) == 0 {
		fmt.Fprintf(w, "(no sources, stop: %s, turns: %d)\n", answer.StopReason, answer.Turns)
		return
	}
	fmt.Fprintln(w, "Sources:")
	for _, c := range answer.Citations {
		fmt.Fprintf(w, "- %s via %s", c.PlatformID, strings.Join(c.Providers, ", "))
		if len(c.PassageRefs) > 0 {
			fmt.Fprintf(w, ": %s", strings.Join(c.PassageRefs, " "))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "(stop: %s, turns: %d)\n", answer.StopReason, answer.Turns)
}
