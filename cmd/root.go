// Package cmd holds the gamesage command line.
package cmd

import (
	"github.com/spf13/cobra"

	configx "github.com/yixiaowang2001/game-sage-agent/pkg/config"
)

func Execute() error {
	var envFile string
	root := &cobra.Command{
		Use:           "gamesage",
		Short:         "Answer game strategy questions from community sources",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configx.SetEnvFile(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "env file to load (default ./.env when present)")

	root.AddCommand(serveCMD(), askCMD(), platformsCMD())
	return root.Execute()
}
