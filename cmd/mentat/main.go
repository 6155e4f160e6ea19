// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Command mentat runs an interactive AI-assisted editing session against
// the git repository containing the current directory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	rootCmd := &cobra.Command{
		Use:   "mentat [paths...]",
		Short: "AI-assisted code editing in your terminal",
		Long: "Mentat holds a conversation with a model about the files you include,\n" +
			"parses the edits it proposes, and applies them to your repository after\n" +
			"you confirm them.",
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, v, args)
		},
	}

	flags := rootCmd.Flags()
	flags.StringSliceP("exclude", "e", nil, "Paths to exclude from the code context")
	flags.StringP("diff", "d", "", "Treeish to diff context files against")
	flags.StringP("pr-diff", "p", "", "Treeish to diff against its merge base with HEAD")
	flags.Bool("no-code-map", false, "Disable the code map")
	flags.String("format", "", "Edit format the model responds in (block or unified-diff)")
	flags.String("model", "", "Chat model")
	flags.Int("maximum-context", 0, "Maximum context tokens to use")
	flags.String("config", "", "Extra configuration file layered over the user and project files")

	// Config-shaped flags feed viper; env vars use the MENTAT_ prefix.
	v.BindPFlag("model", flags.Lookup("model"))
	v.BindPFlag("format", flags.Lookup("format"))
	v.BindPFlag("maximum-context", flags.Lookup("maximum-context"))

	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// newVersionCmd creates the "version" command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print mentat version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mentat %s\n", version)
		},
	}
}
