// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sycomix/mentat/internal/commands"
	"github.com/sycomix/mentat/internal/config"
	"github.com/sycomix/mentat/internal/gitops"
	"github.com/sycomix/mentat/internal/session"
	"github.com/sycomix/mentat/internal/terminal"
)

var warnColor = color.New(color.FgYellow)

// runSession wires the terminal and session together and runs the
// interactive loop until the user quits.
func runSession(cmd *cobra.Command, v *viper.Viper, paths []string) error {
	flags := cmd.Flags()
	exclude, _ := flags.GetStringSlice("exclude")
	diff, _ := flags.GetString("diff")
	prDiff, _ := flags.GetString("pr-diff")
	noCodeMap, _ := flags.GetBool("no-code-map")
	configFile, _ := flags.GetString("config")

	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	repo, err := gitops.Discover(workDir)
	if err != nil {
		return err
	}

	cfg, warnings := config.Load(v, repo.Root(), configFile)
	for _, w := range warnings {
		warnColor.Fprintln(os.Stdout, w)
	}

	// The completer closes over the session so file completion can see the
	// repository once the session exists.
	var sess *session.Session
	completer := terminal.NewCompleter(commands.Completions(), func() []string {
		if sess == nil {
			return nil
		}
		return sess.RepoFiles()
	})
	term, err := terminal.New(terminal.Options{
		InputStyle: cfg.InputStyle,
		Completer:  completer,
	})
	if err != nil {
		return err
	}
	defer term.Close()

	logDir := ""
	if userDir, err := config.UserDir(); err == nil {
		logDir = filepath.Join(userDir, "logs")
	}

	// Readline swallows Ctrl-C at the prompt; SIGINT only fires while a
	// turn is running, where the session cancels the turn's context.
	interrupts := make(chan os.Signal, 2)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	sess, err = session.New(session.Options{
		WorkDir:      workDir,
		Paths:        paths,
		ExcludePaths: exclude,
		Diff:         diff,
		PRDiff:       prDiff,
		NoCodeMap:    noCodeMap,
		Config:       cfg,
		Input:        term,
		Confirm:      term,
		Out:          term.Out(),
		NewPrinter: func() session.TurnPrinter {
			return terminal.NewStreamColorer(terminal.NewPrinter(term.Out()), cfg.Format)
		},
		LogDir:     logDir,
		Interrupts: interrupts,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	return sess.Run(context.Background())
}
