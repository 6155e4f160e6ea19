// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package gitops

import (
	"fmt"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	fallbackAuthorName  = "mentat"
	fallbackAuthorEmail = "mentat@localhost"
)

// Commit stages everything and commits it with the given message, for the
// /commit command. The author comes from git config when available.
func (r *Repo) Commit(message string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return fmt.Errorf("staging changes: %w", err)
	}

	name, email := r.author()
	_, err = wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: name, Email: email, When: time.Now()},
	})
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

func (r *Repo) author() (name, email string) {
	name, email = fallbackAuthorName, fallbackAuthorEmail
	cfg, err := r.repo.ConfigScoped(gitconfig.SystemScope)
	if err != nil {
		return name, email
	}
	if cfg.User.Name != "" {
		name = cfg.User.Name
	}
	if cfg.User.Email != "" {
		email = cfg.User.Email
	}
	return name, email
}
