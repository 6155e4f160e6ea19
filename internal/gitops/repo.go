// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package gitops wraps the git repository the session operates on: root
// discovery, tracked-file listing, reading file contents at a treeish, and
// the commit support behind the /commit command. The tool requires a git
// project; absence of one is an error at startup.
package gitops

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNoRepo is returned when no git repository contains the directory.
var ErrNoRepo = errors.New("not a git repository")

// ErrNoMergeBase is returned when two treeishes share no common ancestor.
var ErrNoMergeBase = errors.New("no merge base found")

// Repo wraps a go-git repository for the operations the session needs.
type Repo struct {
	repo *gogit.Repository
	root string
}

// Discover opens the repository containing dir, walking up parent
// directories the way git itself does.
func Discover(dir string) (*Repo, error) {
	r, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRepo, err)
	}
	wt, err := r.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	return &Repo{repo: r, root: wt.Filesystem.Root()}, nil
}

// Root returns the absolute path of the working tree root.
func (r *Repo) Root() string { return r.root }

// ListFiles returns every tracked file plus every non-ignored untracked
// file, as sorted root-relative paths.
func (r *Repo) ListFiles() ([]string, error) {
	seen := make(map[string]bool)

	idx, err := r.repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	for _, entry := range idx.Entries {
		seen[entry.Name] = true
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("getting status: %w", err)
	}
	for path, fileStatus := range status {
		if fileStatus.Worktree == gogit.Untracked {
			seen[path] = true
		}
		if fileStatus.Worktree == gogit.Deleted || fileStatus.Staging == gogit.Deleted {
			delete(seen, path)
		}
	}

	files := make([]string, 0, len(seen))
	for path := range seen {
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// HeadExists reports whether the repository has any commit yet.
func (r *Repo) HeadExists() bool {
	_, err := r.repo.Head()
	return err == nil
}

// CurrentBranch returns the short name of the checked-out branch.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("getting HEAD: %w", err)
	}
	return head.Name().Short(), nil
}

// IsBranch reports whether the treeish names a local branch.
func (r *Repo) IsBranch(treeish string) bool {
	_, err := r.repo.Reference(plumbing.NewBranchReferenceName(treeish), true)
	return err == nil
}

// ResolveTreeish resolves a revision expression (branch, hash, HEAD~2, ...)
// to a commit hash.
func (r *Repo) ResolveTreeish(treeish string) (string, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(treeish))
	if err != nil {
		return "", fmt.Errorf("invalid treeish %q: %w", treeish, err)
	}
	return hash.String(), nil
}

// TreeishMetadata returns the abbreviated hash and the commit summary line
// for a resolved treeish.
func (r *Repo) TreeishMetadata(treeish string) (hash, summary string, err error) {
	commit, err := r.commitAt(treeish)
	if err != nil {
		return "", "", err
	}
	full := commit.Hash.String()
	summary = commit.Message
	if i := strings.IndexByte(summary, '\n'); i >= 0 {
		summary = summary[:i]
	}
	return full[:8], summary, nil
}

// MergeBase returns the best common ancestor of two treeishes.
func (r *Repo) MergeBase(a, b string) (string, error) {
	ca, err := r.commitAt(a)
	if err != nil {
		return "", err
	}
	cb, err := r.commitAt(b)
	if err != nil {
		return "", err
	}
	bases, err := ca.MergeBase(cb)
	if err != nil {
		return "", fmt.Errorf("finding merge base: %w", err)
	}
	if len(bases) == 0 {
		return "", fmt.Errorf("%w for %s and %s", ErrNoMergeBase, a, b)
	}
	return bases[0].Hash.String(), nil
}

// ContentsAt returns the lines of a root-relative file as of a treeish.
// A file absent from that tree returns object.ErrFileNotFound.
func (r *Repo) ContentsAt(treeish, path string) ([]string, error) {
	commit, err := r.commitAt(treeish)
	if err != nil {
		return nil, err
	}
	file, err := commit.File(path)
	if err != nil {
		return nil, err
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("reading %s at %s: %w", path, treeish, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading %s at %s: %w", path, treeish, err)
	}
	return strings.Split(string(data), "\n"), nil
}

// FilesChangedSince returns root-relative paths that differ between the
// treeish and the working tree: committed changes since the treeish plus
// any currently modified or untracked files.
func (r *Repo) FilesChangedSince(treeish string) ([]string, error) {
	seen := make(map[string]bool)

	base, err := r.commitAt(treeish)
	if err != nil {
		return nil, err
	}
	baseTree, err := base.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading tree: %w", err)
	}

	if head, err := r.repo.Head(); err == nil {
		headCommit, err := r.repo.CommitObject(head.Hash())
		if err != nil {
			return nil, fmt.Errorf("getting HEAD commit: %w", err)
		}
		headTree, err := headCommit.Tree()
		if err != nil {
			return nil, fmt.Errorf("reading HEAD tree: %w", err)
		}
		changes, err := object.DiffTree(baseTree, headTree)
		if err != nil {
			return nil, fmt.Errorf("diffing trees: %w", err)
		}
		for _, change := range changes {
			if change.From.Name != "" {
				seen[change.From.Name] = true
			}
			if change.To.Name != "" {
				seen[change.To.Name] = true
			}
		}
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("getting status: %w", err)
	}
	for path, fileStatus := range status {
		if fileStatus.Worktree != gogit.Unmodified || fileStatus.Staging != gogit.Unmodified {
			seen[path] = true
		}
	}

	files := make([]string, 0, len(seen))
	for path := range seen {
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

func (r *Repo) commitAt(treeish string) (*object.Commit, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(treeish))
	if err != nil {
		return nil, fmt.Errorf("invalid treeish %q: %w", treeish, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("getting commit %s: %w", hash, err)
	}
	return commit, nil
}
