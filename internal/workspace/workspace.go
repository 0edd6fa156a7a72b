// Package workspace inspects the git working tree the bot writes into.
package workspace

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
)

// ErrNotGitRepo is returned when dir is not inside a git repository.
var ErrNotGitRepo = errors.New("not a git repository")

// Info describes the working tree.
type Info struct {
	Branch  string
	Head    string
	Changed []string
}

// ChangedFiles lists files that are modified, added, deleted or untracked
// relative to HEAD, sorted by path.
func ChangedFiles(dir string) ([]string, error) {
	info, err := Inspect(dir)
	if err != nil {
		return nil, err
	}
	return info.Changed, nil
}

// Inspect reports the branch, head commit and changed files of dir.
func Inspect(dir string) (*Info, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, ErrNotGitRepo
		}
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	info := &Info{}
	if head, err := repo.Head(); err == nil {
		info.Head = head.Hash().String()
		if head.Name().IsBranch() {
			info.Branch = head.Name().Short()
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}

	for path, s := range status {
		if s.Worktree == git.Unmodified && s.Staging == git.Unmodified {
			continue
		}
		info.Changed = append(info.Changed, path)
	}
	sort.Strings(info.Changed)
	return info, nil
}
