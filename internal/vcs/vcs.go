// Package vcs answers the two questions the retrigger step asks of the
// working copy: which branch is checked out, and at which commit.
package vcs

import (
	"context"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	apperrors "github.com/natcap/invest-pipelines/pkg/errors"
)

// DetachedHead is the branch name reported when HEAD is not on a branch,
// matching `git rev-parse --abbrev-ref HEAD`.
const DetachedHead = "HEAD"

// Source is what the retrigger step needs from version control.
type Source interface {
	CurrentBranch(ctx context.Context) (string, error)
	CurrentCommit(ctx context.Context) (string, error)
}

// Repository reads a git working copy. The directory may be any path
// inside the working tree; the enclosing .git directory is located
// upwards from it.
type Repository struct {
	dir string
}

// NewRepository returns a Repository for the working copy containing dir.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// CurrentBranch returns the short name of the checked-out branch, or
// DetachedHead when HEAD points directly at a commit.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	head, err := r.head(ctx)
	if err != nil {
		return "", apperrors.RepositoryError("current branch", err)
	}
	if !head.Name().IsBranch() {
		return DetachedHead, nil
	}
	return head.Name().Short(), nil
}

// CurrentCommit returns the full hash of the commit HEAD resolves to.
func (r *Repository) CurrentCommit(ctx context.Context) (string, error) {
	head, err := r.head(ctx)
	if err != nil {
		return "", apperrors.RepositoryError("current commit", err)
	}
	return head.Hash().String(), nil
}

func (r *Repository) head(ctx context.Context) (*plumbing.Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	repo, err := git.PlainOpenWithOptions(r.dir, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return nil, err
	}

	return repo.Head()
}
