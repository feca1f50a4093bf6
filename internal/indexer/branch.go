package indexer

import (
	"errors"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// DetectBranch returns the checked-out branch of the git repository
// containing root. It returns "" when root is not inside a repository or
// HEAD is detached.
func DetectBranch(root string) string {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		// unborn branch: HEAD names a ref with no commits yet
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			if ref, err := repo.Storer.Reference(plumbing.HEAD); err == nil && ref.Type() == plumbing.SymbolicReference {
				return ref.Target().Short()
			}
		}
		return ""
	}
	if head.Name().IsBranch() {
		return head.Name().Short()
	}
	return ""
}
