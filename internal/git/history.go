package git

import (
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/bashhack/statebak/internal/constants"
	statebakErrors "github.com/bashhack/statebak/internal/errors"
)

// maxAheadScan caps how many commits RepoState walks looking for the remote tip.
const maxAheadScan = 500

// CommitInfo summarizes a commit for display.
type CommitInfo struct {
	Hash    string
	Subject string
	Author  string
	When    time.Time
}

// RepoState is a read-only snapshot of the backup branch.
type RepoState struct {
	Branch     string
	Head       *CommitInfo
	RemoteHead string
	// Ahead is the number of local commits not on the remote tracking ref.
	// It is -1 when the remote ref is unknown or too far behind to count.
	Ahead int
}

// ReadRepoState inspects the repository without invoking git or taking the
// backup lock. It only reads refs and objects, so a concurrent cycle can at
// worst make the snapshot slightly outdated.
func ReadRepoState(repoPath, branch string) (RepoState, error) {
	if branch == "" {
		branch = constants.DefaultBranch
	}
	state := RepoState{Branch: branch, Ahead: -1}

	repo, err := gogit.PlainOpen(repoPath)
	if err != nil {
		if err == gogit.ErrRepositoryNotExists {
			return state, statebakErrors.ErrNotGitRepository
		}
		return state, statebakErrors.Wrap(err, "failed to open repository")
	}

	local, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err == plumbing.ErrReferenceNotFound {
		return state, nil
	}
	if err != nil {
		return state, statebakErrors.Wrapf(err, "failed to resolve branch %s", branch)
	}

	head, err := repo.CommitObject(local.Hash())
	if err != nil {
		return state, statebakErrors.Wrap(err, "failed to read head commit")
	}
	state.Head = summarize(head)

	remote, err := repo.Reference(plumbing.NewRemoteReferenceName(constants.RemoteName, branch), true)
	if err != nil {
		return state, nil
	}
	state.RemoteHead = remote.Hash().String()
	state.Ahead = countAhead(repo, local.Hash(), remote.Hash())
	return state, nil
}

func countAhead(repo *gogit.Repository, local, remote plumbing.Hash) int {
	if local == remote {
		return 0
	}

	iter, err := repo.Log(&gogit.LogOptions{From: local})
	if err != nil {
		return -1
	}
	defer iter.Close()

	ahead := 0
	found := false
	_ = iter.ForEach(func(c *object.Commit) error {
		if c.Hash == remote {
			found = true
			return errStopIteration
		}
		ahead++
		if ahead >= maxAheadScan {
			return errStopIteration
		}
		return nil
	})

	if !found {
		return -1
	}
	return ahead
}

var errStopIteration = statebakErrors.New("stop iteration")

func summarize(c *object.Commit) *CommitInfo {
	subject, _, _ := strings.Cut(c.Message, "\n")
	return &CommitInfo{
		Hash:    c.Hash.String(),
		Subject: subject,
		Author:  c.Author.Name,
		When:    c.Author.When,
	}
}
