// Package cvefeed streams CVE records out of a git-hosted record repository,
// so a batch ingestion run can consume a maintained feed mirror instead of a
// local file.
package cvefeed

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// RecordFile is one record-bearing blob in the feed repository.
type RecordFile struct {
	Content io.ReadCloser
	Name    string
}

// GetRepo opens the bare mirror at path, cloning it from remote first if it
// does not exist yet.
func GetRepo(remote, path string) (*git.Repository, error) {
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}

	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, err
	}

	repo, err = git.PlainClone(path, true, &git.CloneOptions{
		URL:      remote,
		Progress: nil,
	})

	return repo, err
}

// UpdateRepo fast-forwards all branches of the mirror.
func UpdateRepo(repo *git.Repository) error {
	err := repo.Fetch(&git.FetchOptions{
		RefSpecs: []config.RefSpec{config.RefSpec("+refs/heads/*:refs/heads/*")},
	})

	if !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}

// RecordFiles walks HEAD and returns a reader per .json/.ndjson file.
func RecordFiles(repo *git.Repository) ([]RecordFile, error) {
	recordFiles := []RecordFile{}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("could not read HEAD: %w", err)
	}

	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("could not read commit object: %w", err)
	}

	tree, err := repo.TreeObject(commit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("could not read tree object: %w", err)
	}

	seen := map[plumbing.Hash]bool{}
	walker := object.NewTreeWalker(tree, true, seen)
	defer walker.Close()

	var entry object.TreeEntry
	for name := ""; !errors.Is(err, io.EOF); name, entry, err = walker.Next() {
		if !entry.Mode.IsFile() {
			continue
		}
		ext := filepath.Ext(name)
		if ext != ".json" && ext != ".ndjson" {
			continue
		}

		blob, err := repo.BlobObject(entry.Hash)
		if err != nil {
			return nil, fmt.Errorf("could not read blob: %w", err)
		}

		reader, err := blob.Reader()
		if err != nil {
			return nil, fmt.Errorf("could not create reader for blob: %w", err)
		}
		recordFiles = append(recordFiles, RecordFile{Name: name, Content: reader})
	}

	return recordFiles, nil
}
