// Package gitstore keeps versions in a git object database. Each version is a
// commit whose tree holds a single bundle.json blob; merge versions are
// ordinary multi-parent commits and branches are refs under refs/sitevc/branches/.
package gitstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/memory"

	"sitevc.dev/sitevc/internal/commitgraph"
	sitevcerrors "sitevc.dev/sitevc/internal/errors"
	"sitevc.dev/sitevc/internal/model"
	"sitevc.dev/sitevc/internal/store"
)

const (
	// BranchRefPrefix is where branch pointers live
	BranchRefPrefix = "refs/sitevc/branches/"
	// BundleFile is the tree entry holding the bundle JSON
	BundleFile = "bundle.json"
)

// Store is a store.Store over a go-git repository
type Store struct {
	repo *git.Repository
	// mu serializes branch updates; the storer's compare-and-set does not
	// guard ref creation
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// New wraps an existing repository
func New(repo *git.Repository) *Store {
	return &Store{repo: repo}
}

// NewMemory creates a store backed by in-memory git storage
func NewMemory() (*Store, error) {
	repo, err := git.Init(memory.NewStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init in-memory repository: %w", err)
	}
	return New(repo), nil
}

// Open opens the bare repository at path, creating it when missing
func Open(path string) (*Store, error) {
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(path, true)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", path, err)
	}
	return New(repo), nil
}

// Close is a no-op; go-git holds no resources that need releasing
func (s *Store) Close() error {
	return nil
}

func branchRef(name string) plumbing.ReferenceName {
	return plumbing.ReferenceName(BranchRefPrefix + name)
}

func parseVersion(id string) (plumbing.Hash, error) {
	if !plumbing.IsHash(id) {
		return plumbing.ZeroHash, sitevcerrors.NewVersionNotFoundError(id, nil)
	}
	return plumbing.NewHash(id), nil
}

func (s *Store) commit(id string) (*object.Commit, error) {
	hash, err := parseVersion(id)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.CommitObject(hash)
	if err != nil {
		return nil, sitevcerrors.NewVersionNotFoundError(id, err)
	}
	return c, nil
}

// GetBundle reads the bundle blob of a version
func (s *Store) GetBundle(_ context.Context, versionID string) (*model.Bundle, error) {
	c, err := s.commit(versionID)
	if err != nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree of %s: %w", versionID, err)
	}
	f, err := tree.File(BundleFile)
	if err != nil {
		return nil, fmt.Errorf("%w: version %s has no %s", sitevcerrors.ErrCorruptBundle, versionID, BundleFile)
	}
	reader, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle of %s: %w", versionID, err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle of %s: %w", versionID, err)
	}
	return model.UnmarshalBundle(content)
}

// GetVersion reads the commit metadata of a version
func (s *Store) GetVersion(_ context.Context, versionID string) (*store.Version, error) {
	c, err := s.commit(versionID)
	if err != nil {
		return nil, err
	}
	return toVersion(c), nil
}

func toVersion(c *object.Commit) *store.Version {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return &store.Version{
		ID:        c.Hash.String(),
		Parents:   parents,
		Message:   strings.TrimSuffix(c.Message, "\n"),
		Author:    c.Author.Name,
		CreatedAt: c.Author.When.UTC(),
	}
}

// CommitBundle writes the bundle as blob, tree and commit. Parent order is kept.
func (s *Store) CommitBundle(_ context.Context, parents []string, b *model.Bundle, meta store.CommitMeta) (string, error) {
	parentHashes := make([]plumbing.Hash, 0, len(parents))
	for _, p := range parents {
		c, err := s.commit(p)
		if err != nil {
			return "", err
		}
		parentHashes = append(parentHashes, c.Hash)
	}

	data, err := model.MarshalBundle(b)
	if err != nil {
		return "", fmt.Errorf("failed to marshal bundle: %w", err)
	}
	blobHash, err := s.writeBlob(data)
	if err != nil {
		return "", err
	}

	tree := &object.Tree{Entries: []object.TreeEntry{{Name: BundleFile, Mode: filemode.Regular, Hash: blobHash}}}
	treeHash, err := s.writeObject(tree.Encode)
	if err != nil {
		return "", fmt.Errorf("failed to write tree: %w", err)
	}

	when := meta.Time
	if when.IsZero() {
		when = time.Now()
	}
	sig := object.Signature{Name: meta.Author, When: when}
	c := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      meta.Message,
		TreeHash:     treeHash,
		ParentHashes: parentHashes,
	}
	hash, err := s.writeObject(c.Encode)
	if err != nil {
		return "", fmt.Errorf("failed to write commit: %w", err)
	}
	return hash.String(), nil
}

func (s *Store) writeBlob(data []byte) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to create bundle blob: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to write bundle blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to write bundle blob: %w", err)
	}
	return s.repo.Storer.SetEncodedObject(obj)
}

func (s *Store) writeObject(encode func(plumbing.EncodedObject) error) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	if err := encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.repo.Storer.SetEncodedObject(obj)
}

// ParentMap walks every commit object in the repository
func (s *Store) ParentMap(_ context.Context) (commitgraph.ParentMap, error) {
	iter, err := s.repo.CommitObjects()
	if err != nil {
		return nil, fmt.Errorf("failed to list commits: %w", err)
	}
	defer iter.Close()

	parents := make(commitgraph.ParentMap)
	err = iter.ForEach(func(c *object.Commit) error {
		ps := make([]string, 0, len(c.ParentHashes))
		for _, p := range c.ParentHashes {
			ps = append(ps, p.String())
		}
		parents[c.Hash.String()] = ps
		return nil
	})
	return parents, err
}

// GetBranch returns the version a branch points at
func (s *Store) GetBranch(_ context.Context, name string) (string, error) {
	ref, err := s.repo.Storer.Reference(branchRef(name))
	if err != nil {
		return "", sitevcerrors.NewBranchNotFoundError(name)
	}
	return ref.Hash().String(), nil
}

// SetBranch moves or creates a branch with compare-and-set semantics
func (s *Store) SetBranch(ctx context.Context, name, versionID, expected string) error {
	refName := branchRef(name)
	if err := refName.Validate(); err != nil {
		return fmt.Errorf("invalid branch name %q: %w", name, err)
	}
	hash, err := parseVersion(versionID)
	if err != nil {
		return err
	}
	if _, err := s.repo.CommitObject(hash); err != nil {
		return sitevcerrors.NewVersionNotFoundError(versionID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.repo.Storer.Reference(refName)
	if err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("failed to read branch %s: %w", name, err)
	}
	next := plumbing.NewHashReference(refName, hash)

	if expected == "" {
		if cur != nil {
			return fmt.Errorf("%w: %s", sitevcerrors.ErrBranchExists, name)
		}
		return s.repo.Storer.SetReference(next)
	}
	if cur == nil {
		return sitevcerrors.NewBranchNotFoundError(name)
	}
	if cur.Hash().String() != expected {
		return sitevcerrors.NewStaleBranchHeadError(name, expected, cur.Hash().String())
	}
	old := plumbing.NewHashReference(refName, plumbing.NewHash(expected))
	if err := s.repo.Storer.CheckAndSetReference(next, old); err != nil {
		if errors.Is(err, storage.ErrReferenceHasChanged) {
			actual, _ := s.GetBranch(ctx, name)
			return sitevcerrors.NewStaleBranchHeadError(name, expected, actual)
		}
		return fmt.Errorf("failed to update branch %s: %w", name, err)
	}
	return nil
}

// DeleteBranch removes a branch pointer. Versions stay in the object database.
func (s *Store) DeleteBranch(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.GetBranch(ctx, name); err != nil {
		return err
	}
	return s.repo.Storer.RemoveReference(branchRef(name))
}

// ListBranches returns every branch and its head
func (s *Store) ListBranches(_ context.Context) (map[string]string, error) {
	refs, err := s.repo.References()
	if err != nil {
		return nil, fmt.Errorf("failed to get references: %w", err)
	}
	defer refs.Close()

	result := make(map[string]string)
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().String()
		if ref.Type() != plumbing.HashReference || !strings.HasPrefix(name, BranchRefPrefix) {
			return nil
		}
		result[strings.TrimPrefix(name, BranchRefPrefix)] = ref.Hash().String()
		return nil
	})
	return result, err
}
