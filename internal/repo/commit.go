package repo

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Artifact categories with replay meaning. Any other category lists added or
// changed paths.
const (
	CategoryDeleted = "deleted"
	CategoryCommits = "commits"
	CategoryEdited  = "edited"
	CategoryRenamed = "renamed"
	CategoryUser    = "files"
	// CategoryFolders lists structural changes to empty folders; replay skips it.
	CategoryFolders = "folders"
)

// CommitsFolder holds one note per commit when present in the tree.
const CommitsFolder = "commits"

// DefaultAuthor signs pipeline commits.
const DefaultAuthor = "mediarepo"

// NextCommitID derives the next id from the commit count.
func NextCommitID(commits []Commit) string {
	return fmt.Sprintf("%07d", len(commits)+1)
}

// Change describes one commit before it is recorded.
type Change struct {
	Message   string
	Author    string
	Hashtags  []string
	Artifacts map[string][]string
}

// Writer is the only path that mutates a repository. Each call performs one
// tree mutation and prepends exactly one commit.
type Writer struct {
	Author string
	Now    func() time.Time
}

// NewWriter returns a writer signing commits as author.
func NewWriter(author string) *Writer {
	if strings.TrimSpace(author) == "" {
		author = DefaultAuthor
	}
	return &Writer{Author: author, Now: func() time.Time { return time.Now().UTC() }}
}

// Record prepends a commit for a mutation the caller already applied.
func (w *Writer) Record(r *Repository, change Change) Commit {
	now := w.now()
	id := NextCommitID(r.Commits)
	var parent *string
	if head := r.Head(); head != nil {
		p := head.ID
		parent = &p
	}

	artifacts := make(map[string][]string, len(change.Artifacts)+1)
	for category, paths := range change.Artifacts {
		if len(paths) == 0 {
			continue
		}
		cp := append([]string(nil), paths...)
		sort.Strings(cp)
		artifacts[category] = cp
	}

	author := strings.TrimSpace(change.Author)
	if author == "" {
		author = w.Author
	}
	message := strings.TrimSpace(change.Message)

	if folder := FindPath(r.FileTree, CommitsFolder); folder != nil && folder.IsFolder() {
		name := id + ".md"
		folder.Children = append(folder.Children, &Node{
			ID:          uuid.NewString(),
			Name:        name,
			Kind:        NodeFile,
			ContentType: "text/markdown",
			Content:     commitNote(id, author, message, now),
		})
		artifacts[CategoryCommits] = append(artifacts[CategoryCommits], CommitsFolder+"/"+name)
	}

	commit := Commit{
		ID:        id,
		Message:   message,
		Author:    author,
		Timestamp: now,
		Parent:    parent,
		Hashtags:  normalizeHashtags(change.Hashtags),
		Artifacts: artifacts,
	}
	r.Commits = append([]Commit{commit}, r.Commits...)
	r.Updated = now
	return commit
}

// AddFile attaches node under parentID and commits it under category.
func (w *Writer) AddFile(r *Repository, parentID string, node *Node, category, message string) (Commit, error) {
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	if node.Kind == "" {
		node.Kind = NodeFile
	}
	if err := AddChild(r.FileTree, parentID, node); err != nil {
		return Commit{}, err
	}
	nodePath, _ := PathOf(r.FileTree, node.ID)
	if category == "" {
		category = CategoryUser
	}
	paths := filesUnder(node, nodePath)
	if len(paths) == 0 {
		category = CategoryFolders
		paths = []string{nodePath}
	}
	if message == "" {
		message = "Add " + nodePath
	}
	return w.Record(r, Change{Message: message, Artifacts: map[string][]string{category: paths}}), nil
}

// Delete removes a node and all its descendants in one commit.
func (w *Writer) Delete(r *Repository, id, message string) (Commit, error) {
	nodePath, ok := PathOf(r.FileTree, id)
	if !ok {
		return Commit{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	removed, err := DeleteRecursive(r.FileTree, id)
	if err != nil {
		return Commit{}, err
	}
	category := CategoryDeleted
	paths := filesUnder(removed, nodePath)
	if len(paths) == 0 {
		category = CategoryFolders
		paths = []string{nodePath}
	}
	if message == "" {
		message = "Delete " + nodePath
	}
	return w.Record(r, Change{Message: message, Artifacts: map[string][]string{category: paths}}), nil
}

// Rename changes a node's name in one commit.
func (w *Writer) Rename(r *Repository, id, name, message string) (Commit, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "/") {
		return Commit{}, fmt.Errorf("%w: invalid name %q", ErrInvalidEdit, name)
	}
	chain := ancestry(r.FileTree, id)
	if chain == nil {
		return Commit{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if len(chain) == 1 {
		return Commit{}, fmt.Errorf("%w: cannot rename repository root", ErrInvalidEdit)
	}
	node := chain[len(chain)-1]
	parent := chain[len(chain)-2]
	if existing := childNamed(parent, name); existing != nil && existing != node {
		return Commit{}, fmt.Errorf("%w: %q already exists in %s", ErrInvalidEdit, name, parent.Name)
	}
	oldPath, _ := PathOf(r.FileTree, id)
	before := filesUnder(node, oldPath)
	node.Name = name
	newPath, _ := PathOf(r.FileTree, id)
	after := filesUnder(node, newPath)
	if message == "" {
		message = fmt.Sprintf("Rename %s to %s", oldPath, newPath)
	}
	if len(before) == 0 {
		return w.Record(r, Change{Message: message, Artifacts: map[string][]string{
			CategoryFolders: {oldPath, newPath},
		}}), nil
	}
	return w.Record(r, Change{Message: message, Artifacts: map[string][]string{
		CategoryDeleted: before,
		CategoryRenamed: after,
	}}), nil
}

// WriteContent replaces a file's inline content in one commit.
func (w *Writer) WriteContent(r *Repository, id, content, message string) (Commit, error) {
	node := Find(r.FileTree, id)
	if node == nil {
		return Commit{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if node.IsFolder() {
		return Commit{}, fmt.Errorf("%w: %s is a folder", ErrInvalidEdit, node.Name)
	}
	node.Content = content
	nodePath, _ := PathOf(r.FileTree, id)
	if message == "" {
		message = "Edit " + nodePath
	}
	return w.Record(r, Change{Message: message, Artifacts: map[string][]string{CategoryEdited: {nodePath}}}), nil
}

// GuardUserEdit returns ErrLocked when id or any ancestor is locked.
func GuardUserEdit(root *Node, id string) error {
	chain := ancestry(root, id)
	if chain == nil {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	for _, n := range chain {
		if n.Locked {
			p, _ := PathOf(root, n.ID)
			return fmt.Errorf("%w: %s", ErrLocked, p)
		}
	}
	return nil
}

// ReplayPaths rebuilds the set of file paths by applying commits oldest first.
// Within one commit deletions apply before additions.
func ReplayPaths(commits []Commit) []string {
	present := make(map[string]struct{})
	for i := len(commits) - 1; i >= 0; i-- {
		c := commits[i]
		for _, p := range c.Artifacts[CategoryDeleted] {
			delete(present, p)
			prefix := p + "/"
			for existing := range present {
				if strings.HasPrefix(existing, prefix) {
					delete(present, existing)
				}
			}
		}
		for category, paths := range c.Artifacts {
			if category == CategoryDeleted || category == CategoryFolders {
				continue
			}
			for _, p := range paths {
				present[p] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(present))
	for p := range present {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Verify checks history integrity and that replayed history matches the tree.
func Verify(r *Repository) error {
	if len(r.Commits) == 0 {
		return fmt.Errorf("repository %s has no commits", r.ID)
	}
	roots := 0
	for i, c := range r.Commits {
		want := fmt.Sprintf("%07d", len(r.Commits)-i)
		if c.ID != want {
			return fmt.Errorf("commit at position %d has id %s, want %s", i, c.ID, want)
		}
		if c.Parent == nil {
			roots++
			if i != len(r.Commits)-1 {
				return fmt.Errorf("commit %s has no parent but is not the oldest", c.ID)
			}
			continue
		}
		if i+1 >= len(r.Commits) || *c.Parent != r.Commits[i+1].ID {
			return fmt.Errorf("commit %s has dangling parent %s", c.ID, *c.Parent)
		}
	}
	if roots != 1 {
		return fmt.Errorf("expected exactly one root commit, found %d", roots)
	}
	replayed := ReplayPaths(r.Commits)
	tree := Paths(r.FileTree)
	if strings.Join(replayed, "\n") != strings.Join(tree, "\n") {
		return fmt.Errorf("history replays %d paths but tree has %d", len(replayed), len(tree))
	}
	return nil
}

func (w *Writer) now() time.Time {
	if w == nil || w.Now == nil {
		return time.Now().UTC()
	}
	return w.Now()
}

func normalizeHashtags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#")))
		tag = strings.Join(strings.Fields(tag), "-")
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func commitNote(id, author, message string, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", id)
	fmt.Fprintf(&b, "- author: %s\n", author)
	fmt.Fprintf(&b, "- date: %s\n", at.Format(time.RFC3339))
	if message != "" {
		fmt.Fprintf(&b, "\n%s\n", message)
	}
	return b.String()
}
