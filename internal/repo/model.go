package repo

import (
	"errors"
	"time"
)

// NodeKind distinguishes folders from files.
type NodeKind string

const (
	NodeFolder NodeKind = "folder"
	NodeFile   NodeKind = "file"
)

// ErrLocked is returned when a user edit targets a locked folder.
var ErrLocked = errors.New("node is locked")

// ErrInvalidEdit marks a tree edit that can never succeed as requested, such
// as a duplicate sibling name or deleting the root.
var ErrInvalidEdit = errors.New("invalid edit")

// ErrNodeNotFound is returned when a node id does not resolve.
var ErrNodeNotFound = errors.New("node not found")

// Node is one entry in the repository file tree. Content holds small text
// artifacts inline; ContentRef points at blob storage for binary ones.
type Node struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Kind        NodeKind `json:"kind" yaml:"kind"`
	Children    []*Node  `json:"children,omitempty" yaml:"children,omitempty"`
	Content     string   `json:"content,omitempty" yaml:"content,omitempty"`
	ContentRef  string   `json:"contentRef,omitempty" yaml:"contentRef,omitempty"`
	ContentType string   `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	Locked      bool     `json:"locked,omitempty" yaml:"locked,omitempty"`
}

// IsFolder reports whether n is a folder.
func (n *Node) IsFolder() bool {
	return n != nil && n.Kind == NodeFolder
}

// Commit records one tree mutation. Parent is nil only for the root commit.
type Commit struct {
	ID        string              `json:"id" yaml:"id"`
	Message   string              `json:"message" yaml:"message"`
	Author    string              `json:"author" yaml:"author"`
	Timestamp time.Time           `json:"timestamp" yaml:"timestamp"`
	Parent    *string             `json:"parent" yaml:"parent"`
	Hashtags  []string            `json:"hashtags" yaml:"hashtags"`
	Artifacts map[string][]string `json:"artifacts" yaml:"artifacts"`
}

// Repository is a finalized ingestion result.
type Repository struct {
	ID       string    `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Brief    string    `json:"brief" yaml:"brief"`
	JobID    string    `json:"jobId,omitempty" yaml:"jobId,omitempty"`
	Created  time.Time `json:"created" yaml:"created"`
	Updated  time.Time `json:"updated" yaml:"updated"`
	FileTree *Node     `json:"fileTree" yaml:"fileTree"`
	// Commits are ordered most recent first.
	Commits []Commit `json:"commits" yaml:"commits"`
}

// Head returns the most recent commit, or nil for an empty history.
func (r *Repository) Head() *Commit {
	if r == nil || len(r.Commits) == 0 {
		return nil
	}
	return &r.Commits[0]
}

// Summary is the listing view of a repository.
type Summary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Brief       string    `json:"brief"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
	CommitCount int       `json:"commitCount"`
	FileCount   int       `json:"fileCount"`
}

// Summarize builds the listing view.
func (r *Repository) Summarize() Summary {
	return Summary{
		ID:          r.ID,
		Name:        r.Name,
		Brief:       r.Brief,
		Created:     r.Created,
		Updated:     r.Updated,
		CommitCount: len(r.Commits),
		FileCount:   len(Paths(r.FileTree)),
	}
}
