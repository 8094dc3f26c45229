package repo_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"mediarepo/internal/ingest"
	"mediarepo/internal/repo"
	"mediarepo/internal/transcript"
)

func fixedWriter() *repo.Writer {
	w := repo.NewWriter("tester")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	w.Now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
	return w
}

func sampleJob() *ingest.Job {
	tr, _ := transcript.Normalize(transcript.Raw{Segments: []transcript.Segment{{Start: 0, End: 1, Text: "hello"}}})
	return &ingest.Job{
		ID:    "job-1",
		Name:  "Holiday Trip",
		Brief: "Clips from the coast",
		Assets: []ingest.Asset{
			{
				ID:         "a1",
				Name:       "beach.mp4",
				Kind:       ingest.KindVideo,
				Status:     ingest.AssetReady,
				RawBlobRef: "blob://raw-1",
				StageResults: ingest.StageResults{
					Frames: []ingest.Frame{
						{Index: 0, Timestamp: 0, ContentType: "image/jpeg", BlobRef: "blob://f0"},
						{Index: 1, Timestamp: 1, ContentType: "image/jpeg", BlobRef: "blob://f1"},
					},
					Audio:         &ingest.Audio{BlobRef: "blob://aud", Encoding: "wav", ContentType: "audio/wav"},
					Transcription: &tr,
					Semantic:      &ingest.Semantic{Description: "A sunny beach", Tags: []string{"Beach", "sun"}},
				},
			},
			{
				ID:         "a2",
				Name:       "beach.mp4",
				Kind:       ingest.KindVideo,
				Status:     ingest.AssetError,
				RawBlobRef: "blob://raw-2",
				Error:      "frame sampling failed",
			},
		},
	}
}

func TestBuildFromJobProducesConsistentRepository(t *testing.T) {
	r := repo.BuildFromJob(sampleJob(), fixedWriter())

	if err := repo.Verify(r); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(r.Commits) != 1 || r.Commits[0].ID != "0000001" || r.Commits[0].Parent != nil {
		t.Fatalf("unexpected root commit: %+v", r.Commits)
	}
	paths := strings.Join(repo.Paths(r.FileTree), "\n")
	for _, want := range []string{
		"media/raw/beach.mp4",
		"media/raw/beach-2.mp4",
		"media/audio/beach.wav",
		"media/frames/beach/frame-0001.jpg",
		"transcripts/beach.txt",
		"transcripts/beach.srt",
		"tags/beach.txt",
		"descriptions/beach.md",
		"commits/0000001.md",
		"README.md",
	} {
		if !strings.Contains(paths, want) {
			t.Fatalf("expected %s in tree, got:\n%s", want, paths)
		}
	}
	if got := r.Commits[0].Hashtags; len(got) != 2 || got[0] != "beach" || got[1] != "sun" {
		t.Fatalf("unexpected hashtags %v", got)
	}
	if n := len(r.Commits[0].Artifacts["frames"]); n != 2 {
		t.Fatalf("expected 2 frame artifacts, got %d", n)
	}
	if refs := repo.BlobRefs(r.FileTree); len(refs) != 5 {
		t.Fatalf("expected 5 blob refs, got %v", refs)
	}
}

func TestBuildFromJobSkipsTakenSuffixes(t *testing.T) {
	job := &ingest.Job{ID: "job-2", Name: "Clips"}
	for i, name := range []string{"clip-2.mp4", "clip.mp4", "clip.mp4"} {
		job.Assets = append(job.Assets, ingest.Asset{
			ID:          fmt.Sprintf("c%d", i),
			Name:        name,
			Kind:        ingest.KindVideo,
			Status:      ingest.AssetReady,
			ContentType: "video/mp4",
			RawBlobRef:  fmt.Sprintf("blob://clip-%d", i),
		})
	}
	r := repo.BuildFromJob(job, fixedWriter())

	if err := repo.Verify(r); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	seen := make(map[string]bool)
	var raw []string
	for _, p := range repo.Paths(r.FileTree) {
		if seen[p] {
			t.Fatalf("duplicate path %s", p)
		}
		seen[p] = true
		if strings.HasPrefix(p, "media/raw/") {
			raw = append(raw, p)
		}
	}
	for _, want := range []string{"media/raw/clip-2.mp4", "media/raw/clip.mp4", "media/raw/clip-3.mp4"} {
		if !seen[want] {
			t.Fatalf("expected %s, got %v", want, raw)
		}
	}
	if len(raw) != 3 {
		t.Fatalf("expected 3 raw files, got %v", raw)
	}
}

func TestWriterMutationsKeepHistoryConsistent(t *testing.T) {
	w := fixedWriter()
	r := repo.BuildFromJob(sampleJob(), w)

	notes := &repo.Node{Name: "notes", Kind: repo.NodeFolder}
	if _, err := w.AddFile(r, r.FileTree.ID, notes, "", ""); err != nil {
		t.Fatalf("add folder: %v", err)
	}
	todo := &repo.Node{Name: "todo.md", Content: "- cut intro"}
	if _, err := w.AddFile(r, notes.ID, todo, "", ""); err != nil {
		t.Fatalf("add file: %v", err)
	}
	if _, err := w.WriteContent(r, todo.ID, "- cut outro", ""); err != nil {
		t.Fatalf("write content: %v", err)
	}
	if _, err := w.Rename(r, notes.ID, "ideas", ""); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := w.Delete(r, notes.ID, ""); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if len(r.Commits) != 6 {
		t.Fatalf("expected 6 commits, got %d", len(r.Commits))
	}
	if r.Commits[0].ID != "0000006" || *r.Commits[0].Parent != "0000005" {
		t.Fatalf("newest commit should be first: %+v", r.Commits[0])
	}
	if err := repo.Verify(r); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if repo.FindPath(r.FileTree, "ideas/todo.md") != nil || repo.Find(r.FileTree, todo.ID) != nil {
		t.Fatal("expected descendants removed with folder")
	}
	deleted := r.Commits[0].Artifacts[repo.CategoryDeleted]
	if len(deleted) != 1 || deleted[0] != "ideas/todo.md" {
		t.Fatalf("unexpected delete artifacts %v", deleted)
	}
}

func TestGuardUserEditRejectsLockedFolders(t *testing.T) {
	r := repo.BuildFromJob(sampleJob(), fixedWriter())

	frames := repo.FindPath(r.FileTree, "media/frames/beach")
	if frames == nil {
		t.Fatal("expected frames folder")
	}
	if err := repo.GuardUserEdit(r.FileTree, frames.ID); !errors.Is(err, repo.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := repo.GuardUserEdit(r.FileTree, r.FileTree.ID); err != nil {
		t.Fatalf("root should be editable: %v", err)
	}
	if err := repo.GuardUserEdit(r.FileTree, "missing"); !errors.Is(err, repo.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestReplayPathsAppliesDeletionsBeforeAdditions(t *testing.T) {
	root := "0000001"
	second := "0000002"
	commits := []repo.Commit{
		{ID: "0000003", Parent: &second, Artifacts: map[string][]string{"deleted": {"a"}, "renamed": {"b/x"}}},
		{ID: second, Parent: &root, Artifacts: map[string][]string{"deleted": {"a/x"}, "files": {"a/x"}}},
		{ID: root, Artifacts: map[string][]string{"files": {"a/x", "c"}}},
	}
	got := strings.Join(repo.ReplayPaths(commits), ",")
	if got != "b/x,c" {
		t.Fatalf("unexpected replay %q", got)
	}
}

func TestNextCommitIDUsesCount(t *testing.T) {
	if got := repo.NextCommitID(nil); got != "0000001" {
		t.Fatalf("got %s", got)
	}
	if got := repo.NextCommitID(make([]repo.Commit, 41)); got != "0000042" {
		t.Fatalf("got %s", got)
	}
}

func TestTreeUtilities(t *testing.T) {
	root := &repo.Node{ID: "root", Kind: repo.NodeFolder}
	dir := &repo.Node{ID: "d", Name: "dir", Kind: repo.NodeFolder}
	if err := repo.AddChild(root, "root", dir); err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	if err := repo.AddChild(root, "d", &repo.Node{ID: "f", Name: "f.txt", Kind: repo.NodeFile}); err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	if err := repo.AddChild(root, "d", &repo.Node{ID: "g", Name: "f.txt", Kind: repo.NodeFile}); err == nil {
		t.Fatal("expected duplicate name error")
	}
	if err := repo.AddChild(root, "f", &repo.Node{ID: "h", Name: "x", Kind: repo.NodeFile}); err == nil {
		t.Fatal("expected error adding under a file")
	}
	if p, ok := repo.PathOf(root, "f"); !ok || p != "dir/f.txt" {
		t.Fatalf("PathOf = %q, %v", p, ok)
	}
	if !repo.Update(root, "f", func(n *repo.Node) { n.Content = "x" }) || repo.Find(root, "f").Content != "x" {
		t.Fatal("Update did not apply")
	}
	if _, err := repo.DeleteRecursive(root, "root"); err == nil {
		t.Fatal("expected error deleting root")
	}
	if _, err := repo.DeleteRecursive(root, "d"); err != nil {
		t.Fatalf("DeleteRecursive: %v", err)
	}
	if repo.Find(root, "f") != nil || len(repo.Paths(root)) != 0 {
		t.Fatal("expected subtree removed")
	}
}

func TestInvalidEditsAreMarked(t *testing.T) {
	w := fixedWriter()
	r := repo.BuildFromJob(sampleJob(), w)
	readme := repo.FindPath(r.FileTree, "README.md")
	if readme == nil {
		t.Fatal("expected README.md")
	}

	cases := map[string]error{}
	_, cases["delete root"] = w.Delete(r, r.FileTree.ID, "")
	_, cases["rename root"] = w.Rename(r, r.FileTree.ID, "other", "")
	_, cases["rename with slash"] = w.Rename(r, readme.ID, "a/b", "")
	_, cases["duplicate sibling"] = w.AddFile(r, r.FileTree.ID, &repo.Node{Name: "README.md"}, "", "")
	_, cases["add under file"] = w.AddFile(r, readme.ID, &repo.Node{Name: "x.txt"}, "", "")
	media := repo.FindPath(r.FileTree, "media")
	_, cases["content on folder"] = w.WriteContent(r, media.ID, "text", "")

	for name, err := range cases {
		if !errors.Is(err, repo.ErrInvalidEdit) {
			t.Errorf("%s: expected ErrInvalidEdit, got %v", name, err)
		}
	}
	if err := repo.Verify(r); err != nil {
		t.Fatalf("failed edits must leave history intact: %v", err)
	}
}
