package repo

import (
	"fmt"
	"mime"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"mediarepo/internal/ingest"
)

// Semantic partitions created for every ingested repository.
const (
	FolderMedia        = "media"
	FolderRaw          = "raw"
	FolderAudio        = "audio"
	FolderFrames       = "frames"
	FolderTranscripts  = "transcripts"
	FolderTags         = "tags"
	FolderDescriptions = "descriptions"
)

// BuildFromJob assembles the repository tree for a finished job and records
// the root commit. Errored assets contribute only what they produced.
func BuildFromJob(job *ingest.Job, w *Writer) *Repository {
	if w == nil {
		w = NewWriter(DefaultAuthor)
	}
	now := w.now()

	rootName := ingest.Slug(job.Name)
	if rootName == "" {
		rootName = "repository"
	}
	root := folder(rootName, false)
	media := folder(FolderMedia, true)
	raw := folder(FolderRaw, true)
	audio := folder(FolderAudio, true)
	frames := folder(FolderFrames, true)
	media.Children = []*Node{raw, audio, frames}
	transcripts := folder(FolderTranscripts, true)
	tags := folder(FolderTags, true)
	descriptions := folder(FolderDescriptions, true)
	commits := folder(CommitsFolder, true)
	root.Children = []*Node{media, transcripts, tags, descriptions, commits}

	artifacts := make(map[string][]string)
	add := func(parent *Node, parentPath, category string, node *Node) {
		parent.Children = append(parent.Children, node)
		artifacts[category] = append(artifacts[category], parentPath+"/"+node.Name)
	}

	if brief := strings.TrimSpace(job.Brief); brief != "" {
		root.Children = append(root.Children, file("README.md", "text/markdown", fmt.Sprintf("# %s\n\n%s\n", job.Name, brief), ""))
		artifacts["brief"] = []string{"README.md"}
	}

	var hashtags []string
	used := make(map[string]bool)
	for _, asset := range job.Assets {
		base := uniqueBase(used, assetBase(asset))
		results := asset.StageResults

		if asset.RawBlobRef != "" {
			add(raw, "media/raw", "raw", file(base+rawExtension(asset), asset.ContentType, "", asset.RawBlobRef))
		}
		if results.Audio != nil && results.Audio.BlobRef != "" {
			ext := strings.TrimSpace(results.Audio.Encoding)
			if ext == "" {
				ext = "wav"
			}
			add(audio, "media/audio", "audio", file(base+"."+ext, results.Audio.ContentType, "", results.Audio.BlobRef))
		}
		if len(results.Frames) > 0 {
			assetFrames := folder(base, true)
			for _, frame := range results.Frames {
				name := fmt.Sprintf("frame-%04d%s", frame.Index, imageExtension(frame.ContentType))
				assetFrames.Children = append(assetFrames.Children, file(name, frame.ContentType, "", frame.BlobRef))
				artifacts["frames"] = append(artifacts["frames"], "media/frames/"+base+"/"+name)
			}
			frames.Children = append(frames.Children, assetFrames)
		}
		if tr := results.Transcription; tr != nil {
			text := tr.Text
			if tr.Placeholder {
				text = "[transcription unavailable: " + tr.Note + "]\n"
			}
			add(transcripts, FolderTranscripts, "transcripts", file(base+".txt", "text/plain", text, ""))
			if tr.SRT != "" {
				add(transcripts, FolderTranscripts, "transcripts", file(base+".srt", "application/x-subrip", tr.SRT, ""))
			}
		}
		if sem := results.Semantic; sem != nil {
			if len(sem.Tags) > 0 {
				add(tags, FolderTags, "tags", file(base+".txt", "text/plain", strings.Join(sem.Tags, "\n")+"\n", ""))
				hashtags = append(hashtags, sem.Tags...)
			}
			if strings.TrimSpace(sem.Description) != "" {
				add(descriptions, FolderDescriptions, "descriptions", file(base+".md", "text/markdown", sem.Description+"\n", ""))
			}
		}
	}

	repository := &Repository{
		ID:       uuid.NewString(),
		Name:     job.Name,
		Brief:    job.Brief,
		JobID:    job.ID,
		Created:  now,
		Updated:  now,
		FileTree: root,
	}
	counts := job.Counts()
	w.Record(repository, Change{
		Message:   fmt.Sprintf("Ingest %d assets (%d ready, %d errored)", len(job.Assets), counts[ingest.AssetReady], counts[ingest.AssetError]),
		Author:    DefaultAuthor,
		Hashtags:  hashtags,
		Artifacts: artifacts,
	})
	return repository
}

// BlobRefs lists every blob reference held by the tree.
func BlobRefs(root *Node) []string {
	seen := make(map[string]struct{})
	Walk(root, func(_ string, n *Node) {
		if n.ContentRef != "" {
			seen[n.ContentRef] = struct{}{}
		}
	})
	out := make([]string, 0, len(seen))
	for ref := range seen {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

func folder(name string, locked bool) *Node {
	return &Node{ID: uuid.NewString(), Name: name, Kind: NodeFolder, Locked: locked}
}

func file(name, contentType, content, ref string) *Node {
	return &Node{
		ID:          uuid.NewString(),
		Name:        name,
		Kind:        NodeFile,
		Content:     content,
		ContentRef:  ref,
		ContentType: contentType,
	}
}

func assetBase(asset ingest.Asset) string {
	name := strings.TrimSuffix(asset.Name, filepath.Ext(asset.Name))
	if slug := ingest.Slug(name); slug != "" {
		return slug
	}
	if asset.ID != "" {
		return asset.ID
	}
	return "asset"
}

// uniqueBase returns base, or base-N for the smallest N >= 2 not yet taken by
// an earlier asset, and marks the result as taken.
func uniqueBase(used map[string]bool, base string) string {
	name := base
	for n := 2; used[name]; n++ {
		name = fmt.Sprintf("%s-%d", base, n)
	}
	used[name] = true
	return name
}

func rawExtension(asset ingest.Asset) string {
	if ext := strings.ToLower(filepath.Ext(asset.Name)); ext != "" {
		return ext
	}
	if asset.ContentType != "" {
		if exts, err := mime.ExtensionsByType(asset.ContentType); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	return ".bin"
}

func imageExtension(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
