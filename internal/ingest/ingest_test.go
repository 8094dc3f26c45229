package ingest_test

import (
	"errors"
	"testing"

	"mediarepo/internal/ingest"
)

func TestDisplayName(t *testing.T) {
	cases := map[string]string{
		"my_clip-final.mp4":    "My Clip Final",
		"/srv/inbox/beach.jpg": "Beach",
		"interview 2024.wav":   "Interview 2024",
	}
	for in, want := range cases {
		if got := ingest.DisplayName(in); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Beach Day!":      "beach-day",
		"  Trip -- 2024 ": "trip-2024",
		"clip_01.final":   "clip_01.final",
		"Café au lait":    "café-au-lait",
		"***":             "",
	}
	for in, want := range cases {
		if got := ingest.Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKindDetection(t *testing.T) {
	if k, ok := ingest.KindFromPath("CLIP.MOV"); !ok || k != ingest.KindVideo {
		t.Fatalf("expected video, got %q %v", k, ok)
	}
	if _, ok := ingest.KindFromPath("notes.txt"); ok {
		t.Fatal("expected unknown extension")
	}
	if k, err := ingest.ParseKind(" Audio "); err != nil || k != ingest.KindAudio {
		t.Fatalf("ParseKind: %q %v", k, err)
	}
	if _, err := ingest.ParseKind("document"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestRetryOnlyFromError(t *testing.T) {
	asset := ingest.Asset{ID: "a", Status: ingest.AssetReady}
	if err := asset.Retry(); !errors.Is(err, ingest.ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable, got %v", err)
	}

	asset = ingest.Asset{
		ID:           "b",
		Status:       ingest.AssetError,
		Error:        "tagging failed",
		Progress:     60,
		StageErrors:  map[string]string{"transcription": "timeout"},
		Attempts:     map[string]int{"semantic": 3},
		StageResults: ingest.StageResults{Frames: []ingest.Frame{{Index: 0}}},
	}
	if err := asset.Retry(); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if asset.Status != ingest.AssetPending || asset.Error != "" || asset.Progress != 0 {
		t.Fatalf("unexpected asset after retry: %+v", asset)
	}
	if asset.StageErrors != nil || asset.Attempts != nil {
		t.Fatal("expected stage errors and attempts cleared")
	}
	if !asset.StageResults.Has(ingest.StageFrames) {
		t.Fatal("retry should keep completed stage results")
	}
}

func TestStageResultsHas(t *testing.T) {
	var r ingest.StageResults
	for _, stage := range []string{ingest.StageFrames, ingest.StageAudio, ingest.StageTranscription, ingest.StageSemantic} {
		if r.Has(stage) {
			t.Fatalf("empty results should not have %s", stage)
		}
	}
	r.NoAudio = true
	if !r.Has(ingest.StageAudio) {
		t.Fatal("no-audio marker should count as an audio result")
	}
	if r.Has("unknown") {
		t.Fatal("unknown stage should never be present")
	}
}

func TestJobHelpers(t *testing.T) {
	job := &ingest.Job{Assets: []ingest.Asset{
		{ID: "a", Status: ingest.AssetReady},
		{ID: "b", Status: ingest.AssetError},
	}}
	if !job.AllTerminal() {
		t.Fatal("expected all terminal")
	}
	if job.AssetIndex("b") != 1 || job.AssetIndex("z") != -1 {
		t.Fatal("unexpected asset index")
	}
	job.Assets = append(job.Assets, ingest.Asset{ID: "c", Status: ingest.AssetProcessing})
	if job.AllTerminal() {
		t.Fatal("processing asset is not terminal")
	}
	counts := job.Counts()
	if counts[ingest.AssetReady] != 1 || counts[ingest.AssetError] != 1 || counts[ingest.AssetProcessing] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestCloneDoesNotShareState(t *testing.T) {
	asset := ingest.Asset{
		ID:          "a",
		Attempts:    map[string]int{ingest.StageFrames: 1},
		StageErrors: map[string]string{ingest.StageAudio: "no stream"},
		StageResults: ingest.StageResults{
			Frames:   []ingest.Frame{{Index: 0}},
			Semantic: &ingest.Semantic{Tags: []string{"beach"}},
		},
	}
	clone := asset.Clone()
	asset.Attempts[ingest.StageFrames] = 3
	asset.StageErrors[ingest.StageTranscription] = "timeout"
	asset.StageResults.Frames[0].Index = 9
	asset.StageResults.Semantic.Tags[0] = "city"

	if clone.Attempts[ingest.StageFrames] != 1 || len(clone.StageErrors) != 1 {
		t.Fatalf("clone shares maps: %+v %+v", clone.Attempts, clone.StageErrors)
	}
	if clone.StageResults.Frames[0].Index != 0 || clone.StageResults.Semantic.Tags[0] != "beach" {
		t.Fatalf("clone shares results: %+v", clone.StageResults)
	}
}
