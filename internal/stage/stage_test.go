package stage_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mediarepo/internal/ingest"
	"mediarepo/internal/stage"
)

func TestPlanPerKind(t *testing.T) {
	cases := map[ingest.Kind]string{
		ingest.KindVideo: "frames,audio,transcription,semantic",
		ingest.KindAudio: "audio,transcription,semantic",
		ingest.KindImage: "semantic",
	}
	for kind, want := range cases {
		if got := strings.Join(stage.Plan(kind), ","); got != want {
			t.Fatalf("%s: expected %s, got %s", kind, want, got)
		}
	}
}

func TestRequirements(t *testing.T) {
	if stage.For(ingest.KindVideo, ingest.StageAudio) != stage.Optional {
		t.Fatal("audio should be optional for video")
	}
	if stage.For(ingest.KindAudio, ingest.StageAudio) != stage.Required {
		t.Fatal("audio should be required for audio")
	}
	if stage.For(ingest.KindImage, ingest.StageFrames) != stage.Skip {
		t.Fatal("frames do not apply to images")
	}
}

type checkerFunc func(context.Context) error

func (f checkerFunc) Health(ctx context.Context) error { return f(ctx) }

func TestCheck(t *testing.T) {
	ok := stage.Check(context.Background(), "svc", checkerFunc(func(context.Context) error { return nil }))
	if !ok.Ready {
		t.Fatalf("expected ready, got %+v", ok)
	}
	bad := stage.Check(context.Background(), "svc", checkerFunc(func(context.Context) error { return errors.New("down") }))
	if bad.Ready || bad.Detail != "down" {
		t.Fatalf("expected unhealthy with detail, got %+v", bad)
	}
	if stage.Check(context.Background(), "svc", nil).Ready {
		t.Fatal("nil checker should be unhealthy")
	}
}
