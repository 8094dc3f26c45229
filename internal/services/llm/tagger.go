package llm

import (
	"context"
	"fmt"
	"strings"

	"mediarepo/internal/ingest"
	"mediarepo/internal/services"
)

const (
	maxTranscriptChars = 6000
	maxTags            = 24
)

const tagSystemPrompt = `You index media for a searchable repository.
Look at the attached images and the transcript (when present) and reply with a
single JSON object of the form {"description": "...", "tags": ["...", "..."]}.
The description is two or three plain sentences. Tags are short lowercase
keywords or phrases naming subjects, places, actions, and moods. Output JSON only.`

// TagRequest is the material the tagger sees for one asset.
type TagRequest struct {
	Name       string
	Kind       ingest.Kind
	Brief      string
	Transcript string
	Images     []Image
}

// Tagger produces semantic descriptions through a chat-completions model.
type Tagger struct {
	client *Client
}

// NewTagger wraps a configured client.
func NewTagger(client *Client) *Tagger {
	return &Tagger{client: client}
}

// Tag asks the model for a description and tags. Unparseable output is a
// validation failure; transport failures keep the client's markers.
func (t *Tagger) Tag(ctx context.Context, req TagRequest) (ingest.Semantic, error) {
	content, err := t.client.CompleteJSON(ctx, tagSystemPrompt, buildTagPrompt(req), req.Images...)
	if err != nil {
		return ingest.Semantic{}, err
	}
	var parsed struct {
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := ExtractJSON(content, &parsed); err != nil {
		return ingest.Semantic{}, services.Wrap(services.ErrValidation, ingest.StageSemantic, "parse", "tagger returned no usable json", err)
	}
	semantic := ingest.Semantic{
		Description: strings.TrimSpace(parsed.Description),
		Tags:        NormalizeTags(parsed.Tags),
	}
	if semantic.Description == "" && len(semantic.Tags) == 0 {
		return ingest.Semantic{}, services.Wrap(services.ErrValidation, ingest.StageSemantic, "parse", "tagger returned an empty result", nil)
	}
	return semantic, nil
}

// Health pings the underlying model.
func (t *Tagger) Health(ctx context.Context) error {
	return t.client.HealthCheck(ctx)
}

func buildTagPrompt(req TagRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Asset: %s\nKind: %s\n", strings.TrimSpace(req.Name), req.Kind)
	if brief := strings.TrimSpace(req.Brief); brief != "" {
		fmt.Fprintf(&b, "Project brief: %s\n", brief)
	}
	fmt.Fprintf(&b, "Attached images: %d\n", len(req.Images))
	if text := strings.TrimSpace(req.Transcript); text != "" {
		runes := []rune(text)
		if len(runes) > maxTranscriptChars {
			text = string(runes[:maxTranscriptChars]) + "..."
		}
		fmt.Fprintf(&b, "Transcript:\n%s\n", text)
	} else {
		b.WriteString("Transcript: none\n")
	}
	return b.String()
}

// NormalizeTags lowercases, strips '#', collapses whitespace, and drops
// duplicates while keeping first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		clean := strings.ToLower(strings.Join(strings.Fields(strings.TrimLeft(strings.TrimSpace(tag), "#")), " "))
		if clean == "" {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
		if len(out) == maxTags {
			break
		}
	}
	return out
}
