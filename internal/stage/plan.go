// Package stage holds the per-kind stage plan and the health record shared
// by the pipeline, preflight, and status reporting.
package stage

import "mediarepo/internal/ingest"

// Requirement says how a stage failure affects an asset.
type Requirement int

const (
	// Skip means the stage does not apply to the kind.
	Skip Requirement = iota
	// Optional failures degrade: the result stays absent and the asset continues.
	Optional
	// Required failures mark the asset as errored.
	Required
)

func (r Requirement) String() string {
	switch r {
	case Optional:
		return "optional"
	case Required:
		return "required"
	}
	return "skip"
}

// Order is the fixed pipeline order.
var Order = []string{
	ingest.StageFrames,
	ingest.StageAudio,
	ingest.StageTranscription,
	ingest.StageSemantic,
}

var requirements = map[ingest.Kind]map[string]Requirement{
	ingest.KindVideo: {
		ingest.StageFrames:        Required,
		ingest.StageAudio:         Optional,
		ingest.StageTranscription: Optional,
		ingest.StageSemantic:      Required,
	},
	ingest.KindAudio: {
		ingest.StageAudio:         Required,
		ingest.StageTranscription: Optional,
		ingest.StageSemantic:      Required,
	},
	ingest.KindImage: {
		ingest.StageSemantic: Required,
	},
}

// For returns the requirement of name for kind.
func For(kind ingest.Kind, name string) Requirement {
	return requirements[kind][name]
}

// Plan lists the stages that apply to kind, in pipeline order.
func Plan(kind ingest.Kind) []string {
	var plan []string
	for _, name := range Order {
		if For(kind, name) != Skip {
			plan = append(plan, name)
		}
	}
	return plan
}
