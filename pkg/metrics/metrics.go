package metrics

/*
Labels and so on for metrics used in the release engine.
*/

const (
	LabelSuccess  = "success"
	LabelStage    = "stage"
	LabelPipeline = "pipeline"
	LabelStep     = "step"
	LabelTagKind  = "tag_kind"
)
