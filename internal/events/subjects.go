package events

import "time"

const (
	StreamName   = "COMPARADOR_EVENTS"
	StreamMaxAge = 30 * 24 * time.Hour
)

var StreamSubjects = []string{
	"comparador.evaluation.>",
	"comparador.template.>",
	"comparador.project.>",
	"comparador.lot.>",
}

func SubjectEvaluationSaved(lotID string) string { return "comparador.evaluation." + lotID + ".saved" }

func SubjectTemplateCreated(versionID string) string {
	return "comparador.template." + versionID + ".created"
}
func SubjectTemplateActivated(versionID string) string {
	return "comparador.template." + versionID + ".activated"
}

func SubjectProjectCreated(projectID string) string {
	return "comparador.project." + projectID + ".created"
}
func SubjectProjectFinalized(projectID string) string {
	return "comparador.project." + projectID + ".finalized"
}

func SubjectLotCreated(lotID string) string { return "comparador.lot." + lotID + ".created" }
