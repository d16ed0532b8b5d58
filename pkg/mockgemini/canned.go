package mockgemini

import "slices"

// Canned answers with a fixed, schema-shaped result chosen by the declared
// response fields. Unknown shapes get an empty object.
func Canned(c Call) string {
	switch {
	case slices.Contains(c.Fields, "painPoint"):
		return `{"name":"Acme Robotics","domain":"acme-robotics.com","industry":"Robotics","painPoint":"Manual QA in assembly lines slows release cycles.","valueEstimate":15000}`
	case slices.Contains(c.Fields, "draftResponse"):
		return `{"draftResponse":"Vielen Dank für Ihre Nachricht. Wir melden uns kurzfristig mit einem Terminvorschlag.","suggestedTasks":[{"title":"Terminvorschlag senden","type":"Sales","priority":"P1","estimatedMinutes":15}]}`
	case slices.Contains(c.Fields, "snapshot"):
		return `{"snapshot":"Automation budgets are shifting toward AI-assisted operations.","hypotheses":["Support volume outpaces headcount","Knowledge is scattered across tools","Leadership wants measurable savings"],"risks":["Data privacy review","Competing internal project"],"briefing":{"goal":"Agree on a scoped pilot","agenda":["Context","Current workflow","Pilot proposal"],"keyQuestions":["Who owns the process?","What does success look like?","Which systems are involved?","What is the timeline?","Who signs off on budget?"]},"followUpDraft":"Danke für das Gespräch. Anbei die nächsten Schritte zum Pilot."}`
	case slices.Contains(c.Fields, "message"):
		return `{"message":"Kurze Idee: Wir haben bei ähnlichen Teams die Bearbeitungszeit halbiert. Lust auf 15 Minuten?"}`
	default:
		return `{}`
	}
}
