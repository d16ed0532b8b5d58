package schema

// TaskTypes is the exact set of task types a suggested task may carry.
var TaskTypes = []string{"Sales", "Delivery", "Admin"}

// TaskPriorities is the exact set of priorities a suggested task may carry.
var TaskPriorities = []string{"P0", "P1", "P2", "P3"}

// LeadEnrichment describes EnrichedLead.
var LeadEnrichment = Object(
	Required("name", String()),
	Required("domain", String()),
	Required("industry", String()),
	Required("painPoint", String()),
	Required("valueEstimate", Number()),
)

// MessageAnalysis describes MessageAnalysis. suggestedTasks may be empty.
var MessageAnalysis = Object(
	Required("draftResponse", String()),
	Required("suggestedTasks", ArrayOf(Object(
		Required("title", String()),
		Required("type", Enum(TaskTypes...)),
		Required("priority", Enum(TaskPriorities...)),
		Required("estimatedMinutes", Number()),
	))),
)

// CallPrep describes CallBriefing.
var CallPrep = Object(
	Required("snapshot", String()),
	Required("hypotheses", ArrayOf(String())),
	Required("risks", ArrayOf(String())),
	Required("briefing", Object(
		Required("goal", String()),
		Required("agenda", ArrayOf(String())),
		Required("keyQuestions", ArrayOf(String())),
	)),
	Required("followUpDraft", String()),
)

// Outreach describes OutreachDraft. The message field is not marked required.
var Outreach = Object(
	Optional("message", String()),
)
