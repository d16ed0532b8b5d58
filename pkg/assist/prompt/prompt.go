package prompt

import (
	"fmt"
	"strings"

	"github.com/shpitdev/crm-assist/pkg/crm"
)

// Depth controls how thorough a call briefing should be.
type Depth string

const (
	DepthQuick    Depth = "Quick"
	DepthStandard Depth = "Standard"
	DepthDeep     Depth = "Deep"
)

// ParseDepth accepts a depth name case-insensitively. Empty input means Standard.
func ParseDepth(raw string) (Depth, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "quick":
		return DepthQuick, nil
	case "", "standard":
		return DepthStandard, nil
	case "deep":
		return DepthDeep, nil
	default:
		return "", fmt.Errorf("invalid depth %q (want Quick, Standard or Deep)", raw)
	}
}

// Placeholders substituted for empty or absent inputs.
const (
	NoDealContext    = "No specific deal context"
	NoInteractions   = "No recorded interactions yet"
	NotProvided      = "(not provided)"
	UnknownCompany   = "an unnamed company"
	DefaultTone      = "neutral"
	HistoryDelimiter = " | "
)

const (
	defaultLanguage = "German"
	defaultCurrency = "EUR"
)

// Builder renders instructions for the assistant operations. All methods are pure.
type Builder struct {
	// Language is the language reply drafts are written in.
	Language string
	// Currency is the currency value estimates are expressed in.
	Currency string
}

// Default returns the builder used by the dashboard: German replies, EUR estimates.
func Default() Builder {
	return Builder{Language: defaultLanguage, Currency: defaultCurrency}
}

func (b Builder) language() string { return orDefault(b.Language, defaultLanguage) }
func (b Builder) currency() string { return orDefault(b.Currency, defaultCurrency) }

// LeadEnrichment asks the model to infer a company profile from a name or URL.
func (b Builder) LeadEnrichment(rawInput string) string {
	return strings.TrimSpace(`
ACT AS A SALES OPS INTELLIGENCE AGENT.
Target input: "` + orDefault(rawInput, NotProvided) + `"

Task: extract or infer company details for a new CRM lead.
If the input is a URL, use it. If it is a name, guess the most likely domain.

Return a JSON object with:
- name: clean company name
- domain: official website domain
- industry: standard industry category
- painPoint: one sentence hypothesis on why they need AI operations support, based on current trends in their industry
- valueEstimate: a realistic project value in ` + b.currency() + ` for an AI audit, as an integer number only
`)
}

// MessageAnalysis asks for a reply draft and actionable tasks for an inbound message.
// deal and company are optional context.
func (b Builder) MessageAnalysis(msg crm.Message, deal *crm.Deal, company *crm.Company) string {
	return strings.TrimSpace(`
ACT AS AN EXECUTIVE ASSISTANT.
Analyze this email and provide intelligence.

Sender: ` + orDefault(msg.Sender, NotProvided) + `
Subject: ` + orDefault(msg.Subject, NotProvided) + `
Body: ` + orDefault(msg.Body, NotProvided) + `
Context: ` + messageContext(deal, company) + `

Task:
1. Write a high-quality response draft in ` + b.language() + `.
2. Extract a list of suggested tasks from the email. Each task needs:
   - title: clear, actionable title
   - type: one of ` + quotedList(crm.TaskSales, crm.TaskDelivery, crm.TaskAdmin) + `
   - priority: one of ` + quotedList(crm.P0, crm.P1, crm.P2, crm.P3) + `
   - estimatedMinutes: estimated time to complete, in minutes
`)
}

// CallPrep asks for a sales briefing package. interactions are rendered in the
// order given; callers pass them chronologically.
func (b Builder) CallPrep(deal crm.Deal, company crm.Company, interactions []crm.Interaction, depth Depth) string {
	return strings.TrimSpace(`
ACT AS A WORLD-CLASS SALES ENGINEER.
Task: prepare a high-performance sales briefing for a high-ticket AI deal.
Context:
- Company: ` + orDefault(company.Name, UnknownCompany) + ` (Industry: ` + orDefault(company.Industry, NotProvided) + `, Domain: ` + orDefault(company.Domain, NotProvided) + `)
- Deal: ` + orDefault(deal.Title, NotProvided) + ` (Current stage: ` + orDefault(string(deal.Stage), NotProvided) + `)
- History: ` + History(interactions) + `
- Analysis depth: ` + orDefault(string(depth), string(DepthStandard)) + `

Return a JSON object with:
- snapshot: 1-2 sentences of sharp industry context
- hypotheses: 3 bold claims on how AI will save them money or generate revenue
- risks: potential technical or political roadblocks
- briefing: goal, a tight agenda, and 5 discovery questions (keyQuestions)
- followUpDraft: a direct, high-status follow-up email
`)
}

// Outreach asks for a short personalized outreach message.
func (b Builder) Outreach(deal crm.Deal, company crm.Company, tone string) string {
	return strings.TrimSpace(`
Generate a highly personalized LinkedIn outreach message.
Target: decision maker at ` + orDefault(company.Name, UnknownCompany) + `.
Topic: ` + orDefault(deal.Title, NotProvided) + `.
Tone: ` + orDefault(tone, DefaultTone) + `.
Style: no fluff. Max 3 sentences.
`)
}

// History flattens interaction contents in the order given.
func History(interactions []crm.Interaction) string {
	if len(interactions) == 0 {
		return NoInteractions
	}
	parts := make([]string, 0, len(interactions))
	for _, in := range interactions {
		parts = append(parts, orDefault(in.Content, NotProvided))
	}
	return strings.Join(parts, HistoryDelimiter)
}

func messageContext(deal *crm.Deal, company *crm.Company) string {
	if deal == nil {
		return NoDealContext
	}
	name := UnknownCompany
	if company != nil {
		name = orDefault(company.Name, UnknownCompany)
	}
	return "Associated with deal: " + orDefault(deal.Title, NotProvided) + " for " + name
}

func quotedList[T ~string](values ...T) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, "'"+string(v)+"'")
	}
	return strings.Join(parts, ", ")
}

// orDefault keeps v verbatim unless it is blank.
func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
