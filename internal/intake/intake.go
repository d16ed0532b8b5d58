// Package intake turns assistant suggestions into CRM records the caller may store.
// Nothing here persists anything.
package intake

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/shpitdev/crm-assist/pkg/assist"
	"github.com/shpitdev/crm-assist/pkg/crm"
)

const (
	// GlobalDealID is used for tasks from messages that are not linked to a deal.
	GlobalDealID = "global"

	DefaultDealValue = 10000.0
	DefaultLeadScore = 85
	MinInputLength   = 3

	// MaxEstimatedMinutes caps a suggested estimate at one week.
	MaxEstimatedMinutes = 7 * 24 * 60
)

// ErrInputTooShort is returned for lead inputs shorter than MinInputLength.
var ErrInputTooShort = fmt.Errorf("lead input must be at least %d characters", MinInputLength)

// CheckInput validates a free-text lead hint before enrichment.
func CheckInput(raw string) error {
	if utf8.RuneCountInString(strings.TrimSpace(raw)) < MinInputLength {
		return ErrInputTooShort
	}
	return nil
}

// Mapper builds records. The zero value works; Now and NewID exist for tests.
type Mapper struct {
	OwnerID string
	Now     func() time.Time
	NewID   func(prefix string) string
}

func (m Mapper) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m Mapper) id(prefix string) string {
	if m.NewID != nil {
		return m.NewID(prefix)
	}
	return prefix + "-" + uuid.NewString()
}

// Task converts one suggestion raised by msg. Type and Priority are carried over
// unchanged; a P0 suggestion becomes a blocker.
func (m Mapper) Task(s assist.SuggestedTask, msg crm.Message) crm.Task {
	dealID := GlobalDealID
	if msg.HasDeal() {
		dealID = msg.DealID
	}
	minutes := 0
	if s.EstimatedMinutes > 0 {
		minutes = int(math.Round(math.Min(s.EstimatedMinutes, MaxEstimatedMinutes)))
	}
	return crm.Task{
		ID:               m.id("task"),
		DealID:           dealID,
		Title:            s.Title,
		Status:           crm.TaskToDo,
		Type:             crm.TaskType(s.Type),
		Priority:         crm.TaskPriority(s.Priority),
		OwnerID:          m.OwnerID,
		DueDate:          m.now(),
		IsBlocker:        crm.TaskPriority(s.Priority) == crm.P0,
		EstimatedMinutes: minutes,
	}
}

// Tasks converts every suggestion in a, in order.
func (m Mapper) Tasks(a assist.MessageAnalysis, msg crm.Message) []crm.Task {
	out := make([]crm.Task, 0, len(a.SuggestedTasks))
	for _, s := range a.SuggestedTasks {
		out = append(out, m.Task(s, msg))
	}
	return out
}

type Contact struct {
	Name  string
	Email string
	Phone string
}

// Lead builds a new company and its first deal. enriched may be nil when
// enrichment was skipped; the company is then derived from input alone.
func (m Mapper) Lead(input string, enriched *assist.EnrichedLead, contact Contact) (crm.Company, crm.Deal, error) {
	input = strings.TrimSpace(input)
	if enriched == nil {
		if err := CheckInput(input); err != nil {
			return crm.Company{}, crm.Deal{}, err
		}
		manual := assist.EnrichedLead{Name: input, Industry: "TBD"}
		if strings.Contains(input, ".") {
			manual.Domain = input
		}
		enriched = &manual
	}

	company := crm.Company{
		ID:       m.id("comp"),
		Name:     orDefault(enriched.Name, "Unknown Company"),
		Domain:   enriched.Domain,
		Industry: orDefault(enriched.Industry, "TBD"),
		Size:     "N/A",
		Notes:    fmt.Sprintf("Kontakt: %s | Tel: %s | E-Mail: %s", contact.Name, contact.Phone, contact.Email),
	}

	value := DefaultDealValue
	if enriched.ValueEstimate > 0 {
		value = enriched.ValueEstimate
	}
	title := "AI Workflow Audit: " + firstNonEmpty(enriched.Name, input, "New Lead")

	deal := crm.Deal{
		ID:           m.id("deal"),
		CompanyID:    company.ID,
		Title:        title,
		Stage:        crm.StageLead,
		OwnerID:      m.OwnerID,
		Value:        &value,
		NextStepDate: m.now(),
		Tags:         []string{"manual-entry", "audit"},
		Score:        DefaultLeadScore,
	}
	return company, deal, nil
}

// IsInputTooShort reports whether err came from CheckInput.
func IsInputTooShort(err error) bool { return errors.Is(err, ErrInputTooShort) }

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
