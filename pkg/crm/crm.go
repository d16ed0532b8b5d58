// Package crm holds the read-only record shapes the assistant consumes.
//
// Records are owned by the caller's state management; nothing in this module mutates them.
package crm

import (
	"strings"
	"time"
)

// DealStage is a pipeline position.
type DealStage string

const (
	StageLead       DealStage = "Lead"
	StageQualified  DealStage = "Qualified"
	StageCallBooked DealStage = "Call Booked"
	StageCallDone   DealStage = "Call Done"
	StageOfferSent  DealStage = "Offer Sent"
	StageWon        DealStage = "Won"
	StageLost       DealStage = "Lost"
)

// Stages lists every deal stage in pipeline order.
var Stages = []DealStage{
	StageLead,
	StageQualified,
	StageCallBooked,
	StageCallDone,
	StageOfferSent,
	StageWon,
	StageLost,
}

func (s DealStage) Valid() bool {
	for _, v := range Stages {
		if s == v {
			return true
		}
	}
	return false
}

type TaskStatus string

const (
	TaskToDo  TaskStatus = "To-Do"
	TaskDoing TaskStatus = "Doing"
	TaskDone  TaskStatus = "Done"
)

type TaskType string

const (
	TaskSales    TaskType = "Sales"
	TaskDelivery TaskType = "Delivery"
	TaskAdmin    TaskType = "Admin"
)

// TaskTypes lists every task type.
var TaskTypes = []TaskType{TaskSales, TaskDelivery, TaskAdmin}

type TaskPriority string

const (
	P0 TaskPriority = "P0"
	P1 TaskPriority = "P1"
	P2 TaskPriority = "P2"
	P3 TaskPriority = "P3"
)

// TaskPriorities lists every priority, most urgent first.
var TaskPriorities = []TaskPriority{P0, P1, P2, P3}

type InteractionType string

const (
	InteractionEmail    InteractionType = "email"
	InteractionCall     InteractionType = "call"
	InteractionNote     InteractionType = "note"
	InteractionSystem   InteractionType = "system"
	InteractionResearch InteractionType = "research"
	InteractionOffer    InteractionType = "offer"
)

// Company is an account the user sells to.
type Company struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Domain   string `json:"domain" yaml:"domain"`
	Industry string `json:"industry" yaml:"industry"`
	Size     string `json:"size" yaml:"size"`
	Notes    string `json:"notes" yaml:"notes"`
}

type Contact struct {
	ID        string `json:"id" yaml:"id"`
	CompanyID string `json:"companyId" yaml:"company_id"`
	Name      string `json:"name" yaml:"name"`
	Email     string `json:"email" yaml:"email"`
	Phone     string `json:"phone" yaml:"phone"`
	Role      string `json:"role" yaml:"role"`
	Notes     string `json:"notes" yaml:"notes"`
}

// Deal is an opportunity with one company.
type Deal struct {
	ID               string    `json:"id" yaml:"id"`
	CompanyID        string    `json:"companyId" yaml:"company_id"`
	PrimaryContactID string    `json:"primaryContactId,omitempty" yaml:"primary_contact_id,omitempty"`
	Title            string    `json:"title" yaml:"title"`
	Stage            DealStage `json:"stage" yaml:"stage"`
	OwnerID          string    `json:"ownerId,omitempty" yaml:"owner_id,omitempty"`
	// Value is nil when no amount has been estimated yet.
	Value        *float64  `json:"value,omitempty" yaml:"value,omitempty"`
	NextStepDate time.Time `json:"nextStepDate" yaml:"next_step_date"`
	Tags         []string  `json:"tags" yaml:"tags"`
	Score        int       `json:"score" yaml:"score"`
}

type Task struct {
	ID               string       `json:"id" yaml:"id"`
	DealID           string       `json:"dealId" yaml:"deal_id"`
	Title            string       `json:"title" yaml:"title"`
	Description      string       `json:"description,omitempty" yaml:"description,omitempty"`
	Status           TaskStatus   `json:"status" yaml:"status"`
	Type             TaskType     `json:"type" yaml:"type"`
	Priority         TaskPriority `json:"priority" yaml:"priority"`
	OwnerID          string       `json:"ownerId,omitempty" yaml:"owner_id,omitempty"`
	DueDate          time.Time    `json:"dueDate" yaml:"due_date"`
	IsBlocker        bool         `json:"isBlocker" yaml:"is_blocker"`
	EstimatedMinutes int          `json:"estimatedMinutes,omitempty" yaml:"estimated_minutes,omitempty"`
}

type Interaction struct {
	ID        string          `json:"id" yaml:"id"`
	DealID    string          `json:"dealId" yaml:"deal_id"`
	Type      InteractionType `json:"type" yaml:"type"`
	Content   string          `json:"content" yaml:"content"`
	Timestamp time.Time       `json:"timestamp" yaml:"timestamp"`
}

type Mailbox struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Email    string `json:"email" yaml:"email"`
	Color    string `json:"color,omitempty" yaml:"color,omitempty"`
	Provider string `json:"provider" yaml:"provider"` // gmail, outlook, custom
}

// Message is an email-like item in one of the user's mailboxes.
type Message struct {
	ID        string    `json:"id" yaml:"id"`
	MailboxID string    `json:"mailboxId" yaml:"mailbox_id"`
	Sender    string    `json:"sender" yaml:"sender"`
	Recipient string    `json:"recipient" yaml:"recipient"`
	Subject   string    `json:"subject" yaml:"subject"`
	Body      string    `json:"body" yaml:"body"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	IsRead    bool      `json:"isRead" yaml:"is_read"`
	// DealID is empty when the message is not linked to a deal.
	DealID string   `json:"dealId,omitempty" yaml:"deal_id,omitempty"`
	Tags   []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// HasDeal reports whether the message is linked to a deal.
func (m Message) HasDeal() bool {
	return strings.TrimSpace(m.DealID) != ""
}
