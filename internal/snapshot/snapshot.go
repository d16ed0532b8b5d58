// Package snapshot provides read-only lookups over a CRM workspace document.
//
// A workspace is a YAML file holding mailboxes, companies, contacts, deals, tasks,
// interactions and messages. Nothing here writes to it.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/shpitdev/crm-assist/pkg/crm"
)

// ErrNotFound is wrapped by lookups that miss.
var ErrNotFound = errors.New("not found")

// Data is the on-disk shape of a workspace.
type Data struct {
	Mailboxes    []crm.Mailbox     `yaml:"mailboxes"`
	Companies    []crm.Company     `yaml:"companies"`
	Contacts     []crm.Contact     `yaml:"contacts"`
	Deals        []crm.Deal        `yaml:"deals"`
	Tasks        []crm.Task        `yaml:"tasks"`
	Interactions []crm.Interaction `yaml:"interactions"`
	Messages     []crm.Message     `yaml:"messages"`
}

type Workspace struct {
	data Data

	companies map[string]int
	contacts  map[string]int
	deals     map[string]int
	messages  map[string]int
	mailboxes map[string]int
	// dealInteractions holds indexes into data.Interactions, oldest first.
	dealInteractions map[string][]int
}

// Empty returns a workspace with no records.
func Empty() *Workspace {
	w, _ := New(Data{})
	return w
}

// New indexes d. Duplicate IDs within one collection are rejected.
func New(d Data) (*Workspace, error) {
	w := &Workspace{
		data:             d,
		dealInteractions: make(map[string][]int),
	}
	var err error
	if w.companies, err = index("company", d.Companies, func(c crm.Company) string { return c.ID }); err != nil {
		return nil, err
	}
	if w.contacts, err = index("contact", d.Contacts, func(c crm.Contact) string { return c.ID }); err != nil {
		return nil, err
	}
	if w.deals, err = index("deal", d.Deals, func(d crm.Deal) string { return d.ID }); err != nil {
		return nil, err
	}
	if w.messages, err = index("message", d.Messages, func(m crm.Message) string { return m.ID }); err != nil {
		return nil, err
	}
	if w.mailboxes, err = index("mailbox", d.Mailboxes, func(m crm.Mailbox) string { return m.ID }); err != nil {
		return nil, err
	}

	for i, it := range d.Interactions {
		w.dealInteractions[it.DealID] = append(w.dealInteractions[it.DealID], i)
	}
	for _, idx := range w.dealInteractions {
		sort.SliceStable(idx, func(a, b int) bool {
			return d.Interactions[idx[a]].Timestamp.Before(d.Interactions[idx[b]].Timestamp)
		})
	}
	return w, nil
}

func index[T any](kind string, items []T, id func(T) string) (map[string]int, error) {
	out := make(map[string]int, len(items))
	for i, it := range items {
		k := id(it)
		if k == "" {
			return nil, fmt.Errorf("%s #%d has no id", kind, i+1)
		}
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("duplicate %s id %q", kind, k)
		}
		out[k] = i
	}
	return out, nil
}

// Parse decodes a YAML workspace document. Unknown keys are rejected.
func Parse(b []byte) (*Workspace, error) {
	var d Data
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse workspace: %w", err)
	}
	return New(d)
}

func LoadFile(path string) (*Workspace, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workspace: %w", err)
	}
	w, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

func (w *Workspace) Company(id string) (crm.Company, bool) {
	return lookup(w.data.Companies, w.companies, id)
}

func (w *Workspace) Contact(id string) (crm.Contact, bool) {
	return lookup(w.data.Contacts, w.contacts, id)
}

func (w *Workspace) Deal(id string) (crm.Deal, bool) {
	return lookup(w.data.Deals, w.deals, id)
}

func (w *Workspace) Message(id string) (crm.Message, bool) {
	return lookup(w.data.Messages, w.messages, id)
}

func (w *Workspace) Mailbox(id string) (crm.Mailbox, bool) {
	return lookup(w.data.Mailboxes, w.mailboxes, id)
}

func lookup[T any](items []T, idx map[string]int, id string) (T, bool) {
	i, ok := idx[id]
	if !ok {
		var zero T
		return zero, false
	}
	return items[i], true
}

// Interactions returns the deal's interactions oldest first.
func (w *Workspace) Interactions(dealID string) []crm.Interaction {
	idx := w.dealInteractions[dealID]
	out := make([]crm.Interaction, 0, len(idx))
	for _, i := range idx {
		out = append(out, w.data.Interactions[i])
	}
	return out
}

// Unread returns unread messages oldest first. An empty mailboxID matches every
// mailbox.
func (w *Workspace) Unread(mailboxID string) []crm.Message {
	var out []crm.Message
	for _, m := range w.data.Messages {
		if m.IsRead || (mailboxID != "" && m.MailboxID != mailboxID) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Timestamp.Before(out[b].Timestamp) })
	return out
}

// Deals returns every deal in document order.
func (w *Workspace) Deals() []crm.Deal {
	return append([]crm.Deal(nil), w.data.Deals...)
}

// Counts reports the number of records per collection.
func (w *Workspace) Counts() map[string]int {
	return map[string]int{
		"mailboxes":    len(w.data.Mailboxes),
		"companies":    len(w.data.Companies),
		"contacts":     len(w.data.Contacts),
		"deals":        len(w.data.Deals),
		"tasks":        len(w.data.Tasks),
		"interactions": len(w.data.Interactions),
		"messages":     len(w.data.Messages),
	}
}

// MessageContext resolves a message with its deal and the deal's company. deal and
// company are nil when the message has no deal or the referenced records are absent.
func (w *Workspace) MessageContext(messageID string) (crm.Message, *crm.Deal, *crm.Company, error) {
	msg, ok := w.Message(messageID)
	if !ok {
		return crm.Message{}, nil, nil, fmt.Errorf("message %q: %w", messageID, ErrNotFound)
	}
	if !msg.HasDeal() {
		return msg, nil, nil, nil
	}
	deal, ok := w.Deal(msg.DealID)
	if !ok {
		return msg, nil, nil, nil
	}
	company, ok := w.Company(deal.CompanyID)
	if !ok {
		return msg, &deal, nil, nil
	}
	return msg, &deal, &company, nil
}

// DealContext resolves a deal with its company and interactions, oldest first.
func (w *Workspace) DealContext(dealID string) (crm.Deal, crm.Company, []crm.Interaction, error) {
	deal, ok := w.Deal(dealID)
	if !ok {
		return crm.Deal{}, crm.Company{}, nil, fmt.Errorf("deal %q: %w", dealID, ErrNotFound)
	}
	company, ok := w.Company(deal.CompanyID)
	if !ok {
		return crm.Deal{}, crm.Company{}, nil, fmt.Errorf("company %q of deal %q: %w", deal.CompanyID, dealID, ErrNotFound)
	}
	return deal, company, w.Interactions(dealID), nil
}
