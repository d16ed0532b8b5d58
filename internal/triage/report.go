package triage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shpitdev/crm-assist/pkg/assist"
	"github.com/shpitdev/crm-assist/pkg/redact"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Header returns the report columns in their stable order.
func Header() []string {
	return []string{
		"message_id",
		"mailbox_id",
		"sender",
		"subject",
		"status",
		"error",
		"draft_response",
		"suggested_tasks",
	}
}

// WriteCSV writes one row per result. suggested_tasks holds the suggestions as a
// JSON array; errors are redacted.
func WriteCSV(w io.Writer, results []Result[Item, assist.MessageAnalysis]) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	for _, res := range results {
		msg := res.Input.Message
		status, errText := StatusOK, ""
		if res.Err != nil {
			status, errText = StatusError, redact.Secrets(res.Err.Error())
		}
		tasks := res.Output.SuggestedTasks
		if tasks == nil {
			tasks = []assist.SuggestedTask{}
		}
		b, err := json.Marshal(tasks)
		if err != nil {
			return fmt.Errorf("encode suggested tasks for %s: %w", msg.ID, err)
		}
		if err := cw.Write([]string{
			msg.ID,
			msg.MailboxID,
			msg.Sender,
			msg.Subject,
			status,
			errText,
			res.Output.DraftResponse,
			string(b),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
