package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/crm-assist/internal/server"
	"github.com/shpitdev/crm-assist/internal/snapshot"
	"github.com/shpitdev/crm-assist/internal/triage"
	"github.com/shpitdev/crm-assist/internal/version"
	"github.com/shpitdev/crm-assist/pkg/assist"
	"github.com/shpitdev/crm-assist/pkg/mockgemini"
)

const testWorkspace = `
companies:
  - id: comp-1
    name: Volkswagen AG
    domain: vw.de
    industry: Automotive
deals:
  - id: deal-1
    company_id: comp-1
    title: "Workflow Audit: Supply Chain"
    stage: Call Booked
    value: 18500
interactions:
  - id: int-2
    deal_id: deal-1
    type: note
    content: CTO ist offen für Automatisierung.
    timestamp: 2026-02-27T10:00:00Z
  - id: int-1
    deal_id: deal-1
    type: system
    content: Inbound Anfrage via Website.
    timestamp: 2026-02-26T10:00:00Z
messages:
  - id: msg-1
    mailbox_id: mb-1
    sender: CTO @ Volkswagen
    subject: Rückfrage zum KI-Audit
    body: Können wir die Latenz-Zeiten noch weiter optimieren?
    timestamp: 2026-03-01T08:00:00Z
    deal_id: deal-1
  - id: msg-2
    mailbox_id: mb-2
    sender: Hausverwaltung
    subject: Nebenkosten
    body: Anbei die Unterlagen.
    timestamp: 2026-03-01T07:00:00Z
  - id: msg-3
    mailbox_id: mb-1
    sender: Zalando
    subject: Termin
    body: Der Termin steht.
    timestamp: 2026-02-28T08:00:00Z
    is_read: true
`

// setup points the CLI at a mock provider and a fresh workspace file.
func setup(t *testing.T) (*mockgemini.Server, string) {
	t.Helper()
	for _, k := range []string{
		"API_KEY", "GEMINI_MODEL", "CRM_ASSIST_CONFIG", "CRM_ASSIST_WORKSPACE", "CRM_ASSIST_ADDR",
		"CRM_ASSIST_OWNER", "LOG_FORMAT", "TRIAGE_WORKERS", "TRIAGE_MAX_RETRIES",
		"TRIAGE_RATE_LIMIT_RPS", "TRIAGE_REQUEST_TIMEOUT", "TRIAGE_FAIL_FAST",
	} {
		t.Setenv(k, "")
	}
	mock := mockgemini.New()
	ts := httptest.NewServer(mock.Handler())
	t.Cleanup(ts.Close)
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GEMINI_BASE_URL", ts.URL)
	t.Setenv("LOG_LEVEL", "error")

	path := filepath.Join(t.TempDir(), "workspace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testWorkspace), 0o644))
	return mock, path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEnrich(t *testing.T) {
	mock, _ := setup(t)

	out, err := execute(t, "enrich", "acme-robotics.com")
	require.NoError(t, err)

	var got server.EnrichLeadResponse
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, assist.EnrichedLead{
		Name:          "Acme Robotics",
		Domain:        "acme-robotics.com",
		Industry:      "Robotics",
		PainPoint:     "Manual QA in assembly lines slows release cycles.",
		ValueEstimate: 15000,
	}, got.Lead)
	assert.Nil(t, got.Company)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, `"acme-robotics.com"`)
	assert.Equal(t, "gemini-3-flash-preview", calls[0].Model)
	assert.True(t, calls[0].HasAPIKey)
}

func TestEnrich_Create(t *testing.T) {
	setup(t)
	t.Setenv("CRM_ASSIST_OWNER", "jana")

	out, err := execute(t, "--json", "enrich", "acme-robotics.com", "--create", "--contact-name", "Jane Doe", "--contact-phone", "+49 1")
	require.NoError(t, err)
	assert.NotContains(t, strings.TrimSpace(out), "\n", "--json prints one line")

	var got server.EnrichLeadResponse
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.NotNil(t, got.Company)
	require.NotNil(t, got.Deal)
	assert.Equal(t, "Acme Robotics", got.Company.Name)
	assert.Equal(t, "Kontakt: Jane Doe | Tel: +49 1 | E-Mail: ", got.Company.Notes)
	assert.Equal(t, "AI Workflow Audit: Acme Robotics", got.Deal.Title)
	assert.Equal(t, "jana", got.Deal.OwnerID)
	require.NotNil(t, got.Deal.Value)
	assert.Equal(t, 15000.0, *got.Deal.Value)
}

func TestEnrich_CreateRejectsShortInput(t *testing.T) {
	mock, _ := setup(t)

	_, err := execute(t, "enrich", "ab", "--create")
	require.Error(t, err)
	assert.Empty(t, mock.Calls(), "short input must not reach the provider")
}

func TestEnrich_Manual(t *testing.T) {
	mock, _ := setup(t)

	out, err := execute(t, "enrich", "acme.io", "--manual")
	require.NoError(t, err)
	assert.Empty(t, mock.Calls())

	var got server.EnrichLeadResponse
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.NotNil(t, got.Company)
	assert.Equal(t, "acme.io", got.Company.Domain)
	assert.Equal(t, "TBD", got.Company.Industry)
	require.NotNil(t, got.Deal.Value)
	assert.Equal(t, 10000.0, *got.Deal.Value)
}

func TestEnrich_MissingCredential(t *testing.T) {
	setup(t)
	t.Setenv("GEMINI_API_KEY", "")

	_, err := execute(t, "enrich", "acme-robotics.com")
	var cf *assist.CompletionFailure
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, assist.FailureMissingCredential, cf.Kind)
}

func TestAnalyze(t *testing.T) {
	mock, ws := setup(t)

	out, err := execute(t, "--workspace", ws, "analyze", "msg-1", "--accept")
	require.NoError(t, err)

	var got server.AnalyzeMessageResponse
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.NotEmpty(t, got.Analysis.DraftResponse)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "deal-1", got.Tasks[0].DealID)
	assert.Equal(t, "Terminvorschlag senden", got.Tasks[0].Title)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "Workflow Audit: Supply Chain")
}

func TestAnalyze_Errors(t *testing.T) {
	_, ws := setup(t)

	_, err := execute(t, "analyze", "msg-1")
	assert.ErrorIs(t, err, errNoWorkspace)

	_, err = execute(t, "--workspace", ws, "analyze", "nope")
	assert.ErrorIs(t, err, snapshot.ErrNotFound)

	_, err = execute(t, "--workspace", ws, "analyze")
	assert.Error(t, err, "message id is required")
}

func TestPrepareCall(t *testing.T) {
	mock, ws := setup(t)

	out, err := execute(t, "--workspace", ws, "prepare-call", "deal-1", "--depth", "deep")
	require.NoError(t, err)

	var got assist.CallBriefing
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "Agree on a scoped pilot", got.Briefing.Goal)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	p := calls[0].Prompt
	assert.Contains(t, p, "Deep")
	first := strings.Index(p, "Inbound Anfrage")
	second := strings.Index(p, "CTO ist offen")
	require.True(t, first >= 0 && second >= 0)
	assert.Less(t, first, second, "interactions are rendered oldest first")

	_, err = execute(t, "--workspace", ws, "prepare-call", "deal-1", "--depth", "thorough")
	assert.Error(t, err)
}

func TestOutreach(t *testing.T) {
	mock, ws := setup(t)

	out, err := execute(t, "--workspace", ws, "outreach", "deal-1", "--tone", "friendly")
	require.NoError(t, err)

	var got assist.OutreachDraft
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.NotEmpty(t, got.Message)
	require.Len(t, mock.Calls(), 1)
	assert.Contains(t, mock.Calls()[0].Prompt, "friendly")
}

func TestTriage(t *testing.T) {
	mock, ws := setup(t)
	mock.Respond(func(c mockgemini.Call) string {
		if strings.Contains(c.Prompt, "Nebenkosten") {
			return "not json"
		}
		return mockgemini.Canned(c)
	})
	outPath := filepath.Join(t.TempDir(), "triage.csv")

	_, err := execute(t, "--workspace", ws, "triage", "--output", outPath, "--workers", "2")
	require.NoError(t, err)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus the two unread messages")
	assert.Equal(t, triage.Header(), records[0])

	// Oldest unread first; an undecodable answer is an empty analysis, not an error.
	assert.Equal(t, "msg-2", records[1][0])
	assert.Equal(t, triage.StatusOK, records[1][4])
	assert.Equal(t, "", records[1][6])
	assert.Equal(t, "msg-1", records[2][0])
	assert.NotEmpty(t, records[2][6])
}

func TestTriage_ProviderFailure(t *testing.T) {
	mock, ws := setup(t)
	mock.FailNext(-1, http.StatusServiceUnavailable)

	out, err := execute(t, "--workspace", ws, "triage", "--mailbox", "mb-1")
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, triage.StatusError, records[1][4])
	assert.Contains(t, records[1][5], "503")

	_, err = execute(t, "--workspace", ws, "triage", "--fail-fast")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	t.Setenv("LOG_FORMAT", "bogus")

	out, err := execute(t, "version")
	require.NoError(t, err, "version needs no configuration")
	assert.Equal(t, version.Current+"\n", out)
}

func TestServe(t *testing.T) {
	_, ws := setup(t)

	a, err := loadApp(rootOptions{workspace: ws}, io.Discard)
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	resp, err := http.Post(base+"/v1/deals/deal-1/outreach?tone=formal", "application/json", nil)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `assist_operations_total{op="generate_outreach",outcome="ok"} 1`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func TestServe_ListenError(t *testing.T) {
	setup(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = execute(t, "serve", "--addr", ln.Addr().String())
	var opErr *net.OpError
	assert.True(t, errors.As(err, &opErr), "got %v", err)
}
