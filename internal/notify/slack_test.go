package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hamed0406/reachcheck/internal/diagnose"
	"github.com/hamed0406/reachcheck/internal/domain"
)

func TestSlack_OK(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		got = payload["text"]
		w.WriteHeader(200)
	}))
	defer ts.Close()

	s := NewSlack(ts.URL)
	if s == nil {
		t.Fatal("expected slack client")
	}
	err := s.Send(context.Background(), "Title", "Hello")
	if err != nil {
		t.Fatalf("send err: %v", err)
	}
	if !strings.HasPrefix(got, "*Title*") {
		t.Fatalf("payload not as expected: %q", got)
	}
}

func TestSlack_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer ts.Close()

	s := NewSlack(ts.URL)
	err := s.Send(context.Background(), "X", "Y")
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected error on non-2xx, got %v", err)
	}
}

func TestSlack_DisabledWithoutWebhook(t *testing.T) {
	if NewSlack("") != nil {
		t.Fatal("empty webhook should disable slack")
	}
}

type captured struct {
	title, text string
	err         error
}

func (c *captured) Send(_ context.Context, title, text string) error {
	c.title, c.text = title, text
	return c.err
}

func degradedReport() diagnose.Report {
	return diagnose.Report{
		RunID: "run-1",
		Port:  8000,
		Outcomes: []domain.ProbeOutcome{
			{Target: domain.ProbeTarget{Mode: domain.ModeLoopback, Host: "127.0.0.1", Port: 8000, Path: "/health"}, Result: domain.ResultSuccess, StatusCode: 200},
			{Target: domain.ProbeTarget{Mode: domain.ModeDockerBridgeGateway, Host: "172.17.0.1", Port: 8000, Path: "/health"}, Result: domain.ResultConnectionRefused},
		},
		Recommendation: domain.Recommendation{
			Diagnosis: domain.DiagnosisContainerNetworkIsolation,
			Primary:   domain.ModeLoopback,
			Remedy:    domain.RemedyProvisionFirewall,
		},
		Severity: domain.SeverityDegraded,
	}
}

func TestReport_SendsOnlyWhenNotOK(t *testing.T) {
	c := &captured{}
	sent, err := Report(context.Background(), c, degradedReport())
	if err != nil || !sent {
		t.Fatalf("expected send, got sent=%v err=%v", sent, err)
	}
	if c.title != "reachcheck: degraded on port 8000" {
		t.Fatalf("unexpected title %q", c.title)
	}
	for _, want := range []string{"container_network_isolation", "docker-bridge-gateway", "connection_refused", "Docker bridge subnet", "run-1"} {
		if !strings.Contains(c.text, want) {
			t.Fatalf("text missing %q: %q", want, c.text)
		}
	}
	if strings.Contains(c.text, "• loopback") {
		t.Fatalf("reachable modes should not be listed: %q", c.text)
	}

	ok := degradedReport()
	ok.Severity = domain.SeverityOK
	c = &captured{}
	if sent, _ := Report(context.Background(), c, ok); sent || c.title != "" {
		t.Fatalf("ok run must not notify")
	}
}

func TestMulti_CollectsAllErrors(t *testing.T) {
	a := &captured{err: errors.New("a down")}
	b := &captured{}
	c := &captured{err: errors.New("c down")}
	err := Multi{a, nil, b, c}.Send(context.Background(), "t", "x")
	if err == nil || !strings.Contains(err.Error(), "a down") || !strings.Contains(err.Error(), "c down") {
		t.Fatalf("expected both errors, got %v", err)
	}
	if b.title != "t" {
		t.Fatalf("healthy notifier should still be called")
	}
}

func TestSlack_ReportCarriesVerdictFields(t *testing.T) {
	var payload slackPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(200)
	}))
	defer ts.Close()

	sent, err := Report(context.Background(), NewSlack(ts.URL), degradedReport())
	if err != nil || !sent {
		t.Fatalf("expected send, got sent=%v err=%v", sent, err)
	}
	if !strings.HasPrefix(payload.Text, "*reachcheck: degraded on port 8000*") {
		t.Fatalf("unexpected text %q", payload.Text)
	}
	if len(payload.Attachments) != 1 {
		t.Fatalf("expected one attachment, got %d", len(payload.Attachments))
	}
	att := payload.Attachments[0]
	if att.Color != "warning" {
		t.Fatalf("degraded should be warning, got %q", att.Color)
	}
	fields := map[string]string{}
	for _, f := range att.Fields {
		fields[f.Title] = f.Value
	}
	want := map[string]string{
		"severity":  "degraded",
		"diagnosis": "container_network_isolation",
		"port":      "8000",
		"primary":   "loopback",
		"run":       "run-1",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Fatalf("field %s = %q, want %q", k, fields[k], v)
		}
	}
}

func TestMulti_DeliversAlertFieldsToCapableNotifiers(t *testing.T) {
	var attachments int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p slackPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		attachments = len(p.Attachments)
		w.WriteHeader(200)
	}))
	defer ts.Close()

	plain := &captured{}
	if _, err := Report(context.Background(), Multi{plain, NewSlack(ts.URL)}, degradedReport()); err != nil {
		t.Fatalf("report: %v", err)
	}
	if attachments != 1 {
		t.Fatalf("slack should get the structured alert, got %d attachments", attachments)
	}
	if plain.title != "reachcheck: degraded on port 8000" {
		t.Fatalf("plain notifier should get title and text, got %q", plain.title)
	}
}
