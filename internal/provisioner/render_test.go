package provisioner

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/poruru/restaurant-baas/cli/internal/schema"
)

func sampleReport() Report {
	return Report{
		Database: "restaurant-db",
		Results: []Result{
			{Kind: KindDatabase, ID: "restaurant-db", Outcome: AlreadyExists},
			{Kind: KindCollection, ID: "things", Outcome: Created},
			{Kind: KindIndex, ID: "ghost_index", Parent: "things", Outcome: Failed, Err: schema.ErrInvalidIndexReference},
			{Kind: KindIndex, ID: "name_index", Parent: "things", Outcome: Skipped, Err: ErrSkipped},
		},
	}
}

func TestRenderText(t *testing.T) {
	text, err := RenderText(sampleReport())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		"Provisioning report: restaurant-db",
		"! index",
		"things.ghost_index",
		"Failures:\n  - things.ghost_index: invalid index reference",
		"Summary: 1 created, 1 already existed, 1 failed, 1 skipped (4 total)",
		"Result: FAILED",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}
}

func TestRenderTextSuccess(t *testing.T) {
	report := Report{Database: "db", Results: []Result{{Kind: KindDatabase, ID: "db", Outcome: Created}}}
	text, err := RenderText(report)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(text, "Result: SUCCESS") || strings.Contains(text, "Failures:") {
		t.Fatalf("unexpected output:\n%s", text)
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleReport(), FormatJSON); err != nil {
		t.Fatalf("render: %v", err)
	}
	var decoded struct {
		Success bool `json:"success"`
		Counts  struct {
			Failed int `json:"failed"`
		} `json:"counts"`
		Results []struct {
			Path    string `json:"id"`
			Parent  string `json:"parent"`
			Outcome string `json:"outcome"`
			Error   string `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if decoded.Success || decoded.Counts.Failed != 1 || len(decoded.Results) != 4 {
		t.Fatalf("unexpected json: %s", buf.String())
	}
	if got := decoded.Results[2]; got.Parent != "things" || got.Outcome != "failed" || got.Error != "invalid index reference" {
		t.Fatalf("unexpected failed entry: %+v", got)
	}
}

func TestRenderRejectsUnknownFormat(t *testing.T) {
	if err := Render(&bytes.Buffer{}, Report{}, "xml"); err == nil {
		t.Fatal("expected error")
	}
}

func TestReportSuccessRules(t *testing.T) {
	if (Report{Aborted: true}).Success() {
		t.Fatal("aborted report cannot succeed")
	}
	if !(Report{}).Success() {
		t.Fatal("empty, unaborted report is successful")
	}
	r := sampleReport()
	if got := r.Failures(); len(got) != 1 || !errors.Is(got[0].Err, schema.ErrInvalidIndexReference) {
		t.Fatalf("unexpected failures: %+v", got)
	}
	if r.CollectionSucceeded("things") || r.CollectionSucceeded("missing") {
		t.Fatal("unexpected collection success")
	}
}
