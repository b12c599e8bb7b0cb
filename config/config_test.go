package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
questions:
  - "Why do you want to join the staff team?"
  - "What is your prior experience?"
cooldown_seconds: 86400
scales: [10, 100]
templates:
  approved: "Approved {id} by {reviewer}: {score}/{scale}. {reason}"
  denied: "Denied {id} by {reviewer}: {score}/{scale}. {reason}"
staff_conversation_id: "staff-review"
auth:
  jwt_secret: "secret"
`

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(cfg.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(cfg.Questions))
	}
	if cfg.Cooldown() != 24*time.Hour {
		t.Fatalf("expected 24h cooldown, got %s", cfg.Cooldown())
	}
	if !cfg.ValidScale(10) || !cfg.ValidScale(100) || cfg.ValidScale(50) {
		t.Fatalf("unexpected scale set: %v", cfg.Scales)
	}
	if cfg.StaffConversationID != "staff-review" {
		t.Fatalf("unexpected staff conversation: %q", cfg.StaffConversationID)
	}
	if cfg.Auth.JWTSecret != "secret" {
		t.Fatalf("unexpected jwt secret: %q", cfg.Auth.JWTSecret)
	}
}

func TestFromYAML_Defaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
questions: ["Only question?"]
staff_conversation_id: "staff"
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	for _, scale := range []int{5, 10, 50, 100} {
		if !cfg.ValidScale(scale) {
			t.Fatalf("expected default scale %d to be valid", scale)
		}
	}
	if cfg.Templates.Approved == "" || cfg.Templates.Denied == "" {
		t.Fatal("expected default result templates")
	}
}

func TestFromYAML_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"no questions", `staff_conversation_id: "staff"`, "at least one question"},
		{"blank question", "questions: [\" \"]\nstaff_conversation_id: \"staff\"", "question 1 is empty"},
		{"negative cooldown", "questions: [\"Q?\"]\ncooldown_seconds: -5\nstaff_conversation_id: \"staff\"", "cooldown_seconds"},
		{"bad scale", "questions: [\"Q?\"]\nscales: [0]\nstaff_conversation_id: \"staff\"", "scale 0"},
		{"no staff conversation", `questions: ["Q?"]`, "staff_conversation_id"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "applyflow.yml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(cfg.Questions))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestTemplate_Render(t *testing.T) {
	tmpl := Template("Application {id} reviewed by {reviewer}: {score}/{scale}. Reason: {reason}")
	got := tmpl.Render(Values{
		ID:       "app-1",
		Reviewer: "rev-9",
		Score:    42,
		Scale:    50,
		Reason:   "Great fit",
	})
	want := "Application app-1 reviewed by rev-9: 42/50. Reason: Great fit"
	if got != want {
		t.Fatalf("render mismatch:\n got %q\nwant %q", got, want)
	}
}
