package review

import (
	"fmt"
	"strings"

	"applyflow/application"
)

const (
	previewLimit    = 1000
	transcriptLimit = 1900
)

// renderCard produces the staff review card body for the application's
// current state. The same renderer covers the initial post and every in-place
// edit, so the card always reflects exactly what the store holds.
func renderCard(app application.Application, questions []string) string {
	var b strings.Builder

	title := "Staff Application"
	if app.Status.Terminal() {
		title = "Staff Application (Final)"
	}
	fmt.Fprintf(&b, "%s\n", title)
	fmt.Fprintf(&b, "Applicant: %s\n", app.ApplicantID)
	fmt.Fprintf(&b, "Application ID: %s\n", app.ID)
	fmt.Fprintf(&b, "Status: %s\n", app.Status)

	if app.ReviewerID != nil {
		fmt.Fprintf(&b, "Picked by: %s\n", *app.ReviewerID)
	}
	if app.Score != nil && app.Scale != nil {
		fmt.Fprintf(&b, "Score: %d/%d\n", *app.Score, *app.Scale)
	}
	if app.Decision != nil {
		fmt.Fprintf(&b, "Decision: %s\n", *app.Decision)
	}
	if app.Reason != nil {
		fmt.Fprintf(&b, "Reason: %s\n", *app.Reason)
	}

	switch {
	case app.Status == application.StatusSubmitted:
		b.WriteString("Actions: pick\n")
	case app.Status == application.StatusClaimed:
		b.WriteString("Actions: score, approve, deny, view-transcript\n")
	case app.Status == application.StatusScored:
		b.WriteString("Actions: approve, deny, view-transcript\n")
	default:
		b.WriteString("Actions: view-transcript\n")
	}

	fmt.Fprintf(&b, "Transcript preview:\n%s", truncate(transcript(app, questions), previewLimit))
	return b.String()
}

// renderTranscript produces the full ordered Q/A transcript DM.
func renderTranscript(app application.Application, questions []string) string {
	body := transcript(app, questions)
	if body == "" {
		body = "No transcript saved"
	}
	return fmt.Sprintf("Transcript %s\n%s", app.ID, truncate(body, transcriptLimit))
}

// renderResults produces the confirm-results status summary DM.
func renderResults(app application.Application) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Application %s\n", app.ID)
	fmt.Fprintf(&b, "Applicant: %s\n", app.ApplicantID)
	fmt.Fprintf(&b, "Status: %s\n", app.Status)
	if app.Score != nil && app.Scale != nil {
		fmt.Fprintf(&b, "Score: %d/%d\n", *app.Score, *app.Scale)
	} else {
		b.WriteString("Score: not scored\n")
	}
	if app.Decision != nil {
		fmt.Fprintf(&b, "Decision: %s\n", *app.Decision)
	} else {
		b.WriteString("Decision: pending\n")
	}
	if app.Reason != nil {
		fmt.Fprintf(&b, "Reason: %s\n", *app.Reason)
	}
	return b.String()
}

func transcript(app application.Application, questions []string) string {
	var b strings.Builder
	for _, ans := range app.Answers {
		if ans.Index < len(questions) {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", questions[ans.Index], ans.Body)
		} else {
			fmt.Fprintf(&b, "Q%d\nA: %s\n", ans.Index+1, ans.Body)
		}
	}
	return b.String()
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
