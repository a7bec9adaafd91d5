package notify

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/digital-land/submit/internal/pkg/render"
)

//go:embed templates/*.liquid
var templateFS embed.FS

// Submission is what a user entered in the submit journey.
type Submission struct {
	Reference        string
	Name             string
	Email            string
	Organisation     string
	Dataset          string
	DatasetName      string
	DocumentationURL string
	EndpointURL      string
	SubmittedAt      time.Time
}

// Notifier sends the confirmation to the submitter and the request to the
// data management team.
type Notifier struct {
	sender Sender
	engine *render.Engine
	team   string
}

// NewNotifier creates a notifier. team is the data management inbox.
func NewNotifier(sender Sender, engine *render.Engine, team string) *Notifier {
	return &Notifier{sender: sender, engine: engine, team: team}
}

// NotifySubmission sends both emails. The team email is sent first so a
// failure there is reported before the user is told it worked.
func (n *Notifier) NotifySubmission(ctx context.Context, s Submission) error {
	vars := map[string]interface{}{
		"reference":         s.Reference,
		"name":              s.Name,
		"email":             s.Email,
		"organisation":      s.Organisation,
		"dataset":           s.Dataset,
		"dataset_name":      s.DatasetName,
		"documentation_url": s.DocumentationURL,
		"endpoint_url":      s.EndpointURL,
		"submitted_at":      s.SubmittedAt.UTC().Format(time.RFC1123),
	}

	if n.team != "" {
		body, err := n.renderTemplate("request", vars)
		if err != nil {
			return err
		}
		if _, err := n.sender.Send(ctx, Message{
			To:      []string{n.team},
			ReplyTo: s.Email,
			Subject: fmt.Sprintf("New %s submission from %s", s.DatasetName, s.Organisation),
			HTML:    body,
		}); err != nil {
			return fmt.Errorf("notify team: %w", err)
		}
	}

	body, err := n.renderTemplate("confirmation", vars)
	if err != nil {
		return err
	}
	if _, err := n.sender.Send(ctx, Message{
		To:      []string{s.Email},
		Subject: fmt.Sprintf("Your %s submission has been received", s.DatasetName),
		HTML:    body,
	}); err != nil {
		return fmt.Errorf("notify submitter: %w", err)
	}
	return nil
}

func (n *Notifier) renderTemplate(name string, vars map[string]interface{}) (string, error) {
	src, err := templateFS.ReadFile("templates/" + name + ".liquid")
	if err != nil {
		return "", fmt.Errorf("email template %s: %w", name, err)
	}
	return n.engine.Render("email:"+name, string(src), vars)
}
