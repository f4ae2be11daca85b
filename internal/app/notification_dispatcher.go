package app

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/example/warden/internal/core/escalation"
	"github.com/example/warden/internal/ports/secondary"
)

// RelatedEntityEscalation is the related entity type stamped on every notification.
const RelatedEntityEscalation = "escalation"

const defaultSubjectTemplate = `[{{ .Priority | upper }}] ` +
	`{{- if eq .Action "created" }} SLA breach{{ else if eq .Action "escalated" }} Escalated to level {{ .Level }}{{ else }} Manual escalation{{ end }}: ` +
	`{{ .WorkItemClass | replace "_" " " | title }} {{ .WorkItemID }}`

const defaultMessageTemplate = `{{ .Reason }}

Assigned to: {{ .Role }}{{ with .User }} ({{ . }}){{ end }}
Escalation: {{ .EscalationID }} (level {{ .Level }}{{ with .ParentID }}, follows {{ . }}{{ end }})
Raised by: {{ .Actor }} at {{ .CreatedAt | date "2006-01-02 15:04 MST" }}`

// notificationData is the template context for subject and message.
type notificationData struct {
	Action        string
	EscalationID  string
	ParentID      string
	WorkItemClass string
	WorkItemID    string
	Level         int
	Priority      string
	Role          string
	User          string
	Reason        string
	Actor         string
	CreatedAt     time.Time
}

// NotificationDispatcher renders and records one notification per escalation
// transition. It never delivers anything; the relay owns delivery.
type NotificationDispatcher struct {
	subject *template.Template
	message *template.Template
}

// NewNotificationDispatcher creates a dispatcher with the built-in templates.
func NewNotificationDispatcher() *NotificationDispatcher {
	d, err := NewNotificationDispatcherWithTemplates(defaultSubjectTemplate, defaultMessageTemplate)
	if err != nil {
		panic(fmt.Sprintf("built-in notification templates: %v", err))
	}
	return d
}

// NewNotificationDispatcherWithTemplates parses custom subject and message templates.
func NewNotificationDispatcherWithTemplates(subject, message string) (*NotificationDispatcher, error) {
	subjectTmpl, err := template.New("subject").Funcs(sprig.TxtFuncMap()).Parse(subject)
	if err != nil {
		return nil, fmt.Errorf("failed to parse subject template: %w", err)
	}
	messageTmpl, err := template.New("message").Funcs(sprig.TxtFuncMap()).Parse(message)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message template: %w", err)
	}
	return &NotificationDispatcher{subject: subjectTmpl, message: messageTmpl}, nil
}

// Notify records a notification for the escalation's target. It must be called
// with the notification repository of the transaction that wrote e.
func (d *NotificationDispatcher) Notify(ctx context.Context, repo secondary.NotificationRepository, e *secondary.EscalationRecord, action escalation.Action) error {
	data := notificationData{
		Action:        string(action),
		EscalationID:  e.ID,
		ParentID:      e.ParentEscalationID,
		WorkItemClass: e.WorkItemClass,
		WorkItemID:    e.WorkItemID,
		Level:         e.Level,
		Priority:      e.Priority,
		Role:          e.EscalatedToRole,
		User:          e.EscalatedToUser,
		Reason:        e.Reason,
		Actor:         e.CreatedBy,
		CreatedAt:     e.CreatedAt,
	}

	subject, err := render(d.subject, data)
	if err != nil {
		return err
	}
	message, err := render(d.message, data)
	if err != nil {
		return err
	}

	return repo.Append(ctx, &secondary.NotificationRecord{
		RecipientRole:     e.EscalatedToRole,
		RecipientUser:     e.EscalatedToUser,
		Subject:           subject,
		Message:           message,
		Priority:          e.Priority,
		RelatedEntityType: RelatedEntityEscalation,
		RelatedEntityID:   e.ID,
		Metadata: map[string]any{
			"action":        string(action),
			"level":         e.Level,
			"workItemClass": e.WorkItemClass,
			"workItemId":    e.WorkItemID,
		},
		CreatedAt: e.CreatedAt,
	})
}

func render(tmpl *template.Template, data notificationData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
