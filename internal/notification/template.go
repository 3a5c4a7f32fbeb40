package notification

import (
	"fmt"
	"strings"
)

// Template is a customer-facing message with {{var}} placeholders filled
// from the event's variables.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// Registry holds the known templates. Unknown template ids are a hard error:
// they indicate a producer bug, not a rendering problem.
type Registry struct {
	templates map[string]Template
}

func NewRegistry() *Registry {
	r := &Registry{templates: map[string]Template{}}
	r.Register(Template{
		ID:      "order-confirmed",
		Subject: "Your order {{orderId}} is confirmed",
		Body:    "Thanks for your purchase! Order {{orderId}} for {{totalAmount}} {{currency}} has been confirmed and is being prepared.",
	})
	r.Register(Template{
		ID:      "order-cancelled",
		Subject: "Your order {{orderId}} was cancelled",
		Body:    "We could not complete order {{orderId}}: {{reason}}. Any charges have been refunded.",
	})
	return r
}

func (r *Registry) Register(t Template) {
	r.templates[t.ID] = t
}

// Render fills the template's placeholders. Placeholders without a matching
// variable are left as-is so the gap is visible downstream.
func (r *Registry) Render(templateID string, vars map[string]any) (subject, body string, err error) {
	t, ok := r.templates[templateID]
	if !ok {
		return "", "", fmt.Errorf("unknown notification template %q", templateID)
	}
	return substitute(t.Subject, vars), substitute(t.Body, vars), nil
}

func substitute(s string, vars map[string]any) string {
	for k, v := range vars {
		s = strings.ReplaceAll(s, "{{"+k+"}}", fmt.Sprint(v))
	}
	return s
}
