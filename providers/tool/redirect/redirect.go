package redirect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/leofalp/chatflow/core/parse"
	"github.com/leofalp/chatflow/internal/jsonschema"
	"github.com/leofalp/chatflow/internal/utils"
	"github.com/leofalp/chatflow/providers/ai"
	"github.com/leofalp/chatflow/providers/observability"
	"github.com/leofalp/chatflow/providers/tool"
)

// Name is both the tool name advertised to the model and the id of the tool
// node that executes it.
const Name = "redirect"

// ErrNoThread is returned when the tool runs outside a conversation thread.
var ErrNoThread = errors.New("redirect: no thread id in context")

// Args are the customer details the model collects before handing over.
type Args struct {
	ClientName  string `json:"clientName"`
	ClientEmail string `json:"clientEmail"`
	ClientRut   string `json:"clientRut"`
	Reason      string `json:"reason"`
}

// Notifier delivers the hand-over notice to the human team.
type Notifier interface {
	Notify(ctx context.Context, chatID, body string) error
}

// FollowUpMarker stops automatic follow-ups for a chat that was handed over.
type FollowUpMarker interface {
	MarkAllSent(ctx context.Context, chatID string) error
}

// Config wires the tool to its collaborators. Notifier is required;
// FollowUps is optional.
type Config struct {
	PublicName string
	Location   *time.Location
	Notifier   Notifier
	FollowUps  FollowUpMarker
	Now        func() time.Time
}

// Tool hands a conversation over to a human operator.
type Tool struct {
	config Config
}

var _ tool.Tool = (*Tool)(nil)

// New builds the redirect tool.
func New(config Config) *Tool {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Tool{config: config}
}

// Parameters is the closed schema the model must fill in.
func Parameters() *jsonschema.Schema {
	return jsonschema.Object(map[string]*jsonschema.Schema{
		"clientName":  {Type: "string", Description: "Full name of the customer"},
		"clientEmail": {Type: "string", Description: "Email address of the customer"},
		"clientRut":   {Type: "string", Description: "Chilean RUT of the customer"},
		"reason":      {Type: "string", Description: "Why the customer needs a human operator"},
	}, "clientName", "clientEmail", "clientRut", "reason")
}

func (t *Tool) Info() ai.ToolDescription {
	return ai.ToolDescription{
		Name:        Name,
		Description: "Redirects the conversation to a human operator once the customer's name, email, RUT and reason are known.",
		Parameters:  Parameters(),
	}
}

// Invoke notifies the team about the hand-over, stops follow-ups for the
// chat and answers the call with a closing message for the customer.
func (t *Tool) Invoke(ctx context.Context, call ai.ToolCall) (ai.Message, error) {
	chatID := tool.ThreadFromContext(ctx)
	if chatID == "" {
		return ai.Message{}, ErrNoThread
	}

	args, err := parse.ParseStringAs[Args](call.Function.Arguments)
	if err != nil {
		return tool.ResultMessage(call, Name, ai.NewToolResultError("invalid_arguments", err.Error())), nil
	}

	if err := t.config.Notifier.Notify(ctx, chatID, t.notification(chatID, args)); err != nil {
		return ai.Message{}, fmt.Errorf("redirect notification: %w", err)
	}

	if t.config.FollowUps != nil {
		if err := t.config.FollowUps.MarkAllSent(ctx, chatID); err != nil {
			// the hand-over already happened; a stale follow-up is not worth failing for
			if observer := observability.ObserverFromContext(ctx); observer != nil {
				observer.Warn(ctx, "failed to stop follow-ups after redirect",
					observability.String(observability.AttrGraphThreadID, chatID),
					observability.Error(err),
				)
			}
		}
	}

	return ai.Message{
		Role:       ai.RoleTool,
		Content:    t.closing(),
		ToolCallID: call.ID,
		Name:       Name,
	}, nil
}

func (t *Tool) notification(chatID string, args Args) string {
	phone, _, _ := strings.Cut(chatID, "@")
	requestedAt := t.config.Now().In(t.config.Location).Format("15:04:05")

	var b strings.Builder
	b.WriteString("📢 *Notificación de Atención Requerida*\n")
	fmt.Fprintf(&b, "👤 *Cliente:* %s\n", args.ClientName)
	fmt.Fprintf(&b, "🪪 *Rut del Cliente:* %s\n", args.ClientRut)
	fmt.Fprintf(&b, "📧 *Email del Cliente:* %s\n", args.ClientEmail)
	fmt.Fprintf(&b, "📝 *Motivo de contacto:* %s\n", args.Reason)
	fmt.Fprintf(&b, "⏰ *Fecha y hora de solicitud:* %s\n\n", requestedAt)
	fmt.Fprintf(&b, "📱 *Chat ID:*\nhttps://wa.me/%s\n\n", phone)
	b.WriteString("🔔 *Equipo,* por favor asignar a alguien para atender esta solicitud lo antes posible. 🚀")
	return b.String()
}

func (t *Tool) closing() string {
	name := t.config.PublicName
	if name == "" {
		name = "nuestro equipo"
	}
	return fmt.Sprintf("¡Gracias por tu interés en *%s*! 😊 Hemos redirigido tu consulta a nuestro equipo. Si tienes más preguntas en el futuro, no dudes en volver. ¡Que tengas un excelente día! 🌟", name)
}

// HTTPNotifier posts {"body", "chatId"} to a messaging gateway endpoint.
type HTTPNotifier struct {
	URL    string
	APIKey string
	Client *http.Client
}

func (n HTTPNotifier) Notify(ctx context.Context, chatID, body string) error {
	if n.URL == "" {
		return errors.New("redirect: notification URL is not configured")
	}
	_, _, err := utils.DoPostSync[struct{}](ctx, n.Client, n.URL, n.APIKey, map[string]string{
		"body":   body,
		"chatId": chatID,
	})
	return err
}
