package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-service/internal/config"
	"github.com/spec-kit/lifecycle-service/internal/domain"
	"github.com/spec-kit/lifecycle-service/internal/httpclient"
)

// Notifier delivers run outcomes to a chat webhook and onto a Redis stream.
// Both channels are best effort: either may be unconfigured, and a delivery
// failure on one does not stop the other. The combined error is returned so
// the notification phase result reflects what happened.
type Notifier struct {
	webhook *httpclient.Client
	redis   *redis.Client
	stream  string
	logger  *zap.Logger
}

// NewNotifier builds a notifier. redisClient may be nil.
func NewNotifier(cfg config.NotificationConfig, redisClient *redis.Client, logger *zap.Logger) *Notifier {
	n := &Notifier{redis: redisClient, stream: cfg.RedisStream, logger: logger}
	if cfg.WebhookURL != "" {
		n.webhook = httpclient.New(httpclient.Options{
			BaseURL:    cfg.WebhookURL,
			Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
			MaxRetries: 2,
		}, logger)
	}
	return n
}

// NotifyOutcome posts the outcome message and publishes the outcome record.
func (n *Notifier) NotifyOutcome(ctx context.Context, record *domain.TerminationRecord, outcome *domain.TerminationOutcome) error {
	var errs []string
	if n.webhook != nil {
		if err := n.webhook.PostJSON(ctx, "", buildMessage(record, outcome), nil); err != nil {
			errs = append(errs, fmt.Sprintf("webhook: %v", err))
		}
	}
	if n.redis != nil && n.stream != "" {
		if err := n.publishStream(ctx, outcome); err != nil {
			errs = append(errs, fmt.Sprintf("stream: %v", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify outcome: %s", strings.Join(errs, "; "))
	}
	return nil
}

// publishStream appends the outcome to the Redis stream for downstream
// consumers (audit, dashboards).
func (n *Notifier) publishStream(ctx context.Context, outcome *domain.TerminationOutcome) error {
	phases, err := json.Marshal(outcome.Summary())
	if err != nil {
		return err
	}
	return n.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]any{
			"run_id":    outcome.RunID,
			"ticket_id": outcome.TicketID,
			"employee":  outcome.EmployeeIdentity.Email(),
			"success":   outcome.OverallSuccess,
			"phases":    string(phases),
			"at":        outcome.StartedAt.Format(time.RFC3339),
		},
	}).Err()
}

// buildMessage renders the chat payload. Layout: a one-line status header,
// the employee and ticket facts, then per-phase lines with completed actions
// and any failures or warnings.
func buildMessage(record *domain.TerminationRecord, outcome *domain.TerminationOutcome) map[string]any {
	header := fmt.Sprintf(":white_check_mark: Termination completed for %s", outcome.EmployeeIdentity.Email())
	if !outcome.OverallSuccess {
		header = fmt.Sprintf(":warning: Termination completed with issues for %s", outcome.EmployeeIdentity.Email())
	}
	if outcome.EmployeeIdentity.Email() == "" {
		header = fmt.Sprintf(":warning: Termination could not resolve employee for ticket %s", outcome.TicketID)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "*Ticket:* %s", record.TicketNumber)
	if record.EmployeeName != "" {
		fmt.Fprintf(&body, "\n*Employee:* %s", record.EmployeeName)
	}
	if record.Department != "" {
		fmt.Fprintf(&body, "\n*Department:* %s", record.Department)
	}
	if record.TerminationDate != "" {
		fmt.Fprintf(&body, "\n*Termination date:* %s", record.TerminationDate)
	}
	if manager := outcome.ManagerIdentity.Email(); manager != "" {
		fmt.Fprintf(&body, "\n*Manager:* %s", manager)
	}

	var detail strings.Builder
	for _, name := range outcome.PhaseOrder {
		result, ok := outcome.PerPhase[name]
		if !ok || name == domain.PhaseNotification {
			continue
		}
		switch {
		case result.Skipped:
			fmt.Fprintf(&detail, "• %s: skipped", name)
		case result.Succeeded:
			fmt.Fprintf(&detail, "• %s: done", name)
			if len(result.ActionsCompleted) > 0 {
				fmt.Fprintf(&detail, " (%s)", strings.Join(result.ActionsCompleted, ", "))
			}
		default:
			fmt.Fprintf(&detail, "• %s: FAILED", name)
			if len(result.Errors) > 0 {
				fmt.Fprintf(&detail, ": %s", strings.Join(result.Errors, "; "))
			}
		}
		for _, warning := range result.Warnings {
			fmt.Fprintf(&detail, "\n    ⚠ %s", warning)
		}
		detail.WriteString("\n")
	}

	blocks := []map[string]any{
		{"type": "section", "text": map[string]any{"type": "mrkdwn", "text": header}},
		{"type": "section", "text": map[string]any{"type": "mrkdwn", "text": body.String()}},
	}
	if detail.Len() > 0 {
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": detail.String()},
		})
	}
	return map[string]any{"text": header, "blocks": blocks}
}
