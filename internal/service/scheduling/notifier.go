package scheduling

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"clinicdesk/backend/internal/domain"
)

// Notifier receives conflict findings for display. It is informational only;
// nothing it does feeds back into scheduling decisions.
type Notifier interface {
	ConflictsDetected(ctx context.Context, providerID uuid.UUID, date domain.Date, findings []domain.ConflictFinding)
}

type noopNotifier struct{}

func (noopNotifier) ConflictsDetected(context.Context, uuid.UUID, domain.Date, []domain.ConflictFinding) {
}

// LogNotifier writes findings to the structured log.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log.With(slog.String("component", "scheduling.notifier"))}
}

func (n *LogNotifier) ConflictsDetected(ctx context.Context, providerID uuid.UUID, date domain.Date, findings []domain.ConflictFinding) {
	kinds := make([]string, 0, len(findings))
	for _, f := range findings {
		kinds = append(kinds, string(f.Kind))
	}
	n.log.InfoContext(ctx, "conflicts detected",
		slog.String("provider_id", providerID.String()),
		slog.String("date", date.String()),
		slog.Int("findings", len(findings)),
		slog.Any("kinds", kinds),
	)
}
