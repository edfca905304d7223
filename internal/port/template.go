package port

import (
	"context"

	"github.com/strogmv/renodesk/internal/domain"
)

// TemplateRepository reads message templates. A template id may have one variant per channel.
type TemplateRepository interface {
	Find(ctx context.Context, id string, channel domain.Channel) (*domain.NotificationTemplate, error)
}
