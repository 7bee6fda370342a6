package promoter

import (
	"context"

	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
)

// PromoteSync runs one promotion pass synchronously for tests
func (s *Service) PromoteSync(ctx context.Context, key model.ConversationKey, evicted []model.WindowEntry) error {
	return s.promote(ctx, key, evicted)
}
