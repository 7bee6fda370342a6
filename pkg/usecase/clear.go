package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
)

// ClearMemory deletes every long-term memory record owned by the
// conversation's scope and drops its short-term window without promotion.
// This is the only path that ever deletes memory records.
func (uc *UseCases) ClearMemory(ctx context.Context, key model.ConversationKey) (int, error) {
	if err := key.Validate(); err != nil {
		return 0, goerr.Wrap(err, "cannot clear memory for invalid conversation key")
	}

	deleted, err := uc.repo.Memory().DeleteByOwner(ctx, key.Scope(), key.ScopeOwnerID())
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete memory records",
			goerr.V("scope", key.Scope()), goerr.V("owner", key.ScopeOwnerID()))
	}

	uc.window.Clear(key)

	logging.From(ctx).Info("cleared conversation memory",
		"conversation", key.String(),
		"deleted_records", deleted,
	)

	return deleted, nil
}
