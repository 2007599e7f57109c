package capability

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/steamrent/rental-server-go/internal/model"
)

// NoopRotator is used when no rotation sidecar is configured. It reports
// success so leases still release on expiry; deployments that care about
// invalidating outgoing occupants must configure a real rotator.
type NoopRotator struct{}

func (NoopRotator) Rotate(_ context.Context, account *model.Account, _ string) error {
	log.Warn().Str("account_id", account.ID).Msg("credential rotation disabled, releasing without rotation")
	return nil
}

// NoneGuardFetcher is used when no mailbox sidecar is configured.
type NoneGuardFetcher struct{}

func (NoneGuardFetcher) FetchCode(context.Context, *model.Account, CodeMode) (string, error) {
	return "", nil
}
