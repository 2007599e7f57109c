// Package capability declares the external collaborators the rental core
// depends on. Each one is best-effort or timeout-bounded: the core never
// blocks indefinitely on a sidecar and degrades per the lease lifecycle rules
// when one fails.
package capability

import (
	"context"

	"github.com/steamrent/rental-server-go/internal/model"
)

// CodeMode selects which one-time verification code to look for.
type CodeMode string

const (
	// CodeModeLogin is the code the provider emails on a fresh sign-in.
	CodeModeLogin CodeMode = "login"
	// CodeModeChange is the code required to confirm a password change.
	CodeModeChange CodeMode = "change"
)

// Notifier delivers an outbound text message to a marketplace chat or
// operator channel. Failures are logged by callers, never fatal.
type Notifier interface {
	Notify(ctx context.Context, recipient, message string) error
}

// CredentialRotator changes an account's password out of band, invalidating
// the outgoing occupant's access. May take minutes; always called with a
// deadline.
type CredentialRotator interface {
	Rotate(ctx context.Context, account *model.Account, newPassword string) error
}

// GuardCodeFetcher retrieves a one-time verification code from the account's
// mailbox. Returns "" with a nil error when no code arrived in time or the
// account has no mailbox configured.
type GuardCodeFetcher interface {
	FetchCode(ctx context.Context, account *model.Account, mode CodeMode) (string, error)
}
