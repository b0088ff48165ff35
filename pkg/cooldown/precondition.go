package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/keshon/modkit/pkg/cmd"
)

// PreconditionID is the id of the cooldown precondition.
const PreconditionID = "cooldown"

// KeyFor builds the store key of an invocation.
func KeyFor(d *cmd.Descriptor, inv *cmd.Invocation) Key {
	return Key{Kind: d.Kind, Command: d.Name, CallerID: inv.CallerID, GuildID: inv.GuildID}
}

// Precondition vetoes while the caller's cooldown on a command is active and
// otherwise starts a new one. Commands without a cooldown pass untouched.
func Precondition(store *Store) cmd.Precondition {
	return cmd.Precondition{
		ID: PreconditionID,
		Check: func(_ context.Context, _ cmd.Kind, inv *cmd.Invocation, d *cmd.Descriptor) *cmd.Veto {
			if d.Cooldown <= 0 {
				return nil
			}
			e, acquired := store.Acquire(KeyFor(d, inv), d.Cooldown)
			if acquired {
				return nil
			}
			return &cmd.Veto{
				Reason:  cmd.ReasonCooldown,
				Message: fmt.Sprintf("This command is on cooldown until %s.", e.EndsAt.Format(time.Kitchen)),
				Data:    e,
				EndsAt:  e.EndsAt,
			}
		},
	}
}
