package policy

import (
	"go.dedis.ch/vault/ledger"
)

// FnApprove is the name of the read-only function that approves access to a
// content identifier.
const FnApprove = "seal_approve"

// AllowlistApprover returns the constructor of the approval call of an
// allowlist, which takes the identifier and the allowlist.
func AllowlistApprover(pkg, allowlistID ledger.ID) MoveCallConstructor {
	return func(tx *ledger.Transaction, id []byte) {
		tx.MoveCall(ledger.Target(pkg, KindAllowlist.Module(), FnApprove),
			ledger.Pure(id),
			ledger.ObjectArg(allowlistID),
		)
	}
}

// SubscriptionApprover returns the constructor of the approval call of a
// subscription service, which takes the identifier, the subscription, the
// service and the clock.
func SubscriptionApprover(pkg, serviceID, subscriptionID ledger.ID) MoveCallConstructor {
	return func(tx *ledger.Transaction, id []byte) {
		tx.MoveCall(ledger.Target(pkg, KindSubscription.Module(), FnApprove),
			ledger.Pure(id),
			ledger.ObjectArg(subscriptionID),
			ledger.ObjectArg(serviceID),
			ledger.ObjectArg(ledger.ClockID),
		)
	}
}
