package dispatch

import "blast/internal/domain"

// Route returns the sender account for a recipient's global campaign index.
// Rotation is a pure modulo over the ordered account list, computed from the
// recipient's absolute position so that slicing a campaign across multiple
// invocations never restarts rotation from account zero. Deterministic:
// re-delivery after a resume lands on the same account.
//
// An empty account list is a caller precondition violation; Validate rejects
// it before any routing happens.
func Route(globalIndex int, accounts []domain.SenderAccount) domain.SenderAccount {
	return accounts[globalIndex%len(accounts)]
}
