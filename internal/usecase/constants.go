package usecase

import "time"

const (
	// DefaultTransactionTimeout bounds every billing transaction, including
	// the two-invoice write of a close with carry-forward.
	DefaultTransactionTimeout = 10 * time.Second

	// IdempotencyKeyTTL is how long a replayable response is kept when the
	// server config does not set one.
	IdempotencyKeyTTL = 24 * time.Hour

	// DefaultCloseDueBatchSize bounds how many invoices one CloseDue call inspects
	DefaultCloseDueBatchSize = 100
)
