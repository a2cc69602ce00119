package core

import "errors"

// Domain error kinds, per spec §7. The HTTP layer (out of scope) maps these
// to status codes; loggers and callers pattern-match with errors.Is.
var (
	// ErrInsufficientBalance: user-visible when starting a cycle.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrBalanceDeviation: critical mismatch between expected inventory and
	// exchange free balance; stops onward progression of the current fill.
	ErrBalanceDeviation = errors.New("balance deviation exceeds critical threshold")
	// ErrOrderCreation: networking or invalid-order failure placing/canceling
	// on the exchange; aborts the handler, expects retry via redelivery.
	ErrOrderCreation = errors.New("order creation failed")
	// ErrMinNotional: computed order value below the exchange minimum;
	// logged, no retry, grid progression continues.
	ErrMinNotional = errors.New("order value below minimum notional")
	// ErrRecoveryFailure: per-bot failure during startup recovery; flips
	// is_active to false and continues with the next bot.
	ErrRecoveryFailure = errors.New("recovery failed")
	// ErrInsufficientFunds: a hard stop distinct from ErrInsufficientBalance,
	// surfaced by the exchange after a balance check already passed locally.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNotFound: a single-result lookup (e.g. GetConfig) found no row.
	ErrNotFound = errors.New("not found")
)
