// Package suppression implements the per-councillor opt-out list.
//
// This is the single source of truth for whether an address may receive
// mail. Entries flow in from recipient unsubscribes and operator actions
// and are checked before every send. Inserts are conditional upserts
// keyed by (councillor, normalized email): adding an address that is
// already suppressed returns the existing entry, so concurrent
// unsubscribe callbacks can never create duplicates.
package suppression
