// Package campaign implements campaign lifecycle and dispatch: recipient
// resolution across distribution lists, suppression filtering, batched
// fan-out against the mail provider with bounded concurrency and
// per-recipient retry, and per-recipient outcome bookkeeping.
//
// Status moves draft -> queued -> sending -> {sent, failed}, one
// direction only. Suppression is a filter applied at send time; list
// membership is never mutated by a send.
package campaign
