// Package engagement records recipient engagement events (opens and
// unsubscribes) and derives campaign metrics from the append-only event
// log. Open recording is best effort: a slow or failing store never
// delays the tracking response. Unsubscribe recording is strict: the
// suppression write must succeed before the request is acknowledged.
package engagement
