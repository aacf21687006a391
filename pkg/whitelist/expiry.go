package whitelist

import "time"

// ExpireIfDue is the expiration evaluator: a stateless function of
// (whitelist, now) that either does nothing or applies one active->expired
// transition. It is safe to invoke on every read or from a periodic sweep;
// only the first call past the expiration instant changes state.
func ExpireIfDue(w *Whitelist, now time.Time) (bool, error) {
	return w.EvaluateExpiration(now)
}
