// Package governance runs the action lifecycle.
//
// Engine accepts proposals from agents, resolves their risk through the rule
// matcher, auto-executes the ones a promoted rule vouches for, and queues the
// rest for human review. Reviews, expiry and auto-execution all leave pending
// through a compare-and-swap, so exactly one transition wins per action.
//
// Every reviewed outcome is credited to the matched rule inside the same
// transaction as the status change and its audit entry. Promotion to level-3
// autonomy is evaluated afterwards and is advisory: a failed promotion check
// never fails the review that triggered it. Demotion only happens through
// RevokeLevel3.
//
// Critical-risk proposals are never auto-executed, whatever the rules say.
package governance
