// Package rules holds the autonomy rule model and the matcher that resolves
// an incoming proposal to a risk level.
//
// A rule is scoped to a company (or every company via "*"), an action type
// and an agent (or every agent via "*"). Its counters record reviewer
// outcomes; once accuracy clears the rule's promotion threshold over enough
// samples the rule is promoted to level 3 and matching actions may execute
// without review.
//
// Rules reach the matcher through a Source. CachedSource wraps a Source with
// a short TTL so repeated submissions do not hit storage on every call.
// Seed files (YAML or TOML) let operators declare rules in version control;
// Watcher re-imports them when the file changes.
package rules
