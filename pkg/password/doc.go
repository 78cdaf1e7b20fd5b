// Package password evaluates candidate passwords against an ordered list of
// pattern rules.
//
// A rule is satisfied when its pattern matches anywhere in the password.
// Evaluation is a pure function of the password and the rules: nothing is
// cached between calls, so callers re-evaluate on every change of the
// candidate password. A rule whose pattern does not compile is a
// configuration defect and is reported as an error, never as an unsatisfied
// rule.
package password
