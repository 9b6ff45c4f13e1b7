// Package errors provides structured, actionable error messages for breeze.
//
// Fatal engine conditions (missing TLS material, a port already in use)
// carry a category, a plain-language message, optional detail, and a
// suggestion on how to fix the problem. The CLI renders each part
// separately; recoverable configuration problems never become errors at
// all and are surfaced as warn-level diagnostics instead.
package errors
