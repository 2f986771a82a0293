// Package study holds the shared vocabulary of the observational study: the
// measurement activities and their canonical order, the onboarding answer
// strings, treatment ranges, history items, and calendar date helpers.
//
// Records carry go-playground/validator tags and are checked with
// ValidateStruct before they reach the history store.
package study
