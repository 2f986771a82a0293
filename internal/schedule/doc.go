// Package schedule decides which study activities are due in the current
// week and whether each has been completed inside its weekly window.
//
// The Engine reads diagnosis, symptoms and the study start date from a
// ClinicalState on every call, so answers changed elsewhere are reflected
// immediately. Participants who report only joint or only skin involvement
// see the other activity group monthly; everyone else sees every activity
// weekly.
package schedule
