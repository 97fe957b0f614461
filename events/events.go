// Package events carries the notifications that keep derived state in step
// with the ledger: mutations confirmed by the orchestrator, identity
// switches and visibility changes of the presentation layer.
package events

import (
	"github.com/perlin-network/academy/ledger"
)

// Kind names a family of ledger-derived records.
type Kind string

const (
	KindCatalog     Kind = "catalog"
	KindCourse      Kind = "course"
	KindEnrollment  Kind = "enrollment"
	KindProgress    Kind = "progress"
	KindQuiz        Kind = "quiz"
	KindCertificate Kind = "certificate"
	KindAchievement Kind = "achievement"
	KindReview      Kind = "review"
	KindInstructor  Kind = "instructor"
	KindProfile     Kind = "profile"
	KindBalance     Kind = "balance"
)

// Target is a single record touched by a mutation. An ID of 0 means every
// record of the kind.
type Target struct {
	Kind Kind
	ID   uint64
}

// Mutation is published once a write is confirmed.
type Mutation struct {
	Op      string
	Account ledger.AccountID
	TxID    string
	Targets []Target
}

// Touches reports whether the mutation affects any record of the given kinds.
func (m *Mutation) Touches(kinds ...Kind) bool {
	for _, t := range m.Targets {
		for _, k := range kinds {
			if t.Kind == k {
				return true
			}
		}
	}

	return false
}

// IdentityChanged is published when the connected identity is replaced or
// disconnected. A zero Current means disconnected.
type IdentityChanged struct {
	Previous ledger.AccountID
	Current  ledger.AccountID
}

// VisibilityChanged is published when the presentation layer regains or
// loses focus.
type VisibilityChanged struct {
	Visible bool
}
