// ABOUTME: Kind selects one of the three record kinds the engine caches
// ABOUTME: Each kind has its own local key, remote table and merge rules
package models

// Kind identifies a cached record kind
type Kind string

const (
	KindProfile Kind = "profile"
	KindStreak  Kind = "streak"
	KindHistory Kind = "history"
)

// Kinds lists every record kind in reconciliation order
var Kinds = []Kind{KindProfile, KindStreak, KindHistory}

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	switch k {
	case KindProfile, KindStreak, KindHistory:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }
