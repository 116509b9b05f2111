package entity

import "fmt"

// Kind identifies one of the cached entity kinds.
type Kind string

const (
	// KindScan is a plant scan result owned by the scanning user.
	KindScan Kind = "scan"
	// KindDirectory is a marketplace directory listing (supplier, shop, co-op).
	KindDirectory Kind = "directory"
	// KindPromo is a promotional media item shown on the home feed.
	KindPromo Kind = "promo"
)

// Kinds returns every known kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindScan, KindDirectory, KindPromo}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindScan, KindDirectory, KindPromo:
		return true
	}
	return false
}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}

// mustKnow panics on an unknown kind. Used at the bottom of exhaustive switches.
func mustKnow(k Kind) {
	panic(fmt.Sprintf("entity: unhandled kind %q", string(k)))
}
