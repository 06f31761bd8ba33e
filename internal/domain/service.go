package domain

import "fmt"

// ListKind identifies which catalog view a page belongs to
type ListKind string

const (
	ListRegular  ListKind = "regular"
	ListSpecial  ListKind = "special"
	ListFiltered ListKind = "filtered"
)

// ParseListKind converts a token segment into a ListKind
func ParseListKind(s string) (ListKind, error) {
	switch ListKind(s) {
	case ListRegular, ListSpecial, ListFiltered:
		return ListKind(s), nil
	}
	return "", fmt.Errorf("unknown list kind %q", s)
}

// Searchable reports whether free-text search may target this list
func (k ListKind) Searchable() bool {
	return k == ListRegular || k == ListSpecial
}

// Service is an immutable snapshot of a purchasable number service
type Service struct {
	ID    string
	Name  string
	Price string
}
