package tokenstore

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Collection maps account identifiers to their token records. The whole
// collection is persisted as a single JSON document; absence of a key means
// no record exists for that account.
type Collection map[string]*Record

// Accounts returns the account identifiers in the collection in the same
// lexicographic order the encoded document uses.
func (c Collection) Accounts() []string {
	accounts := make([]string, 0, len(c))
	for id := range c {
		accounts = append(accounts, id)
	}
	sort.Strings(accounts)
	return accounts
}

// decodeCollection parses a stored token document. Empty input yields an
// empty collection.
func decodeCollection(data []byte) (Collection, error) {
	if len(data) == 0 {
		return Collection{}, nil
	}

	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding token document: %w", err)
	}
	if c == nil {
		c = Collection{}
	}
	return c, nil
}

// encodeCollection serializes the collection for full-document overwrite.
// Output is deterministic: encoding/json orders map keys lexicographically,
// and the document is indented to keep stored diffs readable.
func encodeCollection(c Collection) ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding token document: %w", err)
	}
	return data, nil
}
