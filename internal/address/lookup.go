package address

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// Reference maps a BAG place/municipality pair to its common display names.
type Reference struct {
	Town            string `json:"town"`
	Municipal       string `json:"municipal"`
	TownCommon      string `json:"townCommon"`
	MunicipalCommon string `json:"municipalCommon"`
}

type lookupKey struct {
	town, municipal string
}

// Lookup resolves canonical town and municipality names. It is built once and
// never written afterwards, so it is safe to share between goroutines.
type Lookup struct {
	entries map[lookupKey]Reference
}

// NewLookup indexes refs. Matching is case-insensitive on both names at once;
// the first reference wins when two share a key.
func NewLookup(refs []Reference) *Lookup {
	l := &Lookup{entries: make(map[lookupKey]Reference, len(refs))}
	for _, ref := range refs {
		k := newLookupKey(ref.Town, ref.Municipal)
		if _, ok := l.entries[k]; ok {
			continue
		}
		l.entries[k] = ref
	}
	return l
}

// LoadLookup reads the reference JSON array at path.
func LoadLookup(path string) (*Lookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "address: read reference file %s", path)
	}
	var refs []Reference
	if err := json.Unmarshal(data, &refs); err != nil {
		return nil, eris.Wrapf(err, "address: parse reference file %s", path)
	}
	return NewLookup(refs), nil
}

// Find returns the reference for a place/municipality pair. Both names must be
// non-empty.
func (l *Lookup) Find(town, municipal string) (Reference, bool) {
	if l == nil || town == "" || municipal == "" {
		return Reference{}, false
	}
	ref, ok := l.entries[newLookupKey(town, municipal)]
	return ref, ok
}

// Len returns the number of distinct keys.
func (l *Lookup) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

func newLookupKey(town, municipal string) lookupKey {
	return lookupKey{town: foldName(town), municipal: foldName(municipal)}
}

func foldName(s string) string {
	return strings.ToUpper(norm.NFC.String(s))
}
