package ledger

import "encoding/json"

// MintSet is an insertion-ordered set of mint addresses owned by the caller
// for the duration of one wallet scan. It is not safe for concurrent use.
type MintSet struct {
	order []string
	seen  map[string]struct{}
}

func NewMintSet(mints ...string) *MintSet {
	s := &MintSet{seen: make(map[string]struct{})}
	for _, m := range mints {
		s.Add(m)
	}
	return s
}

// Add records mint and reports whether it was new.
func (s *MintSet) Add(mint string) bool {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[mint]; ok {
		return false
	}
	s.seen[mint] = struct{}{}
	s.order = append(s.order, mint)
	return true
}

func (s *MintSet) has(mint string) bool {
	_, ok := s.seen[mint]
	return ok
}

func (s *MintSet) size() int {
	return len(s.order)
}

// Mints returns the recorded mints in the order they were first seen.
func (s *MintSet) Mints() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *MintSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Mints())
}

func (s *MintSet) UnmarshalJSON(data []byte) error {
	var mints []string
	if err := json.Unmarshal(data, &mints); err != nil {
		return err
	}
	*s = *NewMintSet(mints...)
	return nil
}
