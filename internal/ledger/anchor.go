package ledger

// AnchorKeyFunc maps a submitted content address to the key used for
// uniqueness. Two spellings of the same content must map to the same key.
type AnchorKeyFunc func(cid string) (string, error)

// OpaqueAnchorKey treats the CID as an opaque non-empty string.
func OpaqueAnchorKey(cid string) (string, error) {
	if cid == "" {
		return "", ErrInvalidCID
	}
	return cid, nil
}

// Anchor links key to claimID. The link is one-way and permanent.
func (s *State) Anchor(claimID uint64, key string) error {
	claim, ok := s.Claims[claimID]
	if !ok {
		return ErrClaimNotFound
	}
	if owner, taken := s.Anchors[key]; taken && owner != claimID {
		return ErrAlreadyAnchored
	}
	if claim.State != ClaimOpen {
		return ErrInvalidClaimState
	}
	s.Anchors[key] = claimID
	return nil
}

// Resolve returns the claim a key was anchored to.
func (s *State) Resolve(key string) (uint64, bool) {
	id, ok := s.Anchors[key]
	return id, ok
}
