package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v4/suites"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32
	pdaMarker     = "ProgramDerivedAddress"
)

var (
	// ErrOnCurve means the candidate address has a private key and cannot be program-owned.
	ErrOnCurve = errors.New("address lies on the ed25519 curve")
	// ErrNoViableBump means every bump from 255 to 0 produced an on-curve address.
	ErrNoViableBump = errors.New("unable to find a viable program address bump seed")
)

var curve = suites.MustFind("Ed25519")

// isOnCurve reports whether b decodes as an ed25519 point.
func isOnCurve(b []byte) bool {
	return curve.Point().UnmarshalBinary(b) == nil
}

// CreateProgramAddress hashes seeds into an address owned by programID.
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, error) {
	if len(seeds) > maxSeeds {
		return PublicKey{}, fmt.Errorf("too many seeds: %d", len(seeds))
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return PublicKey{}, fmt.Errorf("seed exceeds %d bytes", maxSeedLength)
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var pk PublicKey
	copy(pk[:], h.Sum(nil))
	if isOnCurve(pk[:]) {
		return PublicKey{}, ErrOnCurve
	}
	return pk, nil
}

// FindProgramAddress returns the first off-curve address for seeds, searching the
// bump seed downward from 255.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		pk, err := CreateProgramAddress(withBump, programID)
		if errors.Is(err, ErrOnCurve) {
			continue
		}
		if err != nil {
			return PublicKey{}, 0, err
		}
		return pk, uint8(bump), nil
	}
	return PublicKey{}, 0, ErrNoViableBump
}
