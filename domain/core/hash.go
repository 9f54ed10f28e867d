package core

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// Domain-specific hash types
type (
	// DesignFingerprint identifies one built design matrix (values and terms).
	DesignFingerprint Hash
	// FamilyID identifies one multiple-comparison family.
	FamilyID Hash
)

// Constructors
func NewDesignFingerprint(data []byte) DesignFingerprint { return DesignFingerprint(NewHash(data)) }
func NewFamilyID(data []byte) FamilyID                   { return FamilyID(NewHash(data)) }

// String conversions
func (h DesignFingerprint) String() string { return Hash(h).String() }
func (h FamilyID) String() string          { return Hash(h).String() }

// ComputeDesignFingerprint hashes a design matrix's term names and cell
// values. The encoding is positional, so two matrices agree iff their
// dimensions, term order, and values all agree.
func ComputeDesignFingerprint(termNames []string, rows [][]float64) DesignFingerprint {
	var data strings.Builder
	for _, name := range termNames {
		data.WriteString(name)
		data.WriteByte('|')
	}
	for _, row := range rows {
		for _, v := range row {
			data.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
			data.WriteByte(',')
		}
		data.WriteByte(';')
	}
	return NewDesignFingerprint([]byte(data.String()))
}

// ComputeFamilyID hashes the definition of one multiple-comparison family:
// which windows, contrasts, and channels were tested together, and with
// which correction method. Each group is sorted so membership, not request
// order, determines the identifier.
func ComputeFamilyID(windows, contrasts, channels []string, method string) FamilyID {
	var data strings.Builder
	for _, group := range [][]string{windows, contrasts, channels} {
		sorted := make([]string, len(group))
		copy(sorted, group)
		sort.Strings(sorted)
		for _, member := range sorted {
			data.WriteString(member)
			data.WriteByte('|')
		}
		data.WriteByte(';')
	}
	data.WriteString(method)
	return NewFamilyID([]byte(data.String()))
}
