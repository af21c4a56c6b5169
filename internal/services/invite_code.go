package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/gosimple/slug"
)

const maxInviteSlugLen = 24

// NewInviteCode builds a shareable code from the challenger's name, for
// example "ada-lovelace-3f9c2a1b".
func NewInviteCode(name string) (string, error) {
	base := slug.Make(name)
	if len(base) > maxInviteSlugLen {
		base = base[:maxInviteSlugLen]
	}
	for len(base) > 0 && base[len(base)-1] == '-' {
		base = base[:len(base)-1]
	}
	if base == "" {
		base = "challenger"
	}

	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to generate invite code: %w", err)
	}
	return base + "-" + hex.EncodeToString(suffix), nil
}
