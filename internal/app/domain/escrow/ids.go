package escrow

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// Internal escrow identifiers are human-auditable; the on-chain identifier is
// the Keccak-256 hash of the internal one, so on-chain IDs stay uniform.
//
// Policy escrow: INS-{PROVIDER_SHORT(8)}-{POLICY_SHORT(12)}-{MILLIS}-{RAND(6)}-{CHECKSUM(4)}
// User escrow:   USR-{USER_SHORT(8)}-{PURPOSE(<=12)}-{MILLIS}-{RAND(6)}-{CHECKSUM(4)}

const (
	policyEscrowPrefix = "INS"
	userEscrowPrefix   = "USR"

	providerShortLen = 8
	policyShortLen   = 12
	userShortLen     = 8
	purposeMaxLen    = 12
	randomLen        = 6
	checksumLen      = 4

	randomAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	checksumSalt   = "triggerr-escrow-v1"
)

var strippedPrefixes = []string{"provider_", "prov_", "policy_", "pol_", "user_", "usr_"}

// ShortID derives a fixed-width short identifier from a full ID: known prefixes
// stripped, non-alphanumerics removed, uppercased, truncated to width and
// zero-padded when shorter.
func ShortID(full string, width int) string {
	s := strings.ToLower(strings.TrimSpace(full))
	for _, p := range strippedPrefixes {
		if strings.HasPrefix(s, p) {
			s = s[len(p):]
			break
		}
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > width {
		return out[:width]
	}
	for len(out) < width {
		out += "0"
	}
	return out
}

func randomSuffix() (string, error) {
	buf := make([]byte, randomLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	out := make([]byte, randomLen)
	for i, v := range buf {
		out[i] = randomAlphabet[int(v)%len(randomAlphabet)]
	}
	return string(out), nil
}

func checksum(fields ...string) string {
	mac := hmac.New(sha256.New, []byte(checksumSalt))
	_, _ = mac.Write([]byte(strings.Join(fields, "-")))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))[:checksumLen]
}

// NewPolicyEscrowID generates an internal identifier for a policy escrow.
func NewPolicyEscrowID(providerID, policyID string, now time.Time) (string, error) {
	if strings.TrimSpace(providerID) == "" || strings.TrimSpace(policyID) == "" {
		return "", fmt.Errorf("provider and policy ids are required")
	}
	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}
	fields := []string{
		policyEscrowPrefix,
		ShortID(providerID, providerShortLen),
		ShortID(policyID, policyShortLen),
		strconv.FormatInt(now.UTC().UnixMilli(), 10),
		suffix,
	}
	return strings.Join(fields, "-") + "-" + checksum(fields...), nil
}

// NewUserEscrowID generates an internal identifier for a user escrow.
func NewUserEscrowID(userID, purpose string, now time.Time) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("user id is required")
	}
	purpose = sanitizePurpose(purpose)
	if purpose == "" {
		purpose = "GENERAL"
	}
	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}
	fields := []string{
		userEscrowPrefix,
		ShortID(userID, userShortLen),
		purpose,
		strconv.FormatInt(now.UTC().UnixMilli(), 10),
		suffix,
	}
	return strings.Join(fields, "-") + "-" + checksum(fields...), nil
}

func sanitizePurpose(purpose string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(purpose)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > purposeMaxLen {
		out = out[:purposeMaxLen]
	}
	return out
}

// BlockchainID derives the uniform on-chain identifier from an internal one.
func BlockchainID(internalID string) string {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(internalID))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// ParsedID is the decoded form of an internal escrow identifier. The short
// identifiers are lossy by design: consumers that need true IDs must look them
// up in persistence using the short form as a non-unique search key.
type ParsedID struct {
	Model         Model
	ProviderShort string
	PolicyShort   string
	UserShort     string
	Purpose       string
	GeneratedAt   time.Time
	Random        string
	Checksum      string
}

// ParseID decodes an internal escrow identifier and verifies its checksum.
func ParseID(id string) (ParsedID, error) {
	parts := strings.Split(strings.TrimSpace(id), "-")
	if len(parts) != 6 {
		return ParsedID{}, fmt.Errorf("malformed escrow id: expected 6 fields, got %d", len(parts))
	}
	if got := checksum(parts[:5]...); got != parts[5] {
		return ParsedID{}, fmt.Errorf("escrow id checksum mismatch")
	}
	millis, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return ParsedID{}, fmt.Errorf("parse timestamp field: %w", err)
	}
	parsed := ParsedID{
		GeneratedAt: time.UnixMilli(millis).UTC(),
		Random:      parts[4],
		Checksum:    parts[5],
	}
	switch parts[0] {
	case policyEscrowPrefix:
		parsed.Model = ModelPolicy
		parsed.ProviderShort = parts[1]
		parsed.PolicyShort = parts[2]
	case userEscrowPrefix:
		parsed.Model = ModelUser
		parsed.UserShort = parts[1]
		parsed.Purpose = parts[2]
	default:
		return ParsedID{}, fmt.Errorf("unknown escrow id prefix %q", parts[0])
	}
	return parsed, nil
}
