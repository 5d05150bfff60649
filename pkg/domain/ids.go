// Package domain holds strongly-typed identifiers shared across the engine.
//
// Two families exist:
//   - allocated IDs (RegistryID, PartyID, AccountID, MintID): random UUIDs minted
//     when the underlying resource is created;
//   - derived IDs (CallID, VoucherID): content-derived keys computed from the
//     immutable creation parameters of the record they address, so independent
//     records can be created and located without a central allocator. The storage
//     layer rejects duplicate-key creation, which makes derivation collisions a
//     conflict rather than silent overwrite.
package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	dErrors "capcall/pkg/domain-errors"
)

// RegistryID identifies a registry record (one per deployment).
type RegistryID uuid.UUID

// PartyID identifies a caller: the operator or a depositor.
type PartyID uuid.UUID

// AccountID identifies a ledger account.
type AccountID uuid.UUID

// MintID identifies a token mint on the ledger.
type MintID uuid.UUID

// AuthorityID identifies a signing authority on the ledger. Derived
// authorities are deterministic per registry, see DeriveMintAuthority.
type AuthorityID uuid.UUID

// CallID is the content-derived key of a capital call.
type CallID string

// VoucherID is the content-derived key of a (capital call, depositor) voucher.
type VoucherID string

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid id %q", s))
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil uuid")
	}
	return u, nil
}

// NewRegistryID allocates a fresh registry ID.
func NewRegistryID() RegistryID { return RegistryID(uuid.New()) }

// ParseRegistryID validates and returns a RegistryID.
func ParseRegistryID(s string) (RegistryID, error) {
	u, err := parseUUID(s)
	return RegistryID(u), err
}

func (id RegistryID) String() string { return uuid.UUID(id).String() }
func (id RegistryID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// MarshalText encodes the ID in canonical UUID form.
func (id RegistryID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText parses the canonical UUID form.
func (id *RegistryID) UnmarshalText(b []byte) error {
	parsed, err := ParseRegistryID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewPartyID allocates a fresh party ID.
func NewPartyID() PartyID { return PartyID(uuid.New()) }

// ParsePartyID validates and returns a PartyID.
func ParsePartyID(s string) (PartyID, error) {
	u, err := parseUUID(s)
	return PartyID(u), err
}

func (id PartyID) String() string { return uuid.UUID(id).String() }
func (id PartyID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id PartyID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *PartyID) UnmarshalText(b []byte) error {
	parsed, err := ParsePartyID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewAccountID allocates a fresh ledger account ID.
func NewAccountID() AccountID { return AccountID(uuid.New()) }

// ParseAccountID validates and returns an AccountID.
func ParseAccountID(s string) (AccountID, error) {
	u, err := parseUUID(s)
	return AccountID(u), err
}

func (id AccountID) String() string { return uuid.UUID(id).String() }
func (id AccountID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id AccountID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *AccountID) UnmarshalText(b []byte) error {
	parsed, err := ParseAccountID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewMintID allocates a fresh mint ID.
func NewMintID() MintID { return MintID(uuid.New()) }

// ParseMintID validates and returns a MintID.
func ParseMintID(s string) (MintID, error) {
	u, err := parseUUID(s)
	return MintID(u), err
}

func (id MintID) String() string { return uuid.UUID(id).String() }
func (id MintID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id MintID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *MintID) UnmarshalText(b []byte) error {
	parsed, err := ParseMintID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewAuthorityID allocates a fresh authority ID.
func NewAuthorityID() AuthorityID { return AuthorityID(uuid.New()) }

// ParseAuthorityID validates and returns an AuthorityID.
func ParseAuthorityID(s string) (AuthorityID, error) {
	u, err := parseUUID(s)
	return AuthorityID(u), err
}

func (id AuthorityID) String() string { return uuid.UUID(id).String() }
func (id AuthorityID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id AuthorityID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *AuthorityID) UnmarshalText(b []byte) error {
	parsed, err := ParseAuthorityID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// DeriveCallID computes the content-derived key of a capital call from its
// immutable creation parameters. Two calls against the same registry with the
// same start time and capacity are, by construction, the same call.
func DeriveCallID(registry RegistryID, startTime int64, capacity uint64) CallID {
	h := sha256.New()
	h.Write([]byte("capital_call"))
	u := uuid.UUID(registry)
	h.Write(u[:])
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(startTime))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], capacity)
	h.Write(buf[:])
	return CallID(hex.EncodeToString(h.Sum(nil)))
}

// DeriveVoucherID computes the content-derived key of the voucher that tracks
// one depositor's contribution to one capital call.
func DeriveVoucherID(call CallID, depositor PartyID) VoucherID {
	h := sha256.New()
	h.Write([]byte("voucher"))
	h.Write([]byte(call))
	u := uuid.UUID(depositor)
	h.Write(u[:])
	return VoucherID(hex.EncodeToString(h.Sum(nil)))
}

// DeriveMintAuthority computes the deterministic minting authority for a
// registry. The salt is stored on the registry record so the derivation can be
// replayed and verified by convert.
func DeriveMintAuthority(registry RegistryID, salt []byte) AuthorityID {
	h := sha256.New()
	h.Write([]byte("lp_mint_authority"))
	u := uuid.UUID(registry)
	h.Write(u[:])
	h.Write(salt)
	sum := h.Sum(nil)
	var out uuid.UUID
	copy(out[:], sum[:16])
	return AuthorityID(out)
}

// DeriveCallAuthority computes the deterministic authority that exclusively
// owns a capital call's escrow accounts.
func DeriveCallAuthority(call CallID) AuthorityID {
	h := sha256.New()
	h.Write([]byte("call_authority"))
	h.Write([]byte(call))
	sum := h.Sum(nil)
	var u uuid.UUID
	copy(u[:], sum[:16])
	return AuthorityID(u)
}

// Authority returns the ledger authority a party signs with. Parties and
// their authorities are one-to-one.
func (id PartyID) Authority() AuthorityID { return AuthorityID(id) }

// ParseCallID validates the lexical shape of a call key.
func ParseCallID(s string) (CallID, error) {
	if err := validHexKey(s); err != nil {
		return "", err
	}
	return CallID(s), nil
}

// ParseVoucherID validates the lexical shape of a voucher key.
func ParseVoucherID(s string) (VoucherID, error) {
	if err := validHexKey(s); err != nil {
		return "", err
	}
	return VoucherID(s), nil
}

func validHexKey(s string) error {
	if len(s) != sha256.Size*2 {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("derived key must be %d hex chars", sha256.Size*2))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "derived key must be lowercase hex")
	}
	return nil
}

func (id CallID) String() string { return string(id) }
func (id CallID) IsNil() bool    { return id == "" }

func (id VoucherID) String() string { return string(id) }
func (id VoucherID) IsNil() bool    { return id == "" }
