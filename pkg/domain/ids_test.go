package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "capcall/pkg/domain-errors"
)

func TestParseRegistryID(t *testing.T) {
	original := NewRegistryID()

	parsed, err := ParseRegistryID(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)

	for name, input := range map[string]string{
		"empty":    "",
		"garbage":  "not-a-uuid",
		"nil uuid": "00000000-0000-0000-0000-000000000000",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRegistryID(input)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestDeriveCallID(t *testing.T) {
	registry := NewRegistryID()

	t.Run("deterministic", func(t *testing.T) {
		a := DeriveCallID(registry, 1_000, 500)
		b := DeriveCallID(registry, 1_000, 500)
		assert.Equal(t, a, b)
	})

	t.Run("any parameter change yields a different key", func(t *testing.T) {
		base := DeriveCallID(registry, 1_000, 500)
		assert.NotEqual(t, base, DeriveCallID(NewRegistryID(), 1_000, 500))
		assert.NotEqual(t, base, DeriveCallID(registry, 1_001, 500))
		assert.NotEqual(t, base, DeriveCallID(registry, 1_000, 501))
	})

	t.Run("parses back", func(t *testing.T) {
		callID := DeriveCallID(registry, 1_000, 500)
		parsed, err := ParseCallID(callID.String())
		require.NoError(t, err)
		assert.Equal(t, callID, parsed)
	})
}

func TestDeriveVoucherID(t *testing.T) {
	callID := DeriveCallID(NewRegistryID(), 1_000, 500)
	depositor := NewPartyID()

	assert.Equal(t, DeriveVoucherID(callID, depositor), DeriveVoucherID(callID, depositor))
	assert.NotEqual(t, DeriveVoucherID(callID, depositor), DeriveVoucherID(callID, NewPartyID()))
}

func TestParseCallID(t *testing.T) {
	valid := DeriveCallID(NewRegistryID(), 0, 1).String()

	t.Run("wrong length", func(t *testing.T) {
		_, err := ParseCallID(valid[:10])
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("non-hex", func(t *testing.T) {
		_, err := ParseCallID(strings.Repeat("z", 64))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestDeriveAuthorities(t *testing.T) {
	registry := NewRegistryID()

	t.Run("mint authority depends on salt", func(t *testing.T) {
		a := DeriveMintAuthority(registry, []byte("one"))
		b := DeriveMintAuthority(registry, []byte("one"))
		c := DeriveMintAuthority(registry, []byte("two"))
		assert.Equal(t, a, b)
		assert.NotEqual(t, a, c)
		assert.False(t, a.IsNil())
	})

	t.Run("call authority is per call", func(t *testing.T) {
		callA := DeriveCallID(registry, 1, 1)
		callB := DeriveCallID(registry, 2, 1)
		assert.NotEqual(t, DeriveCallAuthority(callA), DeriveCallAuthority(callB))
	})
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		Registry RegistryID `json:"registry"`
		Party    PartyID    `json:"party"`
		Account  AccountID  `json:"account"`
		Call     CallID     `json:"call"`
	}
	original := wrapper{
		Registry: NewRegistryID(),
		Party:    NewPartyID(),
		Account:  NewAccountID(),
		Call:     DeriveCallID(NewRegistryID(), 1, 2),
	}

	raw, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(raw), original.Registry.String(), "uuid ids marshal as canonical strings")

	var decoded wrapper
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, original, decoded)
}

func FuzzParseCallID(f *testing.F) {
	f.Add(DeriveCallID(NewRegistryID(), 0, 1).String())
	f.Add("")
	f.Add(strings.Repeat("ab", 32))
	f.Fuzz(func(t *testing.T, s string) {
		callID, err := ParseCallID(s)
		if err != nil {
			return
		}
		// Anything that parses must round trip exactly.
		if callID.String() != s {
			t.Fatalf("round trip mismatch: %q != %q", callID.String(), s)
		}
	})
}
