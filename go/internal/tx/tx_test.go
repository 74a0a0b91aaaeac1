package tx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcdev12/majorityrules/go/internal/ledger"
)

func TestIntentRoundTripKeepsTarget(t *testing.T) {
	in := Intent{
		Target:     "0xpkg::battle_royale::submit_answer",
		Arguments:  []Argument{Object("0xgame"), U8(2), Object("0x6")},
		SelfFunded: true,
	}
	b, err := in.KindBytes()
	require.NoError(t, err)

	out, err := DecodeKind(b)
	require.NoError(t, err)
	require.Equal(t, in.Target, out.Target)
	require.Equal(t, in.Arguments, out.Arguments)
	require.False(t, out.SelfFunded, "self-funded flag is local only")

	require.Equal(t, "0xpkg", in.Package())
	require.Equal(t, "submit_answer", in.Function())
	require.Equal(t, []string{"0xgame", "0x6"}, in.ObjectIDs())
}

func TestDecodeKindRejectsEmptyTarget(t *testing.T) {
	_, err := DecodeKind([]byte(`{"arguments":[]}`))
	require.Error(t, err)
}

func TestDualSignatureOverSameBytes(t *testing.T) {
	ctx := context.Background()
	user, err := GenerateKeySigner()
	require.NoError(t, err)
	sponsor, err := GenerateKeySigner()
	require.NoError(t, err)

	data := Data{
		Kind:   Intent{Target: "0xpkg::battle_royale::start_game", Arguments: []Argument{Object("0xgame")}},
		Sender: user.Address(),
		Gas: GasData{
			Owner:   sponsor.Address(),
			Payment: []ledger.ObjectRef{{ID: "0xcoin", Version: 3, Digest: "x"}},
			Budget:  50_000_000,
			Price:   1000,
		},
	}
	require.True(t, data.Sponsored())

	finalized, err := Encode(data)
	require.NoError(t, err)

	sponsorSig, err := sponsor.SignTransaction(ctx, finalized)
	require.NoError(t, err)
	userSig, err := user.SignTransaction(ctx, finalized)
	require.NoError(t, err)

	who, err := RecoverSigner(finalized, sponsorSig)
	require.NoError(t, err)
	require.Equal(t, sponsor.Address(), who)

	who, err = RecoverSigner(finalized, userSig)
	require.NoError(t, err)
	require.Equal(t, user.Address(), who)

	tampered := append([]byte{}, finalized...)
	tampered[len(tampered)-2] ^= 0x01
	who, err = RecoverSigner(tampered, sponsorSig)
	if err == nil {
		require.NotEqual(t, sponsor.Address(), who)
	}
}

func TestNewKeySignerAcceptsPrefix(t *testing.T) {
	const key = "4f3edf983ac636a65a842ce7c78d9aa706d3b113b37e2b8c3c6d53295d85f81b"
	a, err := NewKeySigner(key)
	require.NoError(t, err)
	b, err := NewKeySigner("0x" + key)
	require.NoError(t, err)
	require.Equal(t, a.Address(), b.Address())
	require.True(t, SameAddress(a.Address(), b.Address()))

	_, err = NewKeySigner("")
	require.Error(t, err)
}

func TestEncodeRequiresSenderAndOwner(t *testing.T) {
	_, err := Encode(Data{Kind: Intent{Target: "0xpkg::m::f"}})
	require.Error(t, err)
}
