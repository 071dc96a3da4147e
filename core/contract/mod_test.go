package contract

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/porwchain/porw/core/value"
	"github.com/porwchain/porw/crypto"
	"github.com/porwchain/porw/testing/fake"
)

func TestNewSmartContract_DeterministicID(t *testing.T) {
	fac := crypto.NewSha256Factory()

	a, err := NewSmartContract("creator", "token", "a token", JsonDsl,
		`{"functions":{}}`, ABI{}, fac)
	require.NoError(t, err)
	require.NotEmpty(t, a.ID)
	require.Equal(t, Pending, a.State)

	b, err := NewSmartContract("creator", "token", "a token", JsonDsl,
		`{"functions":{}}`, ABI{}, fac)
	require.NoError(t, err)

	// Identifiers are stable for identical creation fields when the creation
	// time is held equal.
	b.CreatedAt = a.CreatedAt

	h := fac.New()
	require.NoError(t, b.Fingerprint(h))
	require.Equal(t, a.ID, hexDigest(h.Sum(nil)))

	c, err := NewSmartContract("other", "token", "a token", JsonDsl,
		`{"functions":{}}`, ABI{}, fac)
	require.NoError(t, err)
	require.NotEqual(t, a.ID, c.ID)
}

func hexDigest(sum []byte) string {
	const digits = "0123456789abcdef"

	out := make([]byte, 0, len(sum)*2)
	for _, b := range sum {
		out = append(out, digits[b>>4], digits[b&0xf])
	}

	return string(out)
}

func TestNewSmartContract_BadHash(t *testing.T) {
	_, err := NewSmartContract("creator", "token", "", JsonDsl, "{}", ABI{},
		fake.NewBadHashFactory())
	require.EqualError(t, err,
		"couldn't fingerprint contract: couldn't write field: fake error")
}

func TestParseLanguage(t *testing.T) {
	for _, name := range []string{"scripted", "json_dsl", "wasm"} {
		lang, err := ParseLanguage(name)
		require.NoError(t, err)
		require.Equal(t, Language(name), lang)
	}

	_, err := ParseLanguage("cobol")
	require.EqualError(t, err, "unknown contract language 'cobol'")
}

func TestState_CanTransition(t *testing.T) {
	require.True(t, Pending.CanTransition(Active))
	require.True(t, Active.CanTransition(Paused))
	require.True(t, Paused.CanTransition(Active))
	require.True(t, Pending.CanTransition(Terminated))
	require.True(t, Active.CanTransition(Terminated))
	require.True(t, Paused.CanTransition(Terminated))

	require.False(t, Terminated.CanTransition(Active))
	require.False(t, Terminated.CanTransition(Paused))
	require.False(t, Terminated.CanTransition(Terminated))
	require.False(t, Active.CanTransition(Active))
}

func TestABI_Find(t *testing.T) {
	abi := ABI{Functions: []FunctionSig{
		{Name: "transfer", Params: []string{"to", "amount"}},
		{Name: "balance_of", Params: []string{"addr"}, Constant: true},
	}}

	fn, ok := abi.Find("transfer")
	require.True(t, ok)
	require.Equal(t, []string{"to", "amount"}, fn.Params)

	_, ok = abi.Find("mint")
	require.False(t, ok)
}

func TestABI_UnmarshalFrom(t *testing.T) {
	abi := ABI{}

	err := abi.UnmarshalFrom([]byte(`{"functions":[{"name":"f","params":[]}]}`))
	require.NoError(t, err)
	require.Len(t, abi.Functions, 1)

	err = abi.UnmarshalFrom([]byte(`not json`))
	require.Error(t, err)
}

func TestSmartContract_JSONRoundTrip(t *testing.T) {
	c := &SmartContract{
		ID:       "abc",
		Creator:  "creator",
		Name:     "token",
		Language: JsonDsl,
		Code:     `{"functions":{}}`,
		State:    Active,
		Storage: map[string]value.V{
			"supply": value.NewNumber(1000),
		},
		Balance:   42,
		Version:   3,
		CreatedAt: time.Now().Unix(),
		UpdatedAt: time.Now().Unix(),
	}

	data, err := json.Marshal(c)
	require.NoError(t, err)

	restored := &SmartContract{}
	require.NoError(t, json.Unmarshal(data, restored))

	require.Equal(t, c.ID, restored.ID)
	require.Equal(t, c.State, restored.State)
	require.Equal(t, c.Balance, restored.Balance)
	require.True(t, restored.Storage["supply"].Equal(value.NewNumber(1000)))
}

func TestWatcher_Notify(t *testing.T) {
	watcher := NewWatcher()

	obs := &recordingObserver{}
	watcher.Add(obs)

	watcher.Notify(Event{Name: "Transfer"})
	require.Len(t, obs.events, 1)

	watcher.Remove(obs)
	watcher.Notify(Event{Name: "Transfer"})
	require.Len(t, obs.events, 1)
}

// -----------------------------------------------------------------------------
// Utility functions

type recordingObserver struct {
	events []Event
}

func (o *recordingObserver) NotifyCallback(event Event) {
	o.events = append(o.events, event)
}
