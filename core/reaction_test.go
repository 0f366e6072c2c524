package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionsToggle(t *testing.T) {
	r := Reactions{}

	assert.True(t, r.Toggle("👍", 1))
	assert.True(t, r.Toggle("👍", 2))
	assert.Equal(t, []int64{1, 2}, r["👍"].IDs())

	assert.False(t, r.Toggle("👍", 1))
	assert.Equal(t, []int64{2}, r["👍"].IDs())

	assert.False(t, r.Toggle("👍", 2))
	_, ok := r["👍"]
	assert.False(t, ok, "empty sets are removed")
}

func TestReactionsJSON(t *testing.T) {
	r := Reactions{"🔥": NewPrincipalSet(9, 3, 5)}

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"🔥":[3,5,9]}`, string(b))

	b, err = json.Marshal(Reactions{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(b))
}

func TestReactionsScan(t *testing.T) {
	tcs := []struct {
		name string
		src  any
		exp  Reactions
	}{
		{"null", nil, Reactions{}},
		{"string", `{"👍":[1,2]}`, Reactions{"👍": NewPrincipalSet(1, 2)}},
		{"bytes", []byte(`{"👍":[1]}`), Reactions{"👍": NewPrincipalSet(1)}},
		{"empty sets dropped", `{"👍":[],"🎉":[4]}`, Reactions{"🎉": NewPrincipalSet(4)}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var r Reactions
			require.NoError(t, r.Scan(tc.src))
			assert.Equal(t, tc.exp, r)
		})
	}

	var r Reactions
	assert.Error(t, r.Scan(42))
	assert.Error(t, r.Scan(`not json`))
}

func TestReactionsValue(t *testing.T) {
	v, err := Reactions(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)

	v, err = Reactions{"👍": NewPrincipalSet(2, 1)}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"👍":[1,2]}`, v.(string))
}

func TestReactionsClone(t *testing.T) {
	r := Reactions{"👍": NewPrincipalSet(1)}
	c := r.Clone()
	c.Toggle("👍", 2)
	assert.Equal(t, []int64{1}, r["👍"].IDs())
	assert.Equal(t, []int64{1, 2}, c["👍"].IDs())
}
