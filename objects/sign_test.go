package objects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSign(t *testing.T) {
	tests := []struct {
		text   string
		module string
		types  []string
		member string
		tps    []string
		params []string
	}{
		{text: "A::B", module: "A", member: "B"},
		{text: "A::B.C", module: "A", types: []string{"B"}, member: "C"},
		{text: "A::B.C()", module: "A", types: []string{"B"}, member: "C", params: []string{}},
		{text: "A::B.C[T,V]", module: "A", types: []string{"B"}, member: "C", tps: []string{"T", "V"}},
		{
			text:   "A::B.C[T](A.int,A.str)",
			module: "A", types: []string{"B"}, member: "C",
			tps: []string{"T"}, params: []string{"A.int", "A.str"},
		},
		{text: "A.B", types: []string{"A"}, member: "B"},
		{text: ".B", member: "B"},
		{text: ".B(B.int)", member: "B", params: []string{"B.int"}},
		{text: "a.b::C.d", module: "a.b", types: []string{"C"}, member: "d"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			sign, err := ParseSign(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.module, sign.Module())
			assert.Equal(t, tt.types, sign.TypePath())
			assert.Equal(t, tt.member, sign.Member())
			assert.Equal(t, tt.tps, sign.TypeParams())
			if tt.params == nil {
				assert.False(t, sign.HasParams())
			} else {
				assert.True(t, sign.HasParams())
				assert.Len(t, sign.Params(), len(tt.params))
				for i := range tt.params {
					assert.Equal(t, tt.params[i], sign.Params()[i])
				}
			}
		})
	}
}

func TestParseSignErrors(t *testing.T) {
	for _, text := range []string{"", "A::", "A::B.C(", "A::B.C[T", "A::B.C[]"} {
		t.Run(text, func(t *testing.T) {
			_, err := ParseSign(text)
			assert.Error(t, err)
		})
	}
}

func TestSignRoundTrip(t *testing.T) {
	for _, text := range []string{"A::B", "A::B.C[T](A.int,A.str)", "A.B", "basic.array"} {
		sign, err := ParseSign(text)
		require.NoError(t, err)
		again, err := ParseSign(sign.String())
		require.NoError(t, err)
		assert.True(t, sign.Equal(again), "round trip of %s gave %s", text, again.String())
	}
}

func TestSignEquality(t *testing.T) {
	a := MustParseSign("demo::Box.get[T](basic.int)")
	b := MustParseSign("demo::Box.get[T](basic.int)")
	c := MustParseSign("demo::Box.get[T](basic.float)")
	d := MustParseSign("demo::Box.get(basic.int)")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
}
