package elp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func richModule() *ElpInfo {
	return &ElpInfo{
		Magic: MagicLibrary,
		Type:  TypeLibrary,
		ConstantPool: []CpInfo{
			{Tag: CpString, String: "demo::main"},
			{Tag: CpString, String: "demo::Shape"},
			{Tag: CpInt, Int: -7},
			{Tag: CpFloat, Float: 0x400921fb54442d18},
			{Tag: CpChar, Char: 0x1f600},
			{Tag: CpTrue},
			{Tag: CpFalse},
			{Tag: CpNull},
			{Tag: CpArray, Array: []CpInfo{
				{Tag: CpString, String: "demo::Base"},
				{Tag: CpArray, Array: []CpInfo{{Tag: CpInt, Int: 1}}},
			}},
		},
		Globals: []GlobalInfo{
			{Flags: 0x02, ThisGlobal: 0, Type: 1},
		},
		Objects: []ObjInfo{
			{
				Type: ObjTagClass,
				Class: &ClassInfo{
					Type:       0x01,
					ThisClass:  1,
					Supers:     8,
					TypeParams: []TypeParamInfo{{Name: 0}},
					Fields:     []FieldInfo{{Flags: 0x01, ThisField: 0, Type: 1}},
					Methods: []MethodInfo{
						{
							Type:         0x02,
							ThisMethod:   0,
							Args:         []ArgInfo{{Flags: 0x01, ThisArg: 0, Type: 1}},
							Locals:       []LocalInfo{{Flags: 0x01, ThisLocal: 0, Type: 1}},
							ClosureStart: 1,
							MaxStack:     8,
							Code:         []byte{0x04, 0x00, 0x02, 0x61},
							ExceptionTable: []ExceptionTableInfo{
								{StartPc: 0, EndPc: 3, Target: 3, Exception: 1},
							},
							LineInfo: LineInfo{
								Numbers: []LineNumberInfo{{Times: 4, Lineno: 12}},
							},
							Lambdas: []MethodInfo{
								{Type: 0x01, ThisMethod: 0, MaxStack: 1, Code: []byte{0x62}},
							},
							Matches: []MatchInfo{
								{
									Cases:           []CaseInfo{{Value: 2, Location: 0}, {Value: 3, Location: 3}},
									DefaultLocation: 3,
								},
							},
						},
					},
				},
			},
		},
	}
}

// Serialising an in-memory module and reloading through the verifier must
// reproduce an isomorphic module.
func TestRoundTrip(t *testing.T) {
	original := richModule()

	w := NewWriter()
	w.Write(original)

	reloaded, err := NewReader(w.Bytes(), "demo.elp").Read()
	require.NoError(t, err)
	require.NoError(t, NewVerifier(reloaded, "demo.elp").Verify())
	require.Equal(t, original, reloaded)
}

func TestReaderRejectsTruncated(t *testing.T) {
	w := NewWriter()
	w.Write(richModule())
	image := w.Bytes()

	for _, cut := range []int{1, 5, len(image) / 2, len(image) - 1} {
		_, err := NewReader(image[:cut], "demo.elp").Read()
		require.Error(t, err, "cut at %d", cut)
	}
}

func TestReaderRejectsTrailingBytes(t *testing.T) {
	w := NewWriter()
	w.Write(richModule())
	image := append(w.Bytes(), 0xff)

	_, err := NewReader(image, "demo.elp").Read()
	require.Error(t, err)
}
