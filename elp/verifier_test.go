package elp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/spade-lang/velocity/errors"
)

func validModule() *ElpInfo {
	return &ElpInfo{
		Magic: MagicExecutable,
		Type:  TypeExecutable,
		ConstantPool: []CpInfo{
			{Tag: CpString, String: "demo::main"},
			{Tag: CpString, String: "demo::Point"},
			{Tag: CpInt, Int: 42},
			{Tag: CpNull},
		},
		Globals: []GlobalInfo{
			{Flags: 0x01, ThisGlobal: 0, Type: 1},
		},
		Objects: []ObjInfo{
			{
				Type: ObjTagMethod,
				Method: &MethodInfo{
					Type:       0x01,
					ThisMethod: 0,
					MaxStack:   4,
					Code:       []byte{0x00, 0x00, 0x00, 0x00},
					LineInfo: LineInfo{
						Numbers: []LineNumberInfo{{Times: 4, Lineno: 1}},
					},
					Matches: []MatchInfo{
						{
							Cases:           []CaseInfo{{Value: 2, Location: 2}},
							DefaultLocation: 0,
						},
					},
				},
			},
			{
				Type: ObjTagClass,
				Class: &ClassInfo{
					Type:      0x01,
					ThisClass: 1,
					Supers:    3,
					Fields: []FieldInfo{
						{Flags: 0x01, ThisField: 0, Type: 1},
					},
				},
			},
		},
	}
}

func TestVerifyValidModule(t *testing.T) {
	require.NoError(t, NewVerifier(validModule(), "demo.elp").Verify())
}

func TestVerifyMagicMismatch(t *testing.T) {
	info := validModule()
	info.Magic = 0x00000000
	err := NewVerifier(info, "demo.elp").Verify()
	require.Error(t, err)
	assert.True(t, verrors.IsCorruptFile(err))
}

func TestVerifyMagicLibrarySwap(t *testing.T) {
	// an executable magic on a library file is corrupt and vice versa
	info := validModule()
	info.Type = TypeLibrary
	err := NewVerifier(info, "demo.elp").Verify()
	require.Error(t, err)
	assert.True(t, verrors.IsCorruptFile(err))

	info.Magic = MagicLibrary
	require.NoError(t, NewVerifier(info, "demo.elp").Verify())
}

func TestVerifyUnknownFileType(t *testing.T) {
	info := validModule()
	info.Type = 0x03
	assert.True(t, verrors.IsCorruptFile(NewVerifier(info, "demo.elp").Verify()))
}

func TestVerifyClassIndexOutOfRange(t *testing.T) {
	info := validModule()
	info.Objects[1].Class.ThisClass = uint16(len(info.ConstantPool))
	err := NewVerifier(info, "demo.elp").Verify()
	assert.True(t, verrors.IsCorruptFile(err))
}

func TestVerifyClassKindDomain(t *testing.T) {
	info := validModule()
	info.Objects[1].Class.Type = 0x05
	assert.True(t, verrors.IsCorruptFile(NewVerifier(info, "demo.elp").Verify()))
}

func TestVerifyConstantTagDomain(t *testing.T) {
	info := validModule()
	info.ConstantPool[3] = CpInfo{Tag: 0x08}
	assert.True(t, verrors.IsCorruptFile(NewVerifier(info, "demo.elp").Verify()))
}

func TestVerifyNestedArrayConstant(t *testing.T) {
	info := validModule()
	info.ConstantPool[3] = CpInfo{
		Tag:   CpArray,
		Array: []CpInfo{{Tag: CpInt, Int: 1}, {Tag: 0x09}},
	}
	assert.True(t, verrors.IsCorruptFile(NewVerifier(info, "demo.elp").Verify()))
}

func TestVerifyGlobalFlagsDomain(t *testing.T) {
	info := validModule()
	info.Globals[0].Flags = 0x03
	assert.True(t, verrors.IsCorruptFile(NewVerifier(info, "demo.elp").Verify()))
}

func TestVerifyMethodTables(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MethodInfo)
	}{
		{
			name: "match case value out of pool",
			mutate: func(m *MethodInfo) {
				m.Matches[0].Cases[0].Value = 99
			},
		},
		{
			name: "match case location past code",
			mutate: func(m *MethodInfo) {
				m.Matches[0].Cases[0].Location = uint32(len(m.Code))
			},
		},
		{
			name: "match default past code",
			mutate: func(m *MethodInfo) {
				m.Matches[0].DefaultLocation = uint32(len(m.Code)) + 7
			},
		},
		{
			name: "line info exceeds code count",
			mutate: func(m *MethodInfo) {
				m.LineInfo.Numbers = append(m.LineInfo.Numbers, LineNumberInfo{Times: 1, Lineno: 2})
			},
		},
		{
			name: "exception type out of pool",
			mutate: func(m *MethodInfo) {
				m.ExceptionTable = []ExceptionTableInfo{{StartPc: 0, EndPc: 2, Target: 2, Exception: 99}}
			},
		},
		{
			name: "exception handler past code",
			mutate: func(m *MethodInfo) {
				m.ExceptionTable = []ExceptionTableInfo{{StartPc: 0, EndPc: 2, Target: 9, Exception: 1}}
			},
		},
		{
			name: "zero max stack with code",
			mutate: func(m *MethodInfo) {
				m.MaxStack = 0
			},
		},
		{
			name: "method kind domain",
			mutate: func(m *MethodInfo) {
				m.Type = 0x03
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := validModule()
			tt.mutate(info.Objects[0].Method)
			err := NewVerifier(info, "demo.elp").Verify()
			if !verrors.IsCorruptFile(err) {
				t.Errorf("Verify() = %v, want CorruptFileError", err)
			}
		})
	}
}
