package calcchain

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<calcChain xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<c r="B1" i="1" l="1"/><c r="C1" t="1"/><c r="A2" i="2" a="1"/><c r="A3" s="1"/>
</calcChain>`

func TestDecode(t *testing.T) {
	entries, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	want := []Entry{
		{Ref: "B1", SheetID: 1, NewLevel: true},
		{Ref: "C1", SheetID: 1, NewThread: true},
		{Ref: "A2", SheetID: 2, Array: true},
		{Ref: "A3", SheetID: 2, Child: true},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"missing first sheet id", `<calcChain><c r="A1"/></calcChain>`},
		{"bad sheet id", `<calcChain><c r="A1" i="x"/></calcChain>`},
		{"bad reference", `<calcChain><c r="1A" i="1"/></calcChain>`},
		{"not xml", `<calcChain`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.xml))
			assert.Error(t, err)
		})
	}
}

func TestEncodeOmitsRepeatedSheetIDs(t *testing.T) {
	entries := []Entry{
		{Ref: "A1", SheetID: 3, NewThread: true},
		{Ref: "A2", SheetID: 3},
		{Ref: "A1", SheetID: 1, NewLevel: true, Array: true},
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, entries))

	out := buf.String()
	assert.Contains(t, out, `<c r="A1" i="3" t="1"></c>`)
	assert.Contains(t, out, `<c r="A2"></c>`)
	assert.Contains(t, out, `<c r="A1" i="1" l="1" a="1"></c>`)
	assert.Contains(t, out, `xmlns="`+Namespace+`"`)

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(entries, decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeRejectsMissingSheet(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, []Entry{{Ref: "A1"}})
	assert.Error(t, err)
}
