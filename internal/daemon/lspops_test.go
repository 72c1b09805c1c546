package daemon

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeLocationsArray(t *testing.T) {
	raw := json.RawMessage(`[
		{"uri":"file:///a.go","range":{"start":{"line":4,"character":2}}},
		{"uri":"file:///b.go","range":{"start":{"line":9,"character":0}}}
	]`)
	got := decodeLocations(raw)
	require.Len(t, got, 2)
	require.Equal(t, "file:///a.go", got[0].File)
	require.Equal(t, 4, got[0].Line)
	require.Equal(t, 2, got[0].Column)
}

func TestDecodeLocationsSingle(t *testing.T) {
	raw := json.RawMessage(`{"uri":"file:///a.go","range":{"start":{"line":1,"character":1}}}`)
	got := decodeLocations(raw)
	require.Len(t, got, 1)
	require.Equal(t, "file:///a.go", got[0].File)
}

func TestDecodeLocationsLinks(t *testing.T) {
	raw := json.RawMessage(`[
		{"targetUri":"file:///c.rs","targetRange":{"start":{"line":7,"character":3}}}
	]`)
	got := decodeLocations(raw)
	require.Len(t, got, 1)
	require.Equal(t, "file:///c.rs", got[0].File)
	require.Equal(t, 7, got[0].Line)
}

func TestDecodeLocationsNull(t *testing.T) {
	require.Empty(t, decodeLocations(json.RawMessage(`null`)))
	require.Empty(t, decodeLocations(json.RawMessage(`[]`)))
}

func TestDecodeHoverMarkupContent(t *testing.T) {
	raw := json.RawMessage(`{"contents":{"kind":"markdown","value":"func Calculate(a, b int) int"}}`)
	require.Equal(t, "func Calculate(a, b int) int", decodeHoverContents(raw))
}

func TestDecodeHoverPlainString(t *testing.T) {
	raw := json.RawMessage(`{"contents":"plain docs"}`)
	require.Equal(t, "plain docs", decodeHoverContents(raw))
}

func TestDecodeHoverMarkedStringArray(t *testing.T) {
	raw := json.RawMessage(`{"contents":["first",{"language":"go","value":"second"}]}`)
	require.Equal(t, "first\nsecond", decodeHoverContents(raw))
}

func TestDecodeHoverNull(t *testing.T) {
	require.Empty(t, decodeHoverContents(json.RawMessage(`null`)))
}

func TestFlattenDocumentSymbolsWalksChildren(t *testing.T) {
	raw := json.RawMessage(`[
		{"name":"Server","kind":5,"range":{"start":{"line":10,"character":0}},
		 "children":[
			{"name":"Start","kind":6,"range":{"start":{"line":12,"character":1}}},
			{"name":"Stop","kind":6,"range":{"start":{"line":20,"character":1}}}
		 ]}
	]`)
	got := flattenDocumentSymbols(raw)
	require.Len(t, got, 3)
	require.Equal(t, "Server", got[0].Name)
	require.Equal(t, "Start", got[1].Name)
	require.Equal(t, "method", got[1].Kind)
	require.Equal(t, "Stop", got[2].Name)
}

func TestPositionOpsRequireFile(t *testing.T) {
	socket, _ := startTestDaemon(t, 4)
	conn := dialTest(t, socket)

	for _, kind := range []string{KindDefinition, KindReferences, KindHover, KindDocumentSymbols} {
		resp := roundTrip(t, conn, map[string]any{"kind": kind, "request_id": "r-" + kind})
		require.NotNil(t, resp.Error, kind)
		require.Equal(t, "Configuration", resp.Error.Kind, kind)
	}
}

func TestPositionOpUnknownExtensionIsUnsupportedLanguage(t *testing.T) {
	socket, _ := startTestDaemon(t, 4)
	conn := dialTest(t, socket)

	resp := roundTrip(t, conn, map[string]any{
		"kind": KindHover, "request_id": "r-ext", "file": "/tmp/readme.txt", "line": 0, "column": 0,
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, "UnsupportedLanguage", resp.Error.Kind)
}
