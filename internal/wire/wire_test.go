package wire

import (
	"encoding/json"
	"testing"

	"github.com/tabd/tabd/internal/chunk"
	"github.com/tabd/tabd/internal/tab"
)

func TestEncodeDecodeRequestRoundTrip(t *testing.T) {
	cases := []Request{
		{CreateTab: &tab.CreateMetadata{Name: "build", Shell: "bash", Dimensions: tab.Dimensions{Cols: 80, Rows: 24}}},
		{Input: &InputPayload{Id: 3, Data: chunk.InputChunk{Data: []byte("ls\n")}}},
		{ResizeTab: &ResizePayload{Id: 3, Dimensions: tab.Dimensions{Cols: 100, Rows: 40}}},
		{Auth: strPtr("secret-token")},
		NewGlobalShutdownRequest(),
	}

	for _, want := range cases {
		data, err := EncodeRequest(want)
		if err != nil {
			t.Fatalf("encode %+v: %v", want, err)
		}
		got, err := DecodeRequest(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Type == "" {
			t.Fatalf("decoded request missing type discriminator: %s", data)
		}
	}
}

func TestEncodeRequestSetsDiscriminator(t *testing.T) {
	data, err := EncodeRequest(Request{CloseTab: idPtr(7)})
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	var typ string
	if err := json.Unmarshal(raw["type"], &typ); err != nil {
		t.Fatal(err)
	}
	if typ != TypeCloseTab {
		t.Fatalf("type = %q, want %q", typ, TypeCloseTab)
	}
}

func TestEncodeResponseRoundTrip(t *testing.T) {
	meta := tab.Metadata{Id: 1, Name: "build", Shell: "bash", WorkingDir: "/tmp", Dimensions: tab.Dimensions{Cols: 80, Rows: 24}}
	resp := Response{TabStarted: &meta}

	data, err := EncodeResponse(resp)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeResponse(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.TabStarted == nil || got.TabStarted.Name != "build" {
		t.Fatalf("round trip lost data: %+v", got)
	}
}

func TestOutputFramePreservesRawBytes(t *testing.T) {
	c := chunk.OutputChunk{Index: 5, Data: []byte{0, 1, 2, 0xff, 0xfe}}
	resp := Response{Output: &OutputFrame{Id: 2, Chunk: c}}

	data, err := EncodeResponse(resp)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeResponse(data)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Output.Chunk.Equal(c) {
		t.Fatalf("chunk not preserved byte-exact: got %v want %v", got.Output.Chunk, c)
	}
}

func strPtr(s string) *string { return &s }
func idPtr(id tab.Id) *tab.Id { return &id }
