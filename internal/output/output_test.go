package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"txcorpus/internal/domain"
)

func sampleTransactions() []domain.FilteredTransaction {
	return []domain.FilteredTransaction{
		{
			Hash:             "0x1",
			From:             "0xsender",
			To:               "0xabc0000000000000000000000000000000000001",
			Value:            "0",
			Data:             "0x",
			BlockNumber:      "100",
			TransactionIndex: "0",
			GasPrice:         "1",
		},
		{
			Hash:             "0x2",
			From:             "0xother",
			To:               "0xabc0000000000000000000000000000000000001",
			Value:            "16",
			Data:             "0xdeadbeef",
			BlockNumber:      "101",
			TransactionIndex: "3",
			GasPrice:         "7",
		},
	}
}

func TestEncodeSimple_Empty(t *testing.T) {
	if got := EncodeSimple(nil); got != "0" {
		t.Errorf("expected \"0\", got %q", got)
	}
	if got := EncodeSimple([]domain.FilteredTransaction{}); got != "0" {
		t.Errorf("expected \"0\", got %q", got)
	}
}

func TestEncodeSimple(t *testing.T) {
	got := EncodeSimple(sampleTransactions())
	want := "2|0x1|0xsender|0xabc0000000000000000000000000000000000001|0|0x|100|0|1" +
		"|0x2|0xother|0xabc0000000000000000000000000000000000001|16|0xdeadbeef|101|3|7"
	if got != want {
		t.Errorf("unexpected payload\n got: %s\nwant: %s", got, want)
	}
	if fields := strings.Split(got, "|"); len(fields) != 1+2*8 {
		t.Errorf("expected %d fields, got %d", 1+2*8, len(fields))
	}
}

func TestEncodeJSON(t *testing.T) {
	got := EncodeJSON(sampleTransactions())

	var decoded []map[string]string
	if err := json.Unmarshal([]byte(got), &decoded); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 records, got %d", len(decoded))
	}
	for _, key := range []string{"hash", "from", "to", "value", "data", "block_number", "transaction_index", "gas_price"} {
		if _, ok := decoded[0][key]; !ok {
			t.Errorf("missing field %q", key)
		}
	}
	if decoded[1]["data"] != "0xdeadbeef" || decoded[1]["block_number"] != "101" {
		t.Errorf("unexpected second record %v", decoded[1])
	}
}

func TestEncodeJSON_Empty(t *testing.T) {
	if got := EncodeJSON(nil); got != "[]" {
		t.Errorf("expected [], got %q", got)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		raw   string
		want  Format
		known bool
	}{
		{"simple", FormatSimple, true},
		{"json", FormatJSON, true},
		{" JSON ", FormatJSON, true},
		{"", FormatSimple, false},
		{"xml", FormatSimple, false},
	}
	for _, tt := range tests {
		got, known := ParseFormat(tt.raw)
		if got != tt.want || known != tt.known {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q, %v", tt.raw, got, known, tt.want, tt.known)
		}
	}
}

func TestEncode_UnknownFormatIsSimple(t *testing.T) {
	txs := sampleTransactions()
	if Encode(txs, Format("xml")) != EncodeSimple(txs) {
		t.Error("expected unknown format to encode as simple")
	}
	if Encode(txs, FormatJSON) != EncodeJSON(txs) {
		t.Error("expected json format to encode as json")
	}
}

func TestWriteFramed(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFramed(&buf, "0"); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "TRANSACTION_DATA:START\nTRANSACTION_DATA:0\nTRANSACTION_DATA:END\n"
	if buf.String() != want {
		t.Errorf("unexpected frame %q", buf.String())
	}
}
