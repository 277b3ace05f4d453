package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

const target = "0xAbC0000000000000000000000000000000000001"

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newChainServer serves blocks 0x64..0x66 with a single matching
// transaction in block 0x64. Blocks listed in failing return an RPC error.
func newChainServer(t *testing.T, failing ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(chainHandler(failing...))
	t.Cleanup(srv.Close)
	return srv
}

func chainHandler(failing ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "eth_blockNumber":
			resp["result"] = "0x66"
		case "eth_getBlockByNumber":
			var number string
			_ = json.Unmarshal(req.Params[0], &number)
			for _, f := range failing {
				if f == number {
					resp["error"] = map[string]any{"code": -32000, "message": "header not found"}
				}
			}
			if _, failed := resp["error"]; !failed {
				resp["result"] = chainBlock(number)
			}
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func chainBlock(number string) map[string]any {
	txs := []map[string]any{
		{
			"hash":             "0xother" + number,
			"from":             "0xsender",
			"to":               "0x0000000000000000000000000000000000000002",
			"value":            "0x0",
			"input":            "0x",
			"transactionIndex": "0x0",
			"gasPrice":         "0x1",
		},
	}
	if number == "0x64" {
		txs = append(txs, map[string]any{
			"hash":             "0x1",
			"from":             "0xsender",
			"to":               "0xabc0000000000000000000000000000000000001",
			"value":            "0x10",
			"input":            "0x",
			"transactionIndex": "0x1",
			"gasPrice":         "0x2",
		})
	}
	return map[string]any{"number": number, "transactions": txs}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RPC_URL", "TARGET_CONTRACT", "START_BLOCK", "END_BLOCK", "OUTPUT_FORMAT",
		"BATCH_SIZE", "MAX_CONCURRENT", "RPC_TIMEOUT", "LOG_FILE",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "SQLITE_PATH", "DB_DSN", "REDIS_ADDR", "KAFKA_BROKERS",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

func runArgs(srv *httptest.Server, extra ...string) []string {
	return append([]string{
		"--rpc-url", srv.URL,
		"--target-contract", target,
		"--start-block", "100",
		"--end-block", "102",
	}, extra...)
}

func TestRun_SimpleOutput(t *testing.T) {
	clearEnv(t)
	srv := newChainServer(t)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), runArgs(srv), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}
	want := "TRANSACTION_DATA:START\n" +
		"TRANSACTION_DATA:1|0x1|0xsender|0xabc0000000000000000000000000000000000001|16|0x|100|1|2\n" +
		"TRANSACTION_DATA:END\n"
	if stdout.String() != want {
		t.Errorf("unexpected output\n got: %q\nwant: %q", stdout.String(), want)
	}
}

func TestRun_JSONOutputWithLatest(t *testing.T) {
	clearEnv(t)
	srv := newChainServer(t)

	var stdout, stderr bytes.Buffer
	args := []string{
		"--rpc-url", srv.URL,
		"--target-contract", target,
		"--start-block", "100",
		"--end-block", "latest",
		"--output-format", "json",
		"--batch-size", "2",
		"--max-concurrent", "1",
	}
	if code := run(context.Background(), args, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}

	lines := strings.Split(strings.TrimSuffix(stdout.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", stdout.String())
	}
	var txs []map[string]string
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "TRANSACTION_DATA:")), &txs); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if len(txs) != 1 || txs[0]["hash"] != "0x1" || txs[0]["block_number"] != "100" {
		t.Errorf("unexpected transactions %v", txs)
	}
}

func TestRun_UnknownFormatFallsBackToSimple(t *testing.T) {
	clearEnv(t)
	srv := newChainServer(t)

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), runArgs(srv, "--output-format", "xml"), &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "TRANSACTION_DATA:1|0x1|") {
		t.Errorf("expected simple payload, got %q", stdout.String())
	}
}

func TestRun_FailedBlockStillSucceeds(t *testing.T) {
	clearEnv(t)
	srv := newChainServer(t, "0x65")

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), runArgs(srv), &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "TRANSACTION_DATA:1|0x1|") {
		t.Errorf("expected matching transaction despite failed block, got %q", stdout.String())
	}
}

func TestRun_StoresCorpusInSQLite(t *testing.T) {
	clearEnv(t)
	dbPath := filepath.Join(t.TempDir(), "corpus.db")
	t.Setenv("SQLITE_PATH", dbPath)
	srv := newChainServer(t)

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), runArgs(srv), &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	var (
		hash  string
		count int
	)
	if err := db.QueryRow(`SELECT hash, COUNT(*) FROM transactions WHERE target = ?`, strings.ToLower(target)).Scan(&hash, &count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 || hash != "0x1" {
		t.Errorf("expected one stored transaction 0x1, got %d (%s)", count, hash)
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	clearEnv(t)
	srv := newChainServer(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing rpc url", []string{"--target-contract", target, "--start-block", "1", "--end-block", "2"}},
		{"bad address", []string{"--rpc-url", srv.URL, "--target-contract", "0x12", "--start-block", "1", "--end-block", "2"}},
		{"start after end", []string{"--rpc-url", srv.URL, "--target-contract", target, "--start-block", "5", "--end-block", "2"}},
		{"bad rpc scheme", []string{"--rpc-url", "ftp://node", "--target-contract", target, "--start-block", "1", "--end-block", "2"}},
		{"unknown flag", runArgs(srv, "--nope")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), tt.args, &stdout, &stderr); code != 1 {
				t.Errorf("expected exit 1, got %d", code)
			}
			if stdout.Len() != 0 {
				t.Errorf("expected no payload, got %q", stdout.String())
			}
		})
	}
}

func TestRun_Help(t *testing.T) {
	clearEnv(t)
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"--help"}, &stdout, &stderr); code != 0 {
		t.Errorf("expected exit 0, got %d", code)
	}
	if !strings.Contains(stderr.String(), "-rpc-url") {
		t.Errorf("expected usage on stderr, got %q", stderr.String())
	}
}

func TestRun_Cancelled(t *testing.T) {
	clearEnv(t)
	srv := newChainServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stdout, stderr bytes.Buffer
	if code := run(ctx, runArgs(srv), &stdout, &stderr); code != 1 {
		t.Errorf("expected exit 1, got %d", code)
	}
	if stdout.Len() != 0 {
		t.Errorf("expected no payload, got %q", stdout.String())
	}
}

func TestRun_CancelledMidFetch(t *testing.T) {
	clearEnv(t)
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "corpus.db"))
	slow := chainHandler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		slow(w, r)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	var stdout, stderr bytes.Buffer
	if code := run(ctx, runArgs(srv), &stdout, &stderr); code != 1 {
		t.Errorf("expected exit 1, got %d", code)
	}
	if stdout.Len() != 0 {
		t.Errorf("expected no payload, got %q", stdout.String())
	}
}
