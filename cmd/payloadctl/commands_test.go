package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/smallyunet/ethpayload/pkg/codec"
	"github.com/smallyunet/ethpayload/pkg/config"
	"github.com/smallyunet/ethpayload/pkg/payload"
)

func testEnvelope() payload.Envelope {
	w := payload.Withdrawals{{}, {}}
	used, excess := uint64(393216), uint64(0)
	p := payload.NewExecutionPayload(payload.ExecutionPayloadFields{
		ParentHash:    common.HexToHash("0x01"),
		BlockNumber:   100,
		GasLimit:      30_000_000,
		GasUsed:       21_000,
		Timestamp:     1_700_000_000,
		BaseFeePerGas: uint256.NewInt(1_000_000_000),
		BlockHash:     common.HexToHash("0x64"),
		Transactions:  [][]byte{{0x02, 0xf8}},
		Withdrawals:   &w,
		BlobGasUsed:   &used,
		ExcessBlobGas: &excess,
	})
	root := common.HexToHash("0xbeac")
	return payload.NewEnvelope(&root, p)
}

// setup writes a config pointing at endpoint and a store under a temp dir,
// plus the test envelope as JSON.
func setup(t *testing.T, endpoint string) (cfgPath, envPath, storeDir string) {
	t.Helper()
	dir := t.TempDir()
	storeDir = filepath.Join(dir, "payloads")
	cfgPath = filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("engine:\n  endpoint: %s\n  jwtSecret: \"\"\n  timeout: 2\nstore:\n  dir: %s\nlog:\n  level: error\n", endpoint, storeDir)
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	env := testEnvelope()
	data, err := codec.JSON{}.EncodeEnvelope(&env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	envPath = filepath.Join(dir, "envelope.json")
	if err := os.WriteFile(envPath, data, 0644); err != nil {
		t.Fatalf("write envelope: %v", err)
	}
	return cfgPath, envPath, storeDir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"payloadctl"}, args...))
	return out.String(), err
}

func TestInspect(t *testing.T) {
	cfgPath, envPath, _ := setup(t, "http://localhost:8551")

	out, err := run(t, "--config", cfgPath, "inspect", envPath)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"fork:          cancun", "number:        100", "withdrawals:   2", "blobGasUsed:   393216", "baseFee:       1000000000"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestInspectRejectsBadInput(t *testing.T) {
	cfgPath, envPath, _ := setup(t, "http://localhost:8551")

	if _, err := run(t, "--config", cfgPath, "inspect", "--codec", "rlp", envPath); err == nil {
		t.Fatal("expected decode error for json file read as rlp")
	}
	if _, err := run(t, "--config", cfgPath, "inspect", "--codec", "ssz", envPath); err == nil {
		t.Fatal("expected unknown codec error")
	}
	if _, err := run(t, "--config", cfgPath, "inspect"); err == nil {
		t.Fatal("expected argument error")
	}
}

func TestConvertRoundTrip(t *testing.T) {
	cfgPath, envPath, _ := setup(t, "http://localhost:8551")
	rlpPath := filepath.Join(filepath.Dir(envPath), "envelope.rlp")
	backPath := filepath.Join(filepath.Dir(envPath), "back.json")

	if _, err := run(t, "--config", cfgPath, "convert", "--from", "json", "--to", "rlp", envPath, rlpPath); err != nil {
		t.Fatalf("convert to rlp: %v", err)
	}
	if _, err := run(t, "--config", cfgPath, "convert", "--from", "rlp", "--to", "json", rlpPath, backPath); err != nil {
		t.Fatalf("convert to json: %v", err)
	}

	orig, _ := os.ReadFile(envPath)
	back, _ := os.ReadFile(backPath)
	if !bytes.Equal(orig, back) {
		t.Fatalf("json -> rlp -> json changed the file\n%s\n%s", orig, back)
	}
}

func newEngine(t *testing.T, handle func(method string) interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			ID     uint64 `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  handle(req.Method),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// getPayloadV3Result is what execution clients answer to engine_getPayloadV3:
// hex quantities and no parent beacon block root.
func getPayloadV3Result(t *testing.T, env *payload.Envelope) map[string]json.RawMessage {
	t.Helper()
	encoded, err := codec.EngineJSON{}.EncodePayload(env.Payload())
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return map[string]json.RawMessage{
		"executionPayload":      encoded,
		"blockValue":            json.RawMessage(`"0x0"`),
		"blobsBundle":           json.RawMessage(`{"commitments":[],"proofs":[],"blobs":[]}`),
		"shouldOverrideBuilder": json.RawMessage(`false`),
	}
}

func TestFetchSaveListAndSubmit(t *testing.T) {
	env := testEnvelope()
	root, _ := env.ParentBeaconBlockRoot()
	var methods []string
	srv := newEngine(t, func(method string) interface{} {
		methods = append(methods, method)
		if method == "engine_newPayloadV3" {
			return map[string]interface{}{"status": "VALID"}
		}
		return getPayloadV3Result(t, &env)
	})
	cfgPath, _, storeDir := setup(t, srv.URL)

	out, err := run(t, "--config", cfgPath, "fetch", "--id", "0x0000000000000001", "--beacon-root", root.Hex(), "--save")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want, _ := codec.JSON{}.EncodeEnvelope(&env)
	if strings.TrimSpace(out) != string(want) {
		t.Fatalf("unexpected fetch output %s", out)
	}

	out, err = run(t, "--config", cfgPath, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if want := "100\t" + common.HexToHash("0x64").Hex(); !strings.Contains(out, want) {
		t.Fatalf("list output %q missing %q", out, want)
	}

	stored := filepath.Join(storeDir, common.HexToHash("0x64").Hex()+".json")
	out, err = run(t, "--config", cfgPath, "inspect", stored)
	if err != nil {
		t.Fatalf("inspect stored: %v", err)
	}
	if !strings.Contains(out, "fork:          cancun") {
		t.Fatalf("stored envelope should be cancun:\n%s", out)
	}
	if _, err := run(t, "--config", cfgPath, "submit", stored); err != nil {
		t.Fatalf("submit stored: %v", err)
	}
	if strings.Join(methods, ",") != "engine_getPayloadV3,engine_newPayloadV3" {
		t.Fatalf("unexpected engine calls %v", methods)
	}
}

func TestFetchWithoutBeaconRoot(t *testing.T) {
	env := testEnvelope()
	srv := newEngine(t, func(string) interface{} {
		return getPayloadV3Result(t, &env)
	})
	cfgPath, _, _ := setup(t, srv.URL)

	out, err := run(t, "--config", cfgPath, "fetch", "--id", "0x01", "--codec", "engine")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if strings.Contains(out, "parentBeaconBlockRoot") || !strings.Contains(out, `"blockNumber":"0x64"`) {
		t.Fatalf("unexpected engine output %s", out)
	}
}

func TestFetchRejectsBadBeaconRoot(t *testing.T) {
	cfgPath, _, _ := setup(t, "http://localhost:8551")
	if _, err := run(t, "--config", cfgPath, "fetch", "--id", "0x01", "--beacon-root", "0x1234"); err == nil {
		t.Fatal("expected error for short beacon root")
	}
}

func TestConfigInit(t *testing.T) {
	cfgPath, _, _ := setup(t, "http://localhost:8551")
	target := filepath.Join(t.TempDir(), "new.yaml")

	if _, err := run(t, "--config", cfgPath, "config", "init", target); err != nil {
		t.Fatalf("config init: %v", err)
	}
	cfg, err := config.Load(target)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if cfg.Engine.Endpoint != config.DefaultConfig().Engine.Endpoint {
		t.Fatalf("unexpected endpoint %s", cfg.Engine.Endpoint)
	}

	if _, err := run(t, "--config", cfgPath, "config", "init", target); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
	if _, err := run(t, "--config", cfgPath, "config", "init", "--force", target); err != nil {
		t.Fatalf("config init --force: %v", err)
	}
}

func TestFetchRejectsBadID(t *testing.T) {
	cfgPath, _, _ := setup(t, "http://localhost:8551")
	if _, err := run(t, "--config", cfgPath, "fetch", "--id", "1234"); err == nil {
		t.Fatal("expected error for id without 0x prefix")
	}
}

func TestSubmit(t *testing.T) {
	var method string
	srv := newEngine(t, func(m string) interface{} {
		method = m
		return map[string]interface{}{"status": "VALID", "latestValidHash": common.HexToHash("0x64")}
	})
	cfgPath, envPath, _ := setup(t, srv.URL)

	out, err := run(t, "--config", cfgPath, "submit", envPath)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if method != "engine_newPayloadV3" || !strings.Contains(out, "status: VALID") {
		t.Fatalf("unexpected submit via %s: %s", method, out)
	}
}

func TestSubmitRejected(t *testing.T) {
	srv := newEngine(t, func(string) interface{} {
		return map[string]interface{}{"status": "INVALID", "validationError": "bad block"}
	})
	cfgPath, envPath, _ := setup(t, srv.URL)

	out, err := run(t, "--config", cfgPath, "submit", envPath)
	if err == nil {
		t.Fatal("expected error for rejected payload")
	}
	if !strings.Contains(out, "validationError: bad block") {
		t.Fatalf("unexpected output %s", out)
	}
}
