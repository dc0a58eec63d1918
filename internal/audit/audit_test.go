package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testEntry(session, status, reason string) Entry {
	return Entry{
		SessionID: session,
		Action: Action{
			Tool:        "transfer_funds",
			Destination: "Account_B",
			Amount:      500,
		},
		Status:    status,
		Reason:    reason,
		RulesHash: "sha256:test",
	}
}

func TestRecordAndVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	for i, status := range []string{"AWAITING_CONFIRMATION", "EXECUTED", "BLOCKED"} {
		if err := log.Record(testEntry("s1", status, "test")); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}
	log.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain: %s (line %d)", result.Error, result.ErrorLine)
	}
	if result.Lines != 3 {
		t.Errorf("expected 3 lines, got %d", result.Lines)
	}
}

func TestFirstEntryUsesGenesis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := log.Record(testEntry("s1", "BLOCKED", "test")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	log.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var e Entry
	if err := json.Unmarshal(data[:len(data)-1], &e); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if e.PrevHash != GenesisHash {
		t.Errorf("first entry prev_hash = %s, want genesis", e.PrevHash)
	}
	if e.Timestamp == "" {
		t.Error("timestamp must be set")
	}
}

func TestReopenContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	log.Record(testEntry("s1", "EXECUTED", "first run"))
	log.Close()

	// A fresh process must pick up the chain tail, not restart at
	// genesis.
	log, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	log.Record(testEntry("s1", "BLOCKED", "second run"))
	log.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("chain broken across reopen: %s (line %d)", result.Error, result.ErrorLine)
	}
	if result.Lines != 2 {
		t.Errorf("expected 2 lines, got %d", result.Lines)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	log.Record(testEntry("s1", "BLOCKED", "original reason"))
	log.Record(testEntry("s1", "EXECUTED", "second"))
	log.Record(testEntry("s1", "CANCELLED", "third"))
	log.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	tampered := strings.Replace(string(data), "original reason", "doctored reason", 1)
	if tampered == string(data) {
		t.Fatal("tamper substitution did not apply")
	}
	if err := os.WriteFile(path, []byte(tampered), 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected tampering to be detected")
	}
	if result.ErrorLine != 2 {
		t.Errorf("expected break at line 2, got %d", result.ErrorLine)
	}
}

func TestVerifyDetectsDeletedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	log.Record(testEntry("s1", "BLOCKED", "one"))
	log.Record(testEntry("s1", "EXECUTED", "two"))
	log.Record(testEntry("s1", "CANCELLED", "three"))
	log.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	f.Close()

	// Drop the middle entry.
	kept := lines[0] + "\n" + lines[2] + "\n"
	if err := os.WriteFile(path, []byte(kept), 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected deletion to be detected")
	}
}

func TestVerifyEmptyLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	result := Verify(path)
	if !result.Valid || result.Lines != 0 {
		t.Errorf("empty log must verify: valid=%v lines=%d", result.Valid, result.Lines)
	}
}

func TestVerifyMissingFile(t *testing.T) {
	result := Verify(filepath.Join(t.TempDir(), "nope.jsonl"))
	if result.Valid {
		t.Error("missing file must not verify")
	}
}

func TestDeterministicMarshal(t *testing.T) {
	// Hashing depends on stable field order; the entry must marshal
	// identically every time.
	e := testEntry("s1", "EXECUTED", "test")
	e.Timestamp = "2026-01-01T00:00:00.000Z"
	e.PrevHash = GenesisHash

	a, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	b, _ := json.Marshal(e)
	if HashLine(a) != HashLine(b) {
		t.Error("marshal must be deterministic")
	}
}
