package main

import (
	"testing"
)

func TestBuildLedgerMemoryDriver(t *testing.T) {
	ledger, err := buildLedger(Config{LedgerDriver: "memory"})
	if err != nil {
		t.Fatalf("memory driver failed: %v", err)
	}
	defer ledger.Close()
	if ledger == nil {
		t.Fatal("memory driver returned no ledger")
	}
}

func TestBuildLedgerRejectsUnknownDriver(t *testing.T) {
	for _, driver := range []string{"sqlite", "pg", ""} {
		if _, err := buildLedger(Config{LedgerDriver: driver}); err == nil {
			t.Errorf("driver %q: expected error, got none", driver)
		}
	}
}
