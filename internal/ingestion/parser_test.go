package ingestion_test

import (
	"StarLedger/internal/ingestion"
	"encoding/json"
	"strings"
	"testing"
)

func submissionJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestParseSubmission(t *testing.T) {
	payload := map[string]interface{}{
		"address":   "1Alice",
		"message":   "1Alice:1700000000:starRegistry",
		"signature": "H+sig=",
		"star": map[string]interface{}{
			"dec":   "68° 52' 56.9",
			"ra":    "16h 29m 1.0s",
			"story": "Found star using https://www.google.com/sky/",
		},
	}

	sub, err := ingestion.ParseSubmission(submissionJSON(t, payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if sub.Address != "1Alice" {
		t.Errorf("address: got %s, want 1Alice", sub.Address)
	}
	if sub.Message != "1Alice:1700000000:starRegistry" {
		t.Errorf("message: got %s", sub.Message)
	}
	if sub.Signature != "H+sig=" {
		t.Errorf("signature: got %s", sub.Signature)
	}

	var star map[string]string
	if err := json.Unmarshal(sub.Star, &star); err != nil {
		t.Fatalf("star: %v", err)
	}
	if star["ra"] != "16h 29m 1.0s" {
		t.Errorf("star ra: got %s", star["ra"])
	}
}

func TestParseSubmission_MissingFields(t *testing.T) {
	base := map[string]interface{}{
		"address":   "1Alice",
		"message":   "m",
		"signature": "s",
		"star":      map[string]string{"ra": "1h"},
	}

	for _, field := range []string{"address", "message", "signature", "star"} {
		payload := make(map[string]interface{}, len(base))
		for k, v := range base {
			payload[k] = v
		}
		delete(payload, field)

		_, err := ingestion.ParseSubmission(submissionJSON(t, payload))
		if err == nil {
			t.Errorf("missing %s: expected error", field)
			continue
		}
		if !strings.Contains(err.Error(), field) {
			t.Errorf("missing %s: error %q should name the field", field, err)
		}
	}
}

func TestParseSubmission_StarMustBeObject(t *testing.T) {
	for _, star := range []interface{}{[]int{1, 2, 3}, nil, "vega", 7} {
		payload := map[string]interface{}{
			"address":   "1Alice",
			"message":   "m",
			"signature": "s",
			"star":      star,
		}
		if _, err := ingestion.ParseSubmission(submissionJSON(t, payload)); err == nil {
			t.Errorf("star %v: expected error for non-object star", star)
		}
	}
}

func TestParseSubmission_InvalidJSON(t *testing.T) {
	if _, err := ingestion.ParseSubmission([]byte(`{"address":`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
