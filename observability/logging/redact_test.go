package logging

import "testing"

func TestMaskFieldRedactsUnknownKeys(t *testing.T) {
	attr := MaskField("token", "secret-value")
	if attr.Value.String() != RedactedValue {
		t.Fatalf("expected token value to be masked, got %q", attr.Value.String())
	}
}

func TestMaskFieldPassesAllowlistedKeys(t *testing.T) {
	attr := MaskField("operation", "mintFractional")
	if attr.Value.String() != "mintFractional" {
		t.Fatalf("allowlisted key must pass through, got %q", attr.Value.String())
	}
}

func TestMaskValueLeavesEmptyAlone(t *testing.T) {
	if got := MaskValue(""); got != "" {
		t.Fatalf("empty value must stay empty, got %q", got)
	}
	if got := MaskValue("secret"); got != RedactedValue {
		t.Fatalf("non empty value must be masked, got %q", got)
	}
}

func TestAllowlistCoversLogPipelineKeys(t *testing.T) {
	for _, key := range []string{"error", "component", "regime", "operation"} {
		if !IsAllowlisted(key) {
			t.Fatalf("expected %q on the allowlist", key)
		}
	}
	if IsAllowlisted("authorization") {
		t.Fatalf("authorization must never be allowlisted")
	}
}
