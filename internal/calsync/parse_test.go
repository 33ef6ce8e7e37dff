package calsync

import "testing"

func TestParseMetadataFullTokenSet(t *testing.T) {
	m := ParseMetadata("C5-10D20B5A[photo of desk]", Defaults{Reward: 1, DurationMinutes: 2, BreakMinutes: 3})
	if m.RewardMin != 5 || m.RewardMax != 10 {
		t.Fatalf("reward range: %d..%d", m.RewardMin, m.RewardMax)
	}
	if m.DurationMinutes != 20 {
		t.Fatalf("duration: %d", m.DurationMinutes)
	}
	if m.BreakMinutes != 5 {
		t.Fatalf("break: %d", m.BreakMinutes)
	}
	if !m.ProofRequired || m.ProofPrompt != "photo of desk" {
		t.Fatalf("proof: %v %q", m.ProofRequired, m.ProofPrompt)
	}
}

func TestParseMetadataEmptyUsesDefaults(t *testing.T) {
	d := Defaults{Reward: 7, DurationMinutes: 30, BreakMinutes: 10}
	m := ParseMetadata("", d)
	if m.RewardMin != 7 || m.RewardMax != 7 {
		t.Fatalf("reward defaults: %d..%d", m.RewardMin, m.RewardMax)
	}
	if m.DurationMinutes != 30 || m.BreakMinutes != 10 {
		t.Fatalf("duration/break defaults: %d/%d", m.DurationMinutes, m.BreakMinutes)
	}
	if m.ProofRequired || m.ProofPrompt != "" {
		t.Fatalf("proof must be disabled by default")
	}
}

func TestParseMetadataSingleReward(t *testing.T) {
	m := ParseMetadata("Water the plants C12", Defaults{Reward: 1})
	if m.RewardMin != 12 || m.RewardMax != 12 {
		t.Fatalf("single reward: %d..%d", m.RewardMin, m.RewardMax)
	}
}

func TestParseMetadataUnclosedProofBracket(t *testing.T) {
	m := ParseMetadata("A[take a pic", Defaults{})
	if !m.ProofRequired {
		t.Fatalf("A[ presence enables proof")
	}
	if m.ProofPrompt != "" {
		t.Fatalf("unclosed bracket yields empty prompt, got %q", m.ProofPrompt)
	}
}
