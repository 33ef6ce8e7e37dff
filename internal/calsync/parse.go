package calsync

import (
	"regexp"
	"strconv"
	"strings"
)

// Event descriptions may embed metadata tokens:
//
//	C<n> or C<min>-<max>  coin reward
//	D<n>                  duration minutes
//	B<n>                  break minutes
//	A[<prompt>]           enables photo proof with the given prompt
//
// Any absent token falls back to the caller-supplied defaults.
var (
	rewardRangeRe = regexp.MustCompile(`C(\d+)-(\d+)`)
	rewardRe      = regexp.MustCompile(`C(\d+)`)
	durationRe    = regexp.MustCompile(`D(\d+)`)
	breakRe       = regexp.MustCompile(`B(\d+)`)
	proofRe       = regexp.MustCompile(`A\[([^\]]+)\]`)
)

// Defaults are the fallback values for absent tokens, sourced from settings.
type Defaults struct {
	Reward          int
	DurationMinutes int
	BreakMinutes    int
}

// Metadata is the parsed result of an event description.
type Metadata struct {
	RewardMin       int
	RewardMax       int
	DurationMinutes int
	BreakMinutes    int
	ProofRequired   bool
	ProofPrompt     string
}

// ParseMetadata extracts metadata tokens from an event description. It never
// fails: unparseable fragments simply leave the defaults in place.
func ParseMetadata(description string, d Defaults) Metadata {
	m := Metadata{
		RewardMin:       d.Reward,
		RewardMax:       d.Reward,
		DurationMinutes: d.DurationMinutes,
		BreakMinutes:    d.BreakMinutes,
	}
	if g := rewardRangeRe.FindStringSubmatch(description); g != nil {
		m.RewardMin = atoi(g[1], d.Reward)
		m.RewardMax = atoi(g[2], d.Reward)
	} else if g := rewardRe.FindStringSubmatch(description); g != nil {
		n := atoi(g[1], d.Reward)
		m.RewardMin, m.RewardMax = n, n
	}
	if g := durationRe.FindStringSubmatch(description); g != nil {
		m.DurationMinutes = atoi(g[1], d.DurationMinutes)
	}
	if g := breakRe.FindStringSubmatch(description); g != nil {
		m.BreakMinutes = atoi(g[1], d.BreakMinutes)
	}
	if strings.Contains(description, "A[") {
		m.ProofRequired = true
		if g := proofRe.FindStringSubmatch(description); g != nil {
			m.ProofPrompt = g[1]
		}
	}
	return m
}

func atoi(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
