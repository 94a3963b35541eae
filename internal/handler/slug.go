package handler

import (
	"math/rand"
	"strings"
)

// slugAttempts bounds retries when a generated slug collides with an
// existing row.
const slugAttempts = 5

var slugAdjectives = []string{
	"amber", "bold", "brisk", "calm", "clever", "crisp", "eager", "fancy",
	"fuzzy", "gentle", "happy", "jolly", "keen", "lively", "lucky", "mellow",
	"nimble", "proud", "quiet", "rapid", "shiny", "sly", "sunny", "swift",
	"tidy", "vivid", "warm", "witty", "zesty",
}

var slugNouns = []string{
	"badger", "bamboo", "beacon", "breeze", "canyon", "cedar", "comet",
	"coral", "falcon", "fjord", "glacier", "harbor", "heron", "lagoon",
	"lantern", "maple", "meadow", "nebula", "orchid", "otter", "pebble",
	"pine", "prairie", "raven", "reef", "sparrow", "summit", "thicket",
	"tundra", "willow",
}

// randomSlug builds a hyphenated slug from words adjectives followed by a
// noun, e.g. "swift-lantern" or "bold-amber-reef".
func randomSlug(words int) string {
	if words < 2 {
		words = 2
	}
	parts := make([]string, 0, words)
	for i := 0; i < words-1; i++ {
		parts = append(parts, slugAdjectives[rand.Intn(len(slugAdjectives))])
	}
	parts = append(parts, slugNouns[rand.Intn(len(slugNouns))])
	return strings.Join(parts, "-")
}

const pinAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomPin returns the share pin handed out with a new session.
func randomPin() string {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		b.WriteByte(pinAlphabet[rand.Intn(len(pinAlphabet))])
	}
	return b.String()
}

// isUniqueViolation reports whether err is a slug collision on insert.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
