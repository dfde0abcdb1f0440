// Package pathkey implements the hierarchical, slash-separated topic
// identifier used throughout the broker's topic tree.
package pathkey

import "strings"

// Key is a canonicalized, slash-separated hierarchical topic identifier.
type Key string

// New canonicalizes a raw topic string: collapsing repeated slashes and
// trimming leading/trailing slashes, so "command//robot-a/" and
// "command/robot-a" address the same channel.
func New(raw string) Key {
	parts := strings.Split(raw, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		segments = append(segments, p)
	}
	return Key(strings.Join(segments, "/"))
}

// Segments splits the key into its path components.
func (k Key) Segments() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), "/")
}

// Child appends a segment, returning the canonicalized child key.
func (k Key) Child(segment string) Key {
	if k == "" {
		return New(segment)
	}
	return New(string(k) + "/" + segment)
}

// String returns the canonical string form.
func (k Key) String() string { return string(k) }

// Less implements the lexicographic ordering used to break try_receive ties.
func Less(a, b Key) bool { return a < b }
