package pathkey

import (
	"reflect"
	"testing"
)

func TestNewCanonicalizesSlashes(t *testing.T) {
	got := New("command//robot-a/")
	want := Key("command/robot-a")
	if got != want {
		t.Fatalf("New() = %q, want %q", got, want)
	}
}

func TestSegments(t *testing.T) {
	k := New("fleet/robot-a/pose")
	got := k.Segments()
	want := []string{"fleet", "robot-a", "pose"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Segments() = %v, want %v", got, want)
	}
}

func TestEmptySegments(t *testing.T) {
	if got := Key("").Segments(); got != nil {
		t.Fatalf("expected nil segments for empty key, got %v", got)
	}
}

func TestChild(t *testing.T) {
	root := New("fleet")
	child := root.Child("robot-a")
	if child != Key("fleet/robot-a") {
		t.Fatalf("Child() = %q, want fleet/robot-a", child)
	}
	if New("").Child("robot-a") != Key("robot-a") {
		t.Fatalf("Child() on empty root should equal the segment itself")
	}
}

func TestLessOrdersLexicographically(t *testing.T) {
	a, b := New("fleet/robot-a"), New("fleet/robot-b")
	if !Less(a, b) || Less(b, a) {
		t.Fatalf("expected %q < %q", a, b)
	}
}
