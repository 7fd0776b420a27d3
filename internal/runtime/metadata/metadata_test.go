package metadata

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
)

func TestCloneDoesNotAlias(t *testing.T) {
	original := Metadata{"a": "1", "b": "2"}
	clone := original.Clone()
	clone["a"] = "changed"

	if original["a"] != "1" {
		t.Fatalf("expected original map to stay untouched, got %q", original["a"])
	}
}

func TestCloneNil(t *testing.T) {
	var m Metadata
	cloned := m.Clone()
	if cloned == nil || len(cloned) != 0 {
		t.Fatalf("expected empty non-nil map, got %#v", cloned)
	}
}

func TestWithAndWithAll(t *testing.T) {
	base := Metadata{KeyNode: "talker"}
	enriched := base.With(KeySchema, "std_msgs/msg/Int32")
	if _, ok := base[KeySchema]; ok {
		t.Fatal("expected base map to remain unchanged")
	}

	merged := enriched.WithAll(Metadata{KeyContentType: "application/json"})
	if merged[KeySchema] != "std_msgs/msg/Int32" || merged[KeyContentType] != "application/json" {
		t.Fatalf("unexpected merged metadata %#v", merged)
	}
}

func TestTick(t *testing.T) {
	md := Metadata{}.WithTick(42)
	tick, ok := md.Tick()
	if !ok || tick != 42 {
		t.Fatalf("expected tick 42, got %d (%v)", tick, ok)
	}

	if _, ok := (Metadata{}).Tick(); ok {
		t.Fatal("expected missing tick to report false")
	}
	if _, ok := (Metadata{KeyTick: "x"}).Tick(); ok {
		t.Fatal("expected malformed tick to report false")
	}
}

func TestNewPairs(t *testing.T) {
	md := New("key", "value", "dangling")
	if md["key"] != "value" {
		t.Fatal("expected key to be set")
	}
	if _, ok := md["dangling"]; ok {
		t.Fatal("expected dangling key to be ignored")
	}
}

func TestToAndFromWatermill(t *testing.T) {
	md := Metadata{KeyNode: "talker"}
	wm := ToWatermill(md)
	if wm[KeyNode] != "talker" {
		t.Fatal("expected watermill metadata to copy entries")
	}
	wm[KeyNode] = "mutation"
	if md[KeyNode] != "talker" {
		t.Fatal("expected original metadata to be unaffected")
	}
	if len(ToWatermill(nil)) != 0 {
		t.Fatal("expected nil input to return empty metadata")
	}

	back := FromWatermill(message.Metadata{KeyTick: "3"})
	if tick, ok := back.Tick(); !ok || tick != 3 {
		t.Fatalf("expected tick 3 after conversion, got %d", tick)
	}
	if got := FromWatermill(nil); got == nil || len(got) != 0 {
		t.Fatal("expected empty non-nil map")
	}
}
