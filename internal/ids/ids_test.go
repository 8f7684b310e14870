package ids

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewIsSortable(t *testing.T) {
	base := time.Now()
	first := NewAt(base)
	second := NewAt(base.Add(time.Millisecond))
	if first >= second {
		t.Fatalf("expected %s < %s", first, second)
	}
	for _, id := range []string{first, second} {
		if _, err := ulid.ParseStrict(id); err != nil {
			t.Fatalf("generated id %q does not parse: %v", id, err)
		}
	}
}
