package dsp_test

import (
	"testing"

	"github.com/MrWong99/earsense/pkg/dsp"
)

func TestSegmentBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                string
		n, event, pre, post int
		wantStart, wantEnd  int
	}{
		{name: "interior", n: 1000, event: 500, pre: 100, post: 200, wantStart: 400, wantEnd: 700},
		{name: "shift right at start", n: 1000, event: 10, pre: 200, post: 200, wantStart: 0, wantEnd: 400},
		{name: "shift left at end", n: 1000, event: 950, pre: 100, post: 200, wantStart: 700, wantEnd: 1000},
		{name: "longer than buffer", n: 100, event: 50, pre: 100, post: 100, wantStart: 0, wantEnd: 100},
		{name: "event past end", n: 1000, event: 5000, pre: 10, post: 10, wantStart: 980, wantEnd: 1000},
		{name: "negative event", n: 1000, event: -50, pre: 10, post: 10, wantStart: 0, wantEnd: 20},
		{name: "empty buffer", n: 0, event: 0, pre: 10, post: 10, wantStart: 0, wantEnd: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			start, end := dsp.SegmentBounds(tt.n, tt.event, tt.pre, tt.post)
			if start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("SegmentBounds = [%d, %d), want [%d, %d)", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestSegmentBounds_LengthProperty(t *testing.T) {
	t.Parallel()

	for n := 0; n <= 60; n += 7 {
		for pre := 0; pre <= 40; pre += 5 {
			for post := 0; post <= 40; post += 6 {
				for event := -20; event <= n+20; event += 3 {
					start, end := dsp.SegmentBounds(n, event, pre, post)
					if start < 0 || end > n || start > end {
						t.Fatalf("n=%d event=%d pre=%d post=%d: bounds [%d, %d) out of range", n, event, pre, post, start, end)
					}
					if want := min(pre+post, n); end-start != want {
						t.Fatalf("n=%d event=%d pre=%d post=%d: length %d, want %d", n, event, pre, post, end-start, want)
					}
				}
			}
		}
	}
}

func TestExtract_CopiesData(t *testing.T) {
	t.Parallel()

	buf := chunk(0, 1000)
	seg := dsp.Extract(buf, 10, 200, 200)
	if len(seg) != 400 || seg[0] != 0 || seg[399] != 399 {
		t.Fatalf("segment = len %d [%v..%v], want len 400 [0..399]", len(seg), seg[0], seg[len(seg)-1])
	}
	seg[0] = -1
	if buf[0] != 0 {
		t.Error("Extract must not alias the buffer")
	}
}

func TestExtractAroundMax(t *testing.T) {
	t.Parallel()

	buf := make([]float64, 100)
	buf[60] = 9
	seg, idx := dsp.ExtractAroundMax(buf, 5, 10)
	if idx != 60 || len(seg) != 15 || seg[5] != 9 {
		t.Errorf("ExtractAroundMax = idx %d len %d, want idx 60 len 15 with peak at 5", idx, len(seg))
	}
	if seg, idx := dsp.ExtractAroundMax(nil, 5, 10); idx != -1 || len(seg) != 0 {
		t.Errorf("empty buffer: idx %d len %d, want -1 and 0", idx, len(seg))
	}
}

func TestRoll_Samples(t *testing.T) {
	t.Parallel()

	pre, post := dsp.Roll{PreSeconds: 0.15, PostSeconds: 0.25}.Samples(16000)
	if pre != 2400 || post != 4000 {
		t.Errorf("Samples = %d, %d, want 2400, 4000", pre, post)
	}
}
