package utils

import "testing"

func TestSequenceCounterCold(t *testing.T) {
	cases := []struct {
		seqNo int64
		cold  bool
	}{
		{0, true},  // no redis client connected, INCR no-op returns 0
		{1, true},  // redis just created the counter
		{2, false},
		{100, false},
	}
	for _, c := range cases {
		if got := sequenceCounterCold(c.seqNo); got != c.cold {
			t.Errorf("sequenceCounterCold(%d) = %v, want %v", c.seqNo, got, c.cold)
		}
	}
}
