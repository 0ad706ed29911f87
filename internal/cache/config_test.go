package cache

import "testing"

func TestParseMaxBytesAbsolute(t *testing.T) {
	cases := map[string]int64{
		"100MB":  100 * 1000 * 1000,
		"1.5GB":  int64(1.5 * 1000 * 1000 * 1000),
		"512KB":  512 * 1000,
		"100mb":  100 * 1000 * 1000,
	}
	for in, want := range cases {
		got, err := ParseMaxBytes(in)
		if err != nil {
			t.Errorf("ParseMaxBytes(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseMaxBytes(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseMaxBytesPercentage(t *testing.T) {
	got, err := ParseMaxBytes("25%")
	if err != nil {
		t.Fatalf("ParseMaxBytes(25%%): %v", err)
	}
	if got <= 0 {
		t.Errorf("expected a positive byte count from a percentage, got %d", got)
	}
}

func TestParseMaxBytesRejectsOutOfRangePercentage(t *testing.T) {
	for _, in := range []string{"0%", "101%", "-5%"} {
		if _, err := ParseMaxBytes(in); err == nil {
			t.Errorf("expected ParseMaxBytes(%q) to fail", in)
		}
	}
}

func TestParseMaxBytesRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "not-a-size", "MB100"} {
		if _, err := ParseMaxBytes(in); err == nil {
			t.Errorf("expected ParseMaxBytes(%q) to fail", in)
		}
	}
}
