package wiimote

import "testing"

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		devName  string
		vid, pid uint16
		expected bool
	}{
		{"vid/pid match, no name", "", 0x057E, 0x0306, true},
		{"vid/pid match, bogus name", "something else", 0x057E, 0x0306, true},
		{"name match", "Nintendo RVL-CNT-01", 0, 0, true},
		{"name match with suffix", "Nintendo RVL-CNT-01-TR", 0, 0, true},
		{"UC variant excluded", "Nintendo RVL-CNT-01X-UC", 0, 0, false},
		{"wrong vid", "", 0x054C, 0x0306, false},
		{"wrong pid", "", 0x057E, 0x0330, false},
		{"unrelated name", "Pro Controller", 0, 0, false},
		{"empty", "", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.devName, tt.vid, tt.pid); got != tt.expected {
				t.Errorf("Matches(%q, %04X, %04X) = %v, want %v",
					tt.devName, tt.vid, tt.pid, got, tt.expected)
			}
		})
	}
}
