package pipeline

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Friday, play Iron Man.", "friday play iron man"},
		{"  HELLO   world ", "hello world"},
		{"what's up?", "whats up"},
		{"", ""},
		{"!?.,", ""},
		{"one\ttwo\nthree", "one two three"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Friday, play Iron Man.", "Hello  World!", "a.b.c", ""}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestFindWake(t *testing.T) {
	table := NewWakeTable(nil, "Friday")

	tests := []struct {
		transcript string
		tail       string
		found      bool
	}{
		{"Friday, play Iron Man.", "play Iron Man.", true},
		{"Hey Friday, what time is it?", "what time is it?", true},
		{"Friday", "", true},
		{"Friday.", "", true},
		{"okay friday turn on the lights", "turn on the lights", true},
		{"good morning", "", false},
		{"it's a beautiful friday morning", "morning", true},
		{"fridays are great", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			tail, found := table.FindWake(tt.transcript)
			if found != tt.found {
				t.Fatalf("found = %v, want %v", found, tt.found)
			}
			if tail != tt.tail {
				t.Errorf("tail = %q, want %q", tail, tt.tail)
			}
		})
	}
}

func TestFindWakePrefersLongestMatch(t *testing.T) {
	table := NewWakeTable([]string{"", "hey"}, "friday")

	// "hey friday" must win over the bare "friday" so the tail is clean
	tail, found := table.FindWake("hey friday tell me a joke")
	if !found {
		t.Fatal("expected wake word")
	}
	if tail != "tell me a joke" {
		t.Errorf("tail = %q, want %q", tail, "tell me a joke")
	}
}

func TestIsGoodbye(t *testing.T) {
	table := NewWakeTable(nil, "friday")

	tests := []struct {
		transcript string
		want       bool
	}{
		{"goodbye", true},
		{"Goodbye.", true},
		{"Friday, goodbye.", true},
		{"good bye", true},
		{"say goodbye to my little friend", false},
		{"goodbye friend", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := table.IsGoodbye(tt.transcript); got != tt.want {
			t.Errorf("IsGoodbye(%q) = %v, want %v", tt.transcript, got, tt.want)
		}
	}
}

func TestIsCancel(t *testing.T) {
	table := NewWakeTable(nil, "friday")

	tests := []struct {
		transcript string
		want       bool
	}{
		{"stop", true},
		{"Stop!", true},
		{"never mind", true},
		{"Friday, stop.", true},
		{"stop the music", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := table.IsCancel(tt.transcript); got != tt.want {
			t.Errorf("IsCancel(%q) = %v, want %v", tt.transcript, got, tt.want)
		}
	}
}

func TestWakeTableDeduplicatesWords(t *testing.T) {
	table := NewWakeTable([]string{"", "", "hey", "hey"}, "friday")
	if len(table.words) != 2 {
		t.Errorf("expected 2 unique wake words, got %d: %v", len(table.words), table.words)
	}
}
