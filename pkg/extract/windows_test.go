package extract

import (
	"reflect"
	"strings"
	"testing"
)

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want [][2]int
	}{
		{name: "empty", text: "", want: nil},
		{name: "decimal stays inside", text: "Pain. BP 3.5 noted! Next", want: [][2]int{{0, 5}, {6, 19}, {20, 24}}},
		{name: "blank line ends sentence", text: "Fever\n\nCough", want: [][2]int{{0, 5}, {7, 12}}},
		{name: "leading whitespace", text: "  Nausea.", want: [][2]int{{2, 9}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitSentences(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestSplitWindows(t *testing.T) {
	text := "Pain. BP 3.5 noted! Next"
	tests := []struct {
		name      string
		maxTokens int
		want      []Window
	}{
		{
			name:      "one sentence per window",
			maxTokens: 3,
			want: []Window{
				{Start: 0, End: 5, Text: "Pain."},
				{Start: 6, End: 19, Text: "BP 3.5 noted!"},
				{Start: 20, End: 24, Text: "Next"},
			},
		},
		{
			name:      "everything fits",
			maxTokens: 10,
			want:      []Window{{Start: 0, End: 24, Text: text}},
		},
		{
			name:      "unbounded",
			maxTokens: 0,
			want:      []Window{{Start: 0, End: 24, Text: text}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitWindows(text, tt.maxTokens, wordCount)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitWindows() = %+v, want %+v", got, tt.want)
			}
			for _, w := range got {
				if text[w.Start:w.End] != w.Text {
					t.Errorf("window %+v does not index into text", w)
				}
			}
		})
	}
}

func TestSplitSections(t *testing.T) {
	text := "Name: ___\nChief Complaint: chest pain\nHistory of Present Illness:\nPatient reports nausea.\n\nPLAN: aspirin daily"
	got := SplitSections(text)

	wantTitles := []string{"", "Chief Complaint", "History of Present Illness", "PLAN"}
	wantTexts := []string{"Name: ___", "chest pain", "Patient reports nausea.", "aspirin daily"}
	if len(got) != len(wantTitles) {
		t.Fatalf("got %d sections %+v, want %d", len(got), got, len(wantTitles))
	}
	for i, s := range got {
		if s.Title != wantTitles[i] || s.Text != wantTexts[i] {
			t.Errorf("section %d = %+v, want title %q text %q", i, s, wantTitles[i], wantTexts[i])
		}
		if text[s.Offset:s.Offset+len(s.Text)] != s.Text {
			t.Errorf("section %d offset %d does not index into text", i, s.Offset)
		}
	}
}

func TestSplitSections_NoHeaders(t *testing.T) {
	got := SplitSections("  Patient reports chest pain.")
	want := []Section{{Title: "", Text: "Patient reports chest pain.", Offset: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitSections() = %+v, want %+v", got, want)
	}
}
