package chunker

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

const (
	para1 = "The king cobra is a venomous snake."
	para2 = "It lives in the forests of India."
	para3 = "Its bite can kill an elephant fast."
)

func mustChunker(t *testing.T, c Capacity) *Chunker {
	t.Helper()
	ch, err := New(c)
	if err != nil {
		t.Fatalf("New(%v): %v", c, err)
	}
	return ch
}

func TestSplit_ShortTextSingleFragment(t *testing.T) {
	ch := mustChunker(t, Range(700, 1000))
	got, err := ch.SplitAll("Some Content")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "Some Content" {
		t.Errorf("got %q", got)
	}
}

func TestSplit_TrimsAndDropsEmpty(t *testing.T) {
	ch := mustChunker(t, Fixed(100))
	got, err := ch.SplitAll("   \n\n\t  ")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no fragments, got %q", got)
	}
	got, err = ch.SplitAll("\n\n  padded text \n")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "padded text" {
		t.Errorf("got %q", got)
	}
}

func TestSplit_ParagraphBoundaries(t *testing.T) {
	text := para1 + "\n\n" + para2 + "\n\n" + para3
	tests := []struct {
		name     string
		capacity Capacity
		want     []string
	}{
		{
			name:     "range closes at paragraph once min reached",
			capacity: Range(30, 100),
			want:     []string{para1, para2, para3},
		},
		{
			name:     "fixed packs paragraphs up to max",
			capacity: Fixed(100),
			want:     []string{para1 + "\n\n" + para2, para3},
		},
		{
			name:     "max below two paragraphs",
			capacity: Range(10, 60),
			want:     []string{para1, para2, para3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mustChunker(t, tt.capacity).SplitAll(text)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplit_NeverExceedsMaxOrBreaksWords(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Cobras raise their hoods when threatened. ")
		if i%7 == 6 {
			b.WriteString("\n")
		}
		if i%13 == 12 {
			b.WriteString("\n\n")
		}
	}
	text := b.String()
	for _, c := range []Capacity{Fixed(50), Range(20, 80), Range(100, 300)} {
		t.Run(c.String(), func(t *testing.T) {
			got, err := mustChunker(t, c).SplitAll(text)
			if err != nil {
				t.Fatal(err)
			}
			for _, frag := range got {
				if n := utf8.RuneCountInString(frag); n > c.Max {
					t.Errorf("fragment of %d runes exceeds max %d: %q", n, c.Max, frag)
				}
				if frag != strings.TrimSpace(frag) || frag == "" {
					t.Errorf("fragment not trimmed: %q", frag)
				}
			}
			if !reflect.DeepEqual(strings.Fields(strings.Join(got, " ")), strings.Fields(text)) {
				t.Error("fragments do not preserve the word sequence; a word was split or lost")
			}
		})
	}
}

func TestSplit_PrefersSentenceOverWord(t *testing.T) {
	text := "Cobras are snakes. They are venomous and fast."
	got, err := mustChunker(t, Fixed(30)).SplitAll(text)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Cobras are snakes.", "They are venomous and fast."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSplit_HardSplitsOversizedWord(t *testing.T) {
	got, err := mustChunker(t, Fixed(8)).SplitAll("supercalifragilistic")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"supercal", "ifragili", "stic"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSplit_IdeographicText(t *testing.T) {
	text := "猫が好きです。犬も好きです。"
	got, err := mustChunker(t, Fixed(5)).SplitAll(text)
	if err != nil {
		t.Fatal(err)
	}
	for _, frag := range got {
		if utf8.RuneCountInString(frag) > 5 {
			t.Errorf("fragment too long: %q", frag)
		}
	}
	if strings.Join(got, "") != text {
		t.Errorf("fragments %q do not reassemble the text", got)
	}
}

func TestSplit_InvalidEncoding(t *testing.T) {
	_, err := mustChunker(t, Fixed(10)).Split("abc\xffdef")
	var ce *ChunkingError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ChunkingError, got %v", err)
	}
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("expected ErrInvalidEncoding in chain, got %v", err)
	}
}

func TestSplit_RestartableAndDeterministic(t *testing.T) {
	ch := mustChunker(t, Range(20, 40))
	text := para1 + "\n\n" + para2 + "\n" + para3
	seq, err := ch.Split(text)
	if err != nil {
		t.Fatal(err)
	}
	var first, second []string
	for f := range seq {
		first = append(first, f)
	}
	for f := range seq {
		second = append(second, f)
	}
	again, err := ch.SplitAll(text)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) == 0 || !reflect.DeepEqual(first, second) || !reflect.DeepEqual(first, again) {
		t.Errorf("not deterministic: %q / %q / %q", first, second, again)
	}
}

func TestSplit_EarlyStop(t *testing.T) {
	seq, err := mustChunker(t, Fixed(20)).Split(para1 + " " + para2 + " " + para3)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Errorf("expected to stop after one fragment, got %d", n)
	}
}

func TestCapacity_Validate(t *testing.T) {
	tests := []struct {
		name    string
		c       Capacity
		wantErr bool
	}{
		{"fixed", Fixed(100), false},
		{"range", Range(700, 1000), false},
		{"zero min", Range(0, 10), false},
		{"zero max", Fixed(0), true},
		{"min above max", Range(20, 10), true},
		{"negative min", Range(-1, 10), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.c)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%v) error = %v, wantErr %v", tt.c, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCapacity) {
				t.Errorf("expected ErrInvalidCapacity, got %v", err)
			}
		})
	}
}
