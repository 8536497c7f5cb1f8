package fetcher

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func TestParseDirectiveAttributes(t *testing.T) {
	doc := "#EXTM3U\n" +
		`#EXTINF:-1 tvg-logo="http://x/y.png" group-title="Sports",ESPN HD` + "\n" +
		"http://stream/1\n"

	records := Parse(doc)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.Name != "ESPN HD" {
		t.Errorf("name = %q, want %q", r.Name, "ESPN HD")
	}
	if r.URL != "http://stream/1" {
		t.Errorf("url = %q, want %q", r.URL, "http://stream/1")
	}
	if deref(r.Logo) != "http://x/y.png" {
		t.Errorf("logo = %q, want %q", deref(r.Logo), "http://x/y.png")
	}
	if deref(r.Group) != "Sports" {
		t.Errorf("group = %q, want %q", deref(r.Group), "Sports")
	}
}

func TestParseGroupTitle(t *testing.T) {
	tests := []struct {
		name string
		attr string
		want *string
	}{
		{"slash", `group-title="Animation/Kids"`, strPtr("Animation")},
		{"spaced slash", `group-title="Animation / Kids"`, strPtr("Animation")},
		{"semicolon", `group-title="News;Local"`, strPtr("News")},
		{"first separator wins", `group-title="Movies;Action/Drama"`, strPtr("Movies")},
		{"plain", `group-title="Music"`, strPtr("Music")},
		{"empty", `group-title=""`, nil},
		{"leading separator", `group-title="/Kids"`, nil},
		{"absent", ``, nil},
		{"unterminated", `group-title="Music`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := fmt.Sprintf("#EXTINF:-1 %s,Channel\nhttp://s/1\n", tt.attr)
			records := Parse(doc)
			if len(records) != 1 {
				t.Fatalf("expected 1 record, got %d", len(records))
			}
			if deref(records[0].Group) != deref(tt.want) {
				t.Errorf("group = %q, want %q", deref(records[0].Group), deref(tt.want))
			}
		})
	}
}

func TestParseNameUsesLastComma(t *testing.T) {
	doc := `#EXTINF:-1 tvg-name="A, B" group-title="News",  CNN International  ` + "\nhttp://s/1\n"
	records := Parse(doc)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Name != "CNN International" {
		t.Errorf("name = %q, want %q", records[0].Name, "CNN International")
	}

	// Known limitation: a comma inside a trailing quoted value becomes the boundary.
	doc = `#EXTINF:-1,Real Name tvg-logo="a,b"` + "\nhttp://s/2\n"
	records = Parse(doc)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Name != `b"` {
		t.Errorf("name = %q, want %q", records[0].Name, `b"`)
	}
}

func TestParsePreservesOrder(t *testing.T) {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "#EXTINF:-1,Channel %02d\nhttp://s/%d\n", i, i)
	}
	records := Parse(b.String())
	if len(records) != 50 {
		t.Fatalf("expected 50 records, got %d", len(records))
	}
	for i, r := range records {
		if want := fmt.Sprintf("Channel %02d", i); r.Name != want {
			t.Fatalf("record %d name = %q, want %q", i, r.Name, want)
		}
		if want := fmt.Sprintf("http://s/%d", i); r.URL != want {
			t.Fatalf("record %d url = %q, want %q", i, r.URL, want)
		}
	}
}

func TestParseSkipsMalformedEntries(t *testing.T) {
	doc := strings.Join([]string{
		"#EXTM3U",
		"http://orphan/url",
		"#EXTINF:-1,Good 1",
		"http://s/1",
		"#EXTINF:-1,Dangling",
		"#EXTINF:-1,Good 2",
		"",
		"# a comment between directive and URL",
		"http://s/2",
		"http://s/another-orphan",
		"#EXTINF:-1 group-title=\"X\",Good 3",
		"http://s/3",
		"#EXTINF:-1,Trailing directive without URL",
	}, "\n")

	records := Parse(doc)
	want := []string{"Good 1", "Good 2", "Good 3"}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d: %+v", len(want), len(records), records)
	}
	for i, name := range want {
		if records[i].Name != name {
			t.Errorf("record %d name = %q, want %q", i, records[i].Name, name)
		}
	}
	if records[1].URL != "http://s/2" {
		t.Errorf("record 1 url = %q, want http://s/2", records[1].URL)
	}
}

func TestParseDirectiveNameEdgeCases(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"trailing comma", "#EXTINF:-1,\nhttp://a\n", ""},
		{"blank after comma", "#EXTINF:-1 group-title=\"News\",   \nhttp://a\n", ""},
		{"no comma", "#EXTINF:-1\nhttp://a\n", "#EXTINF:-1"},
		{"no comma with attributes", "#EXTINF:-1 tvg-logo=\"http://l\"\nhttp://a\n", `#EXTINF:-1 tvg-logo="http://l"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := Parse(tt.doc)
			if len(records) != 1 {
				t.Fatalf("expected 1 record, got %d: %+v", len(records), records)
			}
			if records[0].Name != tt.want || records[0].URL != "http://a" {
				t.Errorf("got %+v, want name %q", records[0], tt.want)
			}
		})
	}
}

func TestParseResetsAttributesAfterURL(t *testing.T) {
	doc := `#EXTINF:-1 tvg-logo="http://logo" group-title="A",First` + "\n" +
		"http://s/1\n" +
		"#EXTINF:-1,Second\n" +
		"http://s/2\n"
	records := Parse(doc)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1].Logo != nil || records[1].Group != nil {
		t.Errorf("second record inherited attributes: logo=%q group=%q", deref(records[1].Logo), deref(records[1].Group))
	}
}

func TestParseCRLFAndWhitespace(t *testing.T) {
	doc := "#EXTM3U\r\n  #EXTINF:-1 group-title=\"News\",BBC  \r\n   http://s/bbc   \r\n"
	records := Parse(doc)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Name != "BBC" || records[0].URL != "http://s/bbc" {
		t.Errorf("got %+v", records[0])
	}
}

func TestParseIsDeterministic(t *testing.T) {
	doc := "#EXTINF:-1 group-title=\"A/B\",One\nhttp://1\n#EXTINF:-1,Two\nhttp://2\n"
	a, b := Parse(doc), Parse(doc)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].URL != b[i].URL || deref(a[i].Group) != deref(b[i].Group) {
			t.Errorf("record %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestParseEmpty(t *testing.T) {
	if records := Parse(""); len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
	if records := Parse("#EXTM3U\n"); len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestParseLongLine(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	doc := fmt.Sprintf("#EXTINF:-1 tvg-logo=\"%s\",Long\nhttp://s/long\n", long)
	records := Parse(doc)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if len(deref(records[0].Logo)) != len(long) {
		t.Errorf("logo length = %d, want %d", len(deref(records[0].Logo)), len(long))
	}
}

func TestEachStopsOnCallbackError(t *testing.T) {
	doc := "#EXTINF:-1,A\nhttp://a\n#EXTINF:-1,B\nhttp://b\n#EXTINF:-1,C\nhttp://c\n"
	stop := errors.New("stop")
	var seen []string
	err := Each(doc, func(r Record) error {
		seen = append(seen, r.Name)
		if r.Name == "B" {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected stop error, got %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("expected callback to run twice, got %d", len(seen))
	}
}

func TestDecode(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		text, err := Decode([]byte("#EXTINF:-1,Café\nhttp://s\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(text, "Café") {
			t.Errorf("decoded text lost characters: %q", text)
		}
	})

	t.Run("strips BOM", func(t *testing.T) {
		text, err := Decode([]byte("\xef\xbb\xbf#EXTM3U\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if text != "#EXTM3U\n" {
			t.Errorf("text = %q", text)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := Decode([]byte("#EXTM3U\n\xff\xfe"))
		if !errors.Is(err, ErrDecoding) {
			t.Fatalf("expected ErrDecoding, got %v", err)
		}
		var de *DecodingError
		if !errors.As(err, &de) {
			t.Fatalf("expected *DecodingError, got %T", err)
		}
		if de.Offset != 8 {
			t.Errorf("offset = %d, want 8", de.Offset)
		}
	})
}

func TestParseBytes(t *testing.T) {
	records, err := ParseBytes([]byte("#EXTINF:-1,A\nhttp://a\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record, got %d", len(records))
	}

	if _, err := ParseBytes([]byte{0xc3, 0x28}); !errors.Is(err, ErrDecoding) {
		t.Errorf("expected ErrDecoding, got %v", err)
	}
}

func BenchmarkParse(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 20000; i++ {
		fmt.Fprintf(&sb, "#EXTINF:-1 tvg-logo=\"http://logo/%d.png\" group-title=\"Group %d/Sub\",Channel %d\nhttp://stream/%d\n", i, i%40, i, i)
	}
	doc := sb.String()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Parse(doc)
	}
}
