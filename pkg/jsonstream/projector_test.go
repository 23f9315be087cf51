package jsonstream

import (
	"log/slog"
	"os"
	"reflect"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

const storyPayload = "Intro text from the model.\n```json\n" +
	`{"story":"The inn falls silent as you enter.","is_character_in_combat":false,"image_prompt":"dim tavern"}` +
	"\n```"

func TestProjector_SingleChunk(t *testing.T) {
	var lastText string
	var lastComplete bool
	p := NewProjector("story", func(text string, complete bool) {
		lastText, lastComplete = text, complete
	}, testLogger())

	p.Write(storyPayload)
	result, err := p.End()
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}

	if lastText != "The inn falls silent as you enter." {
		t.Errorf("story = %q", lastText)
	}
	if !lastComplete {
		t.Error("final callback should report complete")
	}
	if result["image_prompt"] != "dim tavern" {
		t.Errorf("image_prompt = %v", result["image_prompt"])
	}
}

// Feeding the stream in one chunk vs. arbitrary N-byte chunks must produce
// the same final object and the same final story string.
func TestProjector_ChunkBoundaryIndependence(t *testing.T) {
	parse := func(chunkSize int) (map[string]any, string) {
		var finalText string
		p := NewProjector("story", func(text string, complete bool) {
			if complete {
				finalText = text
			}
		}, testLogger())
		for i := 0; i < len(storyPayload); i += chunkSize {
			end := i + chunkSize
			if end > len(storyPayload) {
				end = len(storyPayload)
			}
			p.Write(storyPayload[i:end])
		}
		result, err := p.End()
		if err != nil {
			t.Fatalf("End failed at chunk size %d: %v", chunkSize, err)
		}
		return result, finalText
	}

	wantResult, wantText := parse(len(storyPayload))
	for _, size := range []int{1, 2, 3, 5, 7, 16, 64} {
		gotResult, gotText := parse(size)
		if gotText != wantText {
			t.Errorf("chunk size %d: story = %q, want %q", size, gotText, wantText)
		}
		if !reflect.DeepEqual(gotResult, wantResult) {
			t.Errorf("chunk size %d: result = %#v, want %#v", size, gotResult, wantResult)
		}
	}
}

func TestProjector_PartialUpdates(t *testing.T) {
	var partials []string
	var completeText string
	p := NewProjector("story", func(text string, complete bool) {
		if complete {
			completeText = text
		} else {
			partials = append(partials, text)
		}
	}, testLogger())

	p.Write(`{"story":"The `)
	p.Write(`dragon `)
	p.Write(`wakes.","done":true}`)
	if _, err := p.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}

	if len(partials) < 2 {
		t.Fatalf("expected progressive partials, got %v", partials)
	}
	if completeText != "The dragon wakes." {
		t.Errorf("complete story = %q", completeText)
	}
	// Partials must be monotonically growing prefixes.
	for i := 1; i < len(partials); i++ {
		if len(partials[i]) < len(partials[i-1]) {
			t.Errorf("partial %d shrank: %q -> %q", i, partials[i-1], partials[i])
		}
	}
}

func TestProjector_EscapedStory(t *testing.T) {
	var finalText string
	p := NewProjector("story", func(text string, complete bool) {
		if complete {
			finalText = text
		}
	}, testLogger())

	p.Write(`{"story":"He said \"halt\"\nand drew steel.","x":1}`)
	if _, err := p.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	want := "He said \"halt\"\nand drew steel."
	if finalText != want {
		t.Errorf("story = %q, want %q", finalText, want)
	}
}

func TestProjector_NoMarker(t *testing.T) {
	called := false
	p := NewProjector("story", func(text string, complete bool) {
		called = true
		if text != "" || !complete {
			t.Errorf("expected empty complete callback, got (%q, %v)", text, complete)
		}
	}, testLogger())

	p.Write("I'm sorry, I can't produce that.")
	result, err := p.End()
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result, got %#v", result)
	}
	if !called {
		t.Error("callback must fire even when no JSON was found")
	}
}

func TestProjector_MarkerSplitAcrossChunks(t *testing.T) {
	var finalText string
	p := NewProjector("story", func(text string, complete bool) {
		if complete {
			finalText = text
		}
	}, testLogger())

	p.Write("Some preamble ``")
	p.Write("`js")
	p.Write("on\n{\"story\":\"Found it.\"}")
	if _, err := p.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if finalText != "Found it." {
		t.Errorf("story = %q", finalText)
	}
}

// A story field that is not the first key must still stream.
func TestProjector_LiveFieldNotFirst(t *testing.T) {
	var partials []string
	p := NewProjector("story", func(text string, complete bool) {
		if !complete && text != "" {
			partials = append(partials, text)
		}
	}, testLogger())

	payload := `{"image_prompt":"a {castle} at [night]","story":"Rain falls on the battlements."}`
	for i := 0; i < len(payload); i += 9 {
		end := i + 9
		if end > len(payload) {
			end = len(payload)
		}
		p.Write(payload[i:end])
	}
	result, err := p.End()
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if result["story"] != "Rain falls on the battlements." {
		t.Errorf("story = %v", result["story"])
	}
	if len(partials) == 0 {
		t.Error("expected partial updates for non-first live field")
	}
	for _, partial := range partials {
		if !stringsHasPrefix("Rain falls on the battlements.", partial) {
			t.Errorf("partial %q is not a prefix of the final story", partial)
		}
	}
}

func stringsHasPrefix(full, prefix string) bool {
	return len(prefix) <= len(full) && full[:len(prefix)] == prefix
}
