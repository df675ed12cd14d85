package progress

import (
	"strings"
	"testing"
	"time"
)

func TestRender_RemainingEstimate(t *testing.T) {
	r := NewReporter(3 * time.Minute)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    string
	}{
		{"at start", 0, "about 3m00s remaining"},
		{"one minute in", time.Minute, "about 2m00s remaining"},
		{"past the average", 4 * time.Minute, "about 0s remaining"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Render("a cat surfing", tt.elapsed)
			if !strings.Contains(got, tt.want) {
				t.Errorf("Render() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestRender_EchoesPrompt(t *testing.T) {
	r := NewReporter(time.Minute)

	got := r.Render("a dog on a skateboard", 10*time.Second)
	if !strings.Contains(got, "a dog on a skateboard") {
		t.Errorf("expected prompt echoed in %q", got)
	}
	if !strings.Contains(got, "Elapsed: 10s") {
		t.Errorf("expected elapsed time in %q", got)
	}
}

func TestTruncatePrompt(t *testing.T) {
	r := NewReporter(time.Minute)

	t.Run("short prompt untouched", func(t *testing.T) {
		if got := r.TruncatePrompt("short"); got != "short" {
			t.Errorf("expected unchanged prompt, got %q", got)
		}
	})

	t.Run("exactly at budget untouched", func(t *testing.T) {
		p := strings.Repeat("x", DefaultPromptBudget)
		if got := r.TruncatePrompt(p); got != p {
			t.Errorf("expected unchanged prompt at budget, got %d chars", len(got))
		}
	})

	t.Run("over budget truncated with ellipsis", func(t *testing.T) {
		p := strings.Repeat("x", DefaultPromptBudget+50)
		got := r.TruncatePrompt(p)
		if !strings.HasSuffix(got, ellipsis) {
			t.Errorf("expected ellipsis suffix, got %q", got)
		}
		if got != strings.Repeat("x", DefaultPromptBudget)+ellipsis {
			t.Errorf("expected %d chars plus ellipsis", DefaultPromptBudget)
		}
	})

	t.Run("multi-byte runes not split", func(t *testing.T) {
		p := strings.Repeat("é", DefaultPromptBudget+10)
		got := r.TruncatePrompt(p)
		want := strings.Repeat("é", DefaultPromptBudget) + ellipsis
		if got != want {
			t.Errorf("rune-aware truncation failed: got %q", got)
		}
	})

	t.Run("custom budget", func(t *testing.T) {
		r := &Reporter{AvgDuration: time.Minute, PromptBudget: 5}
		if got := r.TruncatePrompt("abcdefgh"); got != "abcde"+ellipsis {
			t.Errorf("expected abcde%s, got %q", ellipsis, got)
		}
	})
}

func TestIdempotentUpdate(t *testing.T) {
	t.Run("identical text suppressed", func(t *testing.T) {
		for _, x := range []string{"", "abc", "Generating video: cat"} {
			if _, ok := IdempotentUpdate(x, x); ok {
				t.Errorf("IdempotentUpdate(%q, %q) should be suppressed", x, x)
			}
		}
	})

	t.Run("changed text passes through", func(t *testing.T) {
		next, ok := IdempotentUpdate("old", "new")
		if !ok {
			t.Fatal("expected update to pass through")
		}
		if next != "new" {
			t.Errorf("expected %q, got %q", "new", next)
		}
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{-5 * time.Second, "0s"},
		{45 * time.Second, "45s"},
		{time.Minute, "1m00s"},
		{95 * time.Second, "1m35s"},
		{10 * time.Minute, "10m00s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
