package results_test

import (
	"testing"

	"aiwatch/internal/results"
)

func TestReplaceSectionRequiresCachedResult(t *testing.T) {
	cache := results.NewCache()
	ok := cache.ReplaceSection("j1", results.Update{
		Section:  results.SectionChapters,
		Chapters: []results.Chapter{{ID: "c1", Title: "Intro"}},
	})
	if ok {
		t.Fatal("expected no replacement without a cached result")
	}
	if _, found := cache.Get("j1"); found {
		t.Fatal("section event must not create a result")
	}
}

func TestReplaceSectionKeepsOtherSections(t *testing.T) {
	cache := results.NewCache()
	cache.Put(results.Result{
		JobID:         "j1",
		Transcription: []results.Segment{{ID: "s1", Start: 0, End: 2, Text: "hello"}},
		Chapters:      []results.Chapter{{ID: "c1", Title: "Old"}},
		Provider:      "openai",
	})

	ok := cache.ReplaceSection("j1", results.Update{
		Section: results.SectionChapters,
		Chapters: []results.Chapter{
			{ID: "c3", Title: "Outro", Start: 90},
			{ID: "c2", Title: "Intro", Start: 0},
		},
	})
	if !ok {
		t.Fatal("expected replacement")
	}
	got, _ := cache.Get("j1")
	if len(got.Chapters) != 2 || got.Chapters[0].ID != "c2" {
		t.Fatalf("expected chapters ordered by start, got %+v", got.Chapters)
	}
	if len(got.Transcription) != 1 || got.Transcription[0].Text != "hello" {
		t.Fatalf("transcription should be untouched, got %+v", got.Transcription)
	}

	cache.ReplaceSection("j1", results.Update{
		Section:   results.SectionAnalytics,
		Analytics: results.Analytics{TotalViews: 12, Devices: []results.DeviceShare{{Device: "mobile", Percentage: 60}}},
	})
	got, _ = cache.Get("j1")
	if got.Analytics == nil || got.Analytics.TotalViews != 12 {
		t.Fatalf("expected analytics replaced, got %+v", got.Analytics)
	}
	got.Analytics.Devices[0].Device = "mutated"
	again, _ := cache.Get("j1")
	if again.Analytics.Devices[0].Device != "mobile" {
		t.Fatal("Get must return a copy")
	}
}
