package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/codematch/internal/models"
)

func TestMatcher_MatchBatchIndependentFailures(t *testing.T) {
	codes := map[string][]string{}
	phrases := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		p := fmt.Sprintf("phrase %d", i)
		if i%5 == 3 {
			p = fmt.Sprintf("boom %d", i)
		}
		codes[p] = []string{"I10", "K35"}
		phrases = append(phrases, p)
	}
	m := newTestMatcher(t, &fakeRetriever{codes: codes})

	items := m.MatchBatch(context.Background(), &models.BatchMatchQuery{Phrases: phrases})
	if len(items) != len(phrases) {
		t.Fatalf("got %d items, want %d", len(items), len(phrases))
	}
	for i, it := range items {
		if it.Phrase != phrases[i] {
			t.Errorf("items[%d].Phrase = %q, want %q", i, it.Phrase, phrases[i])
		}
		if strings.HasPrefix(it.Phrase, "boom") {
			if it.Error == "" || it.Result != nil {
				t.Errorf("items[%d] should have failed: %+v", i, it)
			}
			continue
		}
		if it.Error != "" || it.Result == nil || it.Result.Candidates[0].Code != "K35" {
			t.Errorf("items[%d] = %+v", i, it)
		}
	}
	if n := FailedCount(items); n != 4 {
		t.Errorf("FailedCount = %d, want 4", n)
	}
}

func TestMatcher_MatchBatchEmpty(t *testing.T) {
	m := newTestMatcher(t, &fakeRetriever{})
	items := m.MatchBatch(context.Background(), &models.BatchMatchQuery{})
	if items == nil || len(items) != 0 {
		t.Errorf("items = %v, want empty", items)
	}
}

func cand(code string, score float64) *models.RerankedCandidate {
	return &models.RerankedCandidate{Code: code, Description: "desc " + code, Score: score}
}

func TestAggregate(t *testing.T) {
	items := []*models.BatchItem{
		{Phrase: "p1", Result: &models.MatchResult{Candidates: []*models.RerankedCandidate{cand("B", 2), cand("A", 1), cand("Z", 0)}}},
		{Phrase: "p2", Result: &models.MatchResult{Candidates: []*models.RerankedCandidate{cand("A", 3), cand("C", 3)}}},
		{Phrase: "p3", Error: "failed"},
		{Phrase: "p4", Result: &models.MatchResult{Candidates: []*models.RerankedCandidate{cand("D", 3), cand("B", 1)}}},
	}
	got := Aggregate(items, 2)
	codes := make([]string, len(got))
	for i, a := range got {
		codes[i] = a.Code
	}
	// A and B appear twice with best 3 and 2; C and D once with best 3.
	if want := []string{"A", "B", "C", "D"}; !reflect.DeepEqual(codes, want) {
		t.Errorf("order = %v, want %v", codes, want)
	}
	if got[0].Count != 2 || got[0].BestScore != 3 || !reflect.DeepEqual(got[0].Reasons, []string{"p1", "p2"}) {
		t.Errorf("A = %+v", got[0])
	}
	if got[1].Description != "desc B" {
		t.Errorf("B description = %q", got[1].Description)
	}
	if len(Aggregate(nil, 3)) != 0 {
		t.Error("expected empty aggregate for no items")
	}
}

func TestMatcher_MatchNarrative(t *testing.T) {
	ret := &fakeRetriever{codes: map[string][]string{
		"hypotenze 91/51": {"I10", "I11"},
		"apendicitida":    {"K35"},
		"tlak hypertenze": {"I10"},
	}}
	m := newTestMatcher(t, ret)
	resp, err := m.MatchNarrative(context.Background(), &models.SegmentQuery{
		Text: "hypotenze 91/51. apendicitida, tlak hypertenze; boom boom",
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"hypotenze 91/51", "apendicitida", "tlak hypertenze", "boom boom"}; !reflect.DeepEqual(resp.Phrases, want) {
		t.Fatalf("phrases = %q", resp.Phrases)
	}
	if len(resp.Items) != 4 || resp.Items[3].Error == "" {
		t.Errorf("items = %+v", resp.Items)
	}
	if len(resp.Codes) == 0 || resp.Codes[0].Code != "I10" || resp.Codes[0].Count != 2 {
		t.Errorf("codes = %+v", resp.Codes)
	}
}
