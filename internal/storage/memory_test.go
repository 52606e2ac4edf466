package storage

import (
	"context"
	"testing"

	"github.com/hyperjump/codematch/internal/models"
)

func TestMemoryCorpus(t *testing.T) {
	c := NewMemoryCorpus([]*models.CodeEntry{
		{Code: "K35", Description: "Akutní apendicitida"},
		{Code: "K35", Description: "Akutní apendicitida, nová verze"},
		{Code: "I10", Description: "Esenciální hypertenze"},
	})
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	desc, ok, err := c.Description(context.Background(), "K35")
	if err != nil || !ok || desc != "Akutní apendicitida, nová verze" {
		t.Errorf("Description(K35) = %q, %v, %v", desc, ok, err)
	}
	if _, ok, _ := c.Description(context.Background(), "Z99"); ok {
		t.Error("expected Z99 to be missing")
	}
	if e, ok := c.Entry("I10"); !ok || e.Code != "I10" {
		t.Errorf("Entry(I10) = %+v, %v", e, ok)
	}
}
