// Package models defines core data structures for vocabulary entries, match queries, and match results.
package models

import "time"

// CodeEntry is one row of the controlled vocabulary. Entries are immutable once loaded.
type CodeEntry struct {
	Code        string `json:"code" db:"code"`
	Description string `json:"description" db:"description"`
	Category    string `json:"category,omitempty" db:"category"`
	Chapter     string `json:"chapter,omitempty" db:"chapter"`
}

// LoadRecord describes one vocabulary import.
type LoadRecord struct {
	ID       string    `json:"id" db:"id"`
	Source   string    `json:"source" db:"source"`
	Count    int       `json:"count" db:"count"`
	LoadedAt time.Time `json:"loaded_at" db:"loaded_at"`
}
