// Package catalog holds the ordered list of movies shown under the form and the seed
// catalog every new page starts from.
package catalog

import (
	"fmt"

	"github.com/kuitang/movieform/internal/errs"
	"github.com/kuitang/movieform/internal/movieform"
)

// Entry is a listed movie together with its selection flag. ID is assigned on append and
// never reused within a list, so it keeps naming the same movie after earlier entries are
// deleted.
type Entry struct {
	movieform.Record
	ID       int  `json:"id"`
	Selected bool `json:"selected"`
}

// List is an ordered movie list. It is not safe for concurrent use.
type List struct {
	entries []Entry
	nextID  int
}

// NewList returns a list holding copies of the given records, all unselected.
func NewList(seed []movieform.Record) *List {
	l := &List{entries: make([]Entry, 0, len(seed))}
	for _, rec := range seed {
		l.Append(rec)
	}
	return l
}

// Append adds a record to the end of the list.
func (l *List) Append(rec movieform.Record) {
	l.nextID++
	l.entries = append(l.entries, Entry{Record: rec, ID: l.nextID})
}

// Len returns the number of entries.
func (l *List) Len() int {
	return len(l.entries)
}

// Movies returns a copy of the entries in display order.
func (l *List) Movies() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ToggleSelect flips the selection flag of the entry at index.
func (l *List) ToggleSelect(index int) error {
	if err := l.check(index); err != nil {
		return err
	}
	l.entries[index].Selected = !l.entries[index].Selected
	return nil
}

// IsSelected reports whether the entry at index is selected.
func (l *List) IsSelected(index int) (bool, error) {
	if err := l.check(index); err != nil {
		return false, err
	}
	return l.entries[index].Selected, nil
}

// Delete removes the entry at index, keeping the order of the rest.
func (l *List) Delete(index int) error {
	if err := l.check(index); err != nil {
		return err
	}
	l.entries = append(l.entries[:index], l.entries[index+1:]...)
	return nil
}

// IndexOf returns the current position of the entry with the given ID.
func (l *List) IndexOf(id int) (int, error) {
	for i, e := range l.entries {
		if e.ID == id {
			return i, nil
		}
	}
	return -1, errs.New(errs.NotFound, fmt.Sprintf("no movie with id %d", id))
}

func (l *List) check(index int) error {
	if index < 0 || index >= len(l.entries) {
		return errs.New(errs.NotFound, fmt.Sprintf("no movie at index %d", index))
	}
	return nil
}
