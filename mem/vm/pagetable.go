package vm

import "fmt"

// A PageTableEntry maps a virtual page of a process to a physical frame.
type PageTableEntry struct {
	PageNumber  int
	FrameNumber int
	Present     bool
	Use         bool
	Modified    bool
}

// A PageTable holds the entries of one process, indexed by page number.
//
// PageTable is not safe for concurrent use. The MMU serializes all the
// access.
type PageTable struct {
	pid     PID
	entries []PageTableEntry
}

// NewPageTable creates a page table with all pages absent.
func NewPageTable(pid PID, numPages int) *PageTable {
	pt := &PageTable{
		pid:     pid,
		entries: make([]PageTableEntry, numPages),
	}
	pt.Reset()

	return pt
}

// PID returns the process that owns the table.
func (pt *PageTable) PID() PID {
	return pt.pid
}

// Len returns the number of pages of the process.
func (pt *PageTable) Len() int {
	return len(pt.entries)
}

// Entry returns a copy of an entry.
func (pt *PageTable) Entry(page int) (PageTableEntry, error) {
	if err := pt.mustBeValid(page); err != nil {
		return PageTableEntry{}, err
	}

	return pt.entries[page], nil
}

// IsPresent tells if a page is resident. Invalid pages are never present.
func (pt *PageTable) IsPresent(page int) bool {
	if pt.mustBeValid(page) != nil {
		return false
	}

	return pt.entries[page].Present
}

// FrameOf returns the frame that holds a page.
func (pt *PageTable) FrameOf(page int) (int, bool) {
	if !pt.IsPresent(page) {
		return NoFrame, false
	}

	return pt.entries[page].FrameNumber, true
}

// MarkPresent records that a page is loaded into a frame. The modified bit is
// cleared since the page comes fresh from swap.
func (pt *PageTable) MarkPresent(page, frame int) error {
	if err := pt.mustBeValid(page); err != nil {
		return err
	}

	e := &pt.entries[page]
	e.FrameNumber = frame
	e.Present = true
	e.Use = true
	e.Modified = false

	return nil
}

// MarkAbsent records that a page is no longer resident. A modified page is
// written back before eviction, so the modified bit is cleared as well.
func (pt *PageTable) MarkAbsent(page int) error {
	if err := pt.mustBeValid(page); err != nil {
		return err
	}

	e := &pt.entries[page]
	e.FrameNumber = NoFrame
	e.Present = false
	e.Use = false
	e.Modified = false

	return nil
}

// MarkModified sets the modified bit of a page.
func (pt *PageTable) MarkModified(page int) error {
	if err := pt.mustBeValid(page); err != nil {
		return err
	}

	pt.entries[page].Modified = true

	return nil
}

// MarkUsed sets the use bit of a page.
func (pt *PageTable) MarkUsed(page int) error {
	if err := pt.mustBeValid(page); err != nil {
		return err
	}

	pt.entries[page].Use = true

	return nil
}

// ClearUseBit clears the use bit of a page.
func (pt *PageTable) ClearUseBit(page int) error {
	if err := pt.mustBeValid(page); err != nil {
		return err
	}

	pt.entries[page].Use = false

	return nil
}

// PresentPages lists the resident page numbers in ascending order.
func (pt *PageTable) PresentPages() []int {
	var pages []int
	for _, e := range pt.entries {
		if e.Present {
			pages = append(pages, e.PageNumber)
		}
	}

	return pages
}

// AbsentPages lists the not resident page numbers in ascending order.
func (pt *PageTable) AbsentPages() []int {
	var pages []int
	for _, e := range pt.entries {
		if !e.Present {
			pages = append(pages, e.PageNumber)
		}
	}

	return pages
}

// CountPresent returns the number of resident pages.
func (pt *PageTable) CountPresent() int {
	n := 0
	for _, e := range pt.entries {
		if e.Present {
			n++
		}
	}

	return n
}

// CountModified returns the number of pages with the modified bit set.
func (pt *PageTable) CountModified() int {
	n := 0
	for _, e := range pt.entries {
		if e.Modified {
			n++
		}
	}

	return n
}

// FindPageByFrame returns the page that is loaded in a frame.
func (pt *PageTable) FindPageByFrame(frame int) (int, bool) {
	for _, e := range pt.entries {
		if e.Present && e.FrameNumber == frame {
			return e.PageNumber, true
		}
	}

	return NoPage, false
}

// Snapshot returns a copy of all the entries.
func (pt *PageTable) Snapshot() []PageTableEntry {
	s := make([]PageTableEntry, len(pt.entries))
	copy(s, pt.entries)

	return s
}

// Reset marks every page absent.
func (pt *PageTable) Reset() {
	for i := range pt.entries {
		pt.entries[i] = PageTableEntry{
			PageNumber:  i,
			FrameNumber: NoFrame,
		}
	}
}

func (pt *PageTable) mustBeValid(page int) error {
	if page < 0 || page >= len(pt.entries) {
		return fmt.Errorf("page %d of process %s (%d pages): %w",
			page, pt.pid, len(pt.entries), ErrInvalidPage)
	}

	return nil
}
