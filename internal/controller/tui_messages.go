package controller

import "time"

// Message types.
type tickMsg time.Time

// tableMsg replaces the rows shown by the browser.
type tableMsg struct {
	table tableData
}

// List item types.
type rowItem struct {
	label  string
	detail string
}

func (r rowItem) FilterValue() string {
	return r.label + " " + r.detail
}
