package model

import "fmt"

// Position is a zero-based line/column location in a document.
type Position struct {
	Line   int `json:"line" yaml:"line"`
	Column int `json:"column" yaml:"column"`
}

// NewPosition creates a Position.
func NewPosition(line, column int) Position {
	return Position{Line: line, Column: column}
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line+1, p.Column+1)
}
