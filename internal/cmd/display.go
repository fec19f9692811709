package cmd

import (
	"fmt"

	"github.com/obsidian-tools/vaultbridge/internal/ledger"
)

const snippetLen = 60

// printHistory renders ledger records for the terminal, most recent first.
func printHistory(records []ledger.Record) {
	if len(records) == 0 {
		fmt.Println("No operations recorded")
		return
	}

	for i := range records {
		r := &records[i]
		fmt.Printf("%s  %-6s  %s\n", r.Timestamp.Format("2006-01-02 15:04:05"), r.Operation, r.Path)
		fmt.Printf("    id: %s\n", r.ID)
		if r.PreviousContent != nil {
			fmt.Printf("    previous: %s\n", snippet(*r.PreviousContent))
		}
		if r.NewContent != nil {
			fmt.Printf("    new:      %s\n", snippet(*r.NewContent))
		}
	}
	fmt.Printf("\n%d operation(s)\n", len(records))
}

// snippet truncates content to a single displayable line.
func snippet(s string) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i] + "…"
			break
		}
	}
	if len(s) > snippetLen {
		return s[:snippetLen] + "…"
	}
	return s
}
