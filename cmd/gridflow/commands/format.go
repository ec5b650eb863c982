package commands

import (
	"fmt"

	"github.com/wonny/gridflow/internal/orchestrator"
)

// Shared output formatting so every command prints the same way.

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// PrintJobResult prints a collection job result.
func PrintJobResult(result *orchestrator.Result) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  Collection %s/%s\n", result.SourceID, result.DataType)
	PrintSeparator()
	PrintKeyValue("Job ID", result.JobID, 12)
	PrintKeyValue("Status", string(result.Status), 12)
	PrintKeyValue("Written", fmt.Sprintf("%d records", result.RecordsWritten), 12)
	PrintKeyValue("Quarantined", fmt.Sprintf("%d records", result.RecordsQuarantined), 12)
	PrintKeyValue("Duration", result.FinishedAt.Sub(result.StartedAt).String(), 12)
	if result.Error != "" {
		PrintKeyValue("Error", result.Error, 12)
	}
	PrintSeparator()

	for _, sr := range result.SubRanges {
		mark := "✅"
		switch sr.Status {
		case orchestrator.SubRangeQuarantined:
			mark = "⚠️ "
		case orchestrator.SubRangeFailed:
			mark = "❌"
		}
		line := fmt.Sprintf("%s %s: %d records", mark, sr.Key, sr.Records)
		if sr.Version > 0 {
			line += fmt.Sprintf(" (v%d)", sr.Version)
		}
		if sr.Error != "" {
			line += " - " + sr.Error
		}
		fmt.Println("  " + line)
	}
	fmt.Println()
}
