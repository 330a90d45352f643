package ui

import (
	"fmt"

	"libharvest/pkg/models"
)

// ASCII logo for the application
const ASCIILogo = `
    ╔═══════════════════════════════════════════════════════════╗
    ║ ██╗     ██╗██████╗ ██╗  ██╗ █████╗ ██████╗ ██╗   ██╗      ║
    ║ ██║     ██║██╔══██╗██║  ██║██╔══██╗██╔══██╗██║   ██║      ║
    ║ ██║     ██║██████╔╝███████║███████║██████╔╝██║   ██║      ║
    ║ ██║     ██║██╔══██╗██╔══██║██╔══██║██╔══██╗╚██╗ ██╔╝      ║
    ║ ███████╗██║██████╔╝██║  ██║██║  ██║██║  ██║ ╚████╔╝       ║
    ║ ╚══════╝╚═╝╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝  ╚═══╝        ║
    ║          COLLECTION HARVESTER - RESUMABLE ACQUISITION     ║
    ╚═══════════════════════════════════════════════════════════╝
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	fmt.Print(Cyan(ASCIILogo))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Println(Red(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Println(Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Println(Green(msg))
}

// PrintInfo prints an info message in cyan
func PrintInfo(label string, value string) {
	fmt.Printf("%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Println(Yellow(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Println(Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	fmt.Println(Magenta(msg))
}

// maxListedFailures bounds the per-id failure list in the final report.
const maxListedFailures = 10

// PrintSummary prints the run completion report.
func PrintSummary(s *models.RunSummary) {
	fmt.Println()
	PrintHighlight("═══ Run Summary ═══")
	PrintInfo("Total items", fmt.Sprintf("%d", s.TotalItems))
	PrintInfo("Succeeded", fmt.Sprintf("%d", s.Succeeded))
	PrintInfo("Skipped (already valid)", fmt.Sprintf("%d", s.Skipped))
	PrintInfo("Failed", fmt.Sprintf("%d", len(s.Failed)))
	PrintInfo("Valid native images on disk", fmt.Sprintf("%d", s.ValidNative))
	PrintInfo("Token refreshes", fmt.Sprintf("%d", s.TokenRefreshes))

	if s.Interrupted {
		PrintWarning("Run interrupted; progress so far is saved and the next run resumes from it")
	}

	if len(s.Failed) > 0 {
		fmt.Println()
		PrintError("Failures:")
		for i, f := range s.Failed {
			if i >= maxListedFailures {
				fmt.Println(Dim(fmt.Sprintf("  ... and %d more", len(s.Failed)-maxListedFailures)))
				break
			}
			fmt.Printf("  %s %s\n", Red(f.ItemID), Dim(f.Reason))
		}
	}
	fmt.Println()
}
