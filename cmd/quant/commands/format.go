package commands

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"unicode/utf8"
)

// 모든 커맨드 출력은 out으로 (테스트에서 교체)
var out io.Writer = os.Stdout

const ruleWidth = 59

// PrintHeader prints a boxed title with optional detail lines
func PrintHeader(title string, lines ...string) {
	fmt.Fprintln(out)
	PrintDoubleSeparator()
	fmt.Fprintf(out, "  %s\n", title)
	if len(lines) > 0 {
		PrintSeparator()
		for _, line := range lines {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
	PrintSeparator()
}

// PrintSeparator prints a single rule
func PrintSeparator() {
	fmt.Fprintln(out, strings.Repeat("─", ruleWidth))
}

// PrintDoubleSeparator prints a double rule
func PrintDoubleSeparator() {
	fmt.Fprintln(out, strings.Repeat("═", ruleWidth))
}

func PrintWarning(message string) {
	fmt.Fprintf(out, "\n⚠️  %s\n\n", message)
}

func PrintSuccess(message string) {
	fmt.Fprintf(out, "✅ %s\n", message)
}

func PrintError(message string) {
	fmt.Fprintf(out, "❌ %s\n", message)
}

func PrintInfo(message string) {
	fmt.Fprintf(out, "ℹ️  %s\n", message)
}

// PrintTableHeader prints column titles and a rule spanning the table
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	total := 0
	for _, w := range widths {
		total += w
	}
	if len(widths) > 1 {
		total += 2 * (len(widths) - 1)
	}
	fmt.Fprintln(out, strings.Repeat("─", total))
}

// PrintTableRow prints one row; values wider than their column are cut with "…"
func PrintTableRow(values []string, widths []int) {
	cells := make([]string, len(values))
	for i, v := range values {
		if i < len(widths) {
			v = fit(v, widths[i])
		}
		cells[i] = v
	}
	fmt.Fprintln(out, strings.TrimRight(strings.Join(cells, "  "), " "))
}

// fit pads or truncates s to width runes
func fit(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n > width && width > 1 {
		r := []rune(s)
		return string(r[:width-1]) + "…"
	}
	return s + strings.Repeat(" ", max(width-n, 0))
}

// PrintList prints a bulleted list
func PrintList(items []string) {
	for _, item := range items {
		fmt.Fprintf(out, "   • %s\n", item)
	}
}

// PrintKeyValue prints "key : value" with the key padded to keyWidth
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Fprintf(out, "   %s : %s\n", fit(key, keyWidth), value)
}

// formatPercent renders a fraction as a signed percentage; NaN prints as "n/a"
func formatPercent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", v*100)
}
