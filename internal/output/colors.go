package output

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Palette cycles through branch colors in listings
var Palette = [][]int{
	{76, 203, 241},  // Light blue
	{77, 202, 125},  // Green
	{245, 200, 0},   // Yellow
	{248, 144, 72},  // Orange
	{235, 130, 188}, // Pink
	{159, 131, 228}, // Purple
}

// ColorIndexed colors text with the palette entry for index
func ColorIndexed(text string, index int) string {
	c := Palette[index%len(Palette)]
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))).
		Render(text)
}

func colored(code string) func(string) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(code))
	return func(text string) string { return style.Render(text) }
}

// Named colors used by listings
var (
	ColorRed     = colored("1")
	ColorGreen   = colored("2")
	ColorYellow  = colored("3")
	ColorMagenta = colored("5")
	ColorCyan    = colored("6")
	ColorDim     = colored("8")
)

// ColorBold renders text bold
func ColorBold(text string) string {
	return lipgloss.NewStyle().Bold(true).Render(text)
}
