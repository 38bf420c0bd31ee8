package shell

import (
	"image/color"

	fynetheme "fyne.io/fyne/v2/theme"

	"github.com/shsf-rail/shsf-hub/internal/events"
)

var palette = map[string]color.NRGBA{
	events.ColorGreen:  {R: 0x2e, G: 0x7d, B: 0x32, A: 0xff},
	events.ColorOrange: {R: 0xef, G: 0x6c, B: 0x00, A: 0xff},
	events.ColorRed:    {R: 0xc6, G: 0x28, B: 0x28, A: 0xff},
	events.ColorBlue:   {R: 0x15, G: 0x65, B: 0xc0, A: 0xff},
}

// colorFor maps an event colour name to a display colour; unknown names
// use the theme foreground.
func colorFor(name string) color.Color {
	if c, ok := palette[name]; ok {
		return c
	}
	return foreground()
}

func foreground() color.Color {
	return fynetheme.Color(fynetheme.ColorNameForeground)
}
