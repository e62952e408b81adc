package banner

import (
	"github.com/charmbracelet/lipgloss"

	"httpbench/internal/tui/styles"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
    __    __  __        __                    __
   / /_  / /_/ /_____  / /_  ___  ____  _____/ /_
  / __ \/ __/ __/ __ \/ __ \/ _ \/ __ \/ ___/ __ \
 / / / / /_/ /_/ /_/ / /_/ /  __/ / / / /__/ / / /
/_/ /_/\__/\__/ .___/_.___/\___/_/ /_/\___/_/ /_/
             /_/                                  `

	return "\n" + style.Render(ascii) + "\n"
}
