package lineutil

// Spacing follows a 4-point grid.
const (
	SpacingXS  = "4px"
	SpacingS   = "8px"
	SpacingM   = "12px"
	SpacingL   = "16px"
	SpacingXL  = "20px"
	SpacingXXL = "24px"

	LineSpacingNormal = "6px"
	LineSpacingLarge  = "8px"
)

// Colors from the LINE design system.
// Reference: https://designsystem.line.me/LDSM/foundation/color/line-color-guide-ex-en
const (
	ColorLineGreen = "#06C755"
	ColorWhite     = "#FFFFFF"
	ColorGray400   = "#B7B7B7"
	ColorGray600   = "#777777"
	ColorGray900   = "#111111"
	ColorBlue500   = "#638DFF"
	ColorRed400    = "#FF334B"

	ColorPrimary   = ColorLineGreen
	ColorSecondary = ColorBlue500
	ColorDanger    = ColorRed400

	ColorText    = ColorGray900
	ColorLabel   = "#666666" // 5.7:1 contrast, WCAG AA
	ColorSubtext = ColorGray600

	ColorHeroBg   = ColorLineGreen
	ColorHeroText = ColorWhite
)
