package shaders

import (
	_ "embed"
	"strings"
)

//go:embed fullscreen.wgsl
var FullscreenWGSL string

//go:embed clouds.wgsl
var CloudsWGSL string

//go:embed sky.wgsl
var SkyWGSL string

//go:embed present.wgsl
var PresentWGSL string

// Entry points.
const (
	FullscreenVertex = "fullscreen_vertex"
	CloudsFragment   = "fragment"
	SkyFragment      = "sky_fragment"
	PresentFragment  = "present_fragment"
)

// WithFullscreen prepends the full-screen triangle vertex stage to a
// fragment-only source so both live in one module.
func WithFullscreen(fragment string) string {
	var b strings.Builder
	b.WriteString(FullscreenWGSL)
	b.WriteString("\n")
	b.WriteString(fragment)
	return b.String()
}
