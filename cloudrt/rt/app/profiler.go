package app

import (
	"fmt"
	"strings"
	"time"
)

// Profiler keeps the last CPU duration of named frame scopes.
type Profiler struct {
	Scopes     map[string]time.Duration
	StartTimes map[string]time.Time
	Order      []string

	frames    int
	fpsWindow time.Duration
	FPS       float64
}

func NewProfiler() *Profiler {
	return &Profiler{
		Scopes:     make(map[string]time.Duration),
		StartTimes: make(map[string]time.Time),
	}
}

func (p *Profiler) BeginScope(name string) {
	if _, seen := p.Scopes[name]; !seen {
		p.Order = append(p.Order, name)
		p.Scopes[name] = 0
	}
	p.StartTimes[name] = time.Now()
}

func (p *Profiler) EndScope(name string) {
	if start, ok := p.StartTimes[name]; ok {
		p.Scopes[name] = time.Since(start)
	}
}

// Frame accumulates frame time and refreshes FPS once per second. It
// reports whether FPS changed.
func (p *Profiler) Frame(dt time.Duration) bool {
	p.frames++
	p.fpsWindow += dt
	if p.fpsWindow < time.Second {
		return false
	}
	p.FPS = float64(p.frames) / p.fpsWindow.Seconds()
	p.frames = 0
	p.fpsWindow = 0
	return true
}

func (p *Profiler) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%.1f fps", p.FPS)
	for _, name := range p.Order {
		fmt.Fprintf(&sb, " | %s %.2fms", name, float64(p.Scopes[name].Microseconds())/1000)
	}
	return sb.String()
}
