package ui

import "strings"

// Sparkline keeps a ring buffer of throughput samples and renders them
// as Unicode block characters.
type Sparkline struct {
	samples []float64
	head    int
	count   int
	max     float64
}

var sparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// NewSparkline creates a sparkline holding up to capacity samples.
func NewSparkline(capacity int) *Sparkline {
	if capacity <= 0 {
		capacity = 60
	}
	return &Sparkline{samples: make([]float64, capacity)}
}

// Add appends a sample, evicting the oldest when the buffer is full.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % len(s.samples)
	s.count++

	if value > s.max {
		s.max = value
	}

	// Rescale once per full cycle so an early spike does not flatten
	// everything that follows it.
	if s.count%len(s.samples) == 0 {
		s.rescale()
	}
}

func (s *Sparkline) rescale() {
	s.max = 0
	for _, v := range s.samples {
		if v > s.max {
			s.max = v
		}
	}
	if s.max < 1 {
		s.max = 1
	}
}

// Render returns up to width block characters, oldest sample first,
// right-padded with spaces while the buffer is still filling.
// Render does not mutate state and is safe under a read lock.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = len(s.samples)
	}

	max := s.max
	if max <= 0 {
		max = 1
	}

	n := s.count
	if n > len(s.samples) {
		n = len(s.samples)
	}
	skip := 0
	if n > width {
		skip = n - width
	}

	start := 0
	if s.count >= len(s.samples) {
		start = s.head
	}

	var sb strings.Builder
	sb.Grow(width * 3) // block characters are 3 bytes in UTF-8

	written := 0
	for i := skip; i < n && written < width; i++ {
		idx := (start + i) % len(s.samples)
		sb.WriteRune(levelChar(s.samples[idx], max))
		written++
	}
	for written < width {
		sb.WriteRune(' ')
		written++
	}

	return sb.String()
}

// levelChar maps a value to one of eight block heights.
func levelChar(value, max float64) rune {
	idx := int(value / max * float64(len(sparklineChars)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sparklineChars) {
		idx = len(sparklineChars) - 1
	}
	return sparklineChars[idx]
}

// Clear resets the sparkline.
func (s *Sparkline) Clear() {
	for i := range s.samples {
		s.samples[i] = 0
	}
	s.head = 0
	s.count = 0
	s.max = 0
}

// Count returns the number of samples added.
func (s *Sparkline) Count() int {
	return s.count
}

// Max returns the maximum sample used for scaling.
func (s *Sparkline) Max() float64 {
	return s.max
}
