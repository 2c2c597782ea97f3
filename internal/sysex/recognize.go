package sysex

// FormatID names one message shape, for example "kawai/single".
type FormatID string

// Match is a fixed header byte: (msg[Pos] & Mask) must equal Value. A zero
// Mask means all bits are compared.
type Match struct {
	Pos   int
	Value byte
	Mask  byte
}

func (m Match) ok(msg []byte) bool {
	mask := m.Mask
	if mask == 0 {
		mask = 0xFF
	}
	return msg[m.Pos]&mask == m.Value&mask
}

// Shape is a fixed-length message layout.
type Shape struct {
	ID     FormatID
	Length int
	Header []Match
}

// Matches reports whether msg has exactly the shape's length and header.
func (s Shape) Matches(msg []byte) bool {
	if len(msg) != s.Length || len(msg) < 2 {
		return false
	}
	if msg[0] != Start || msg[len(msg)-1] != End {
		return false
	}
	for _, m := range s.Header {
		if m.Pos >= len(msg) || !m.ok(msg) {
			return false
		}
	}
	return true
}

// Header builds the Match list for consecutive bytes starting at pos 1.
func Header(values ...byte) []Match {
	out := make([]Match, len(values))
	for i, v := range values {
		out[i] = Match{Pos: i + 1, Value: v}
	}
	return out
}

// Recognizer checks shapes in order; the first match wins.
type Recognizer struct {
	shapes []Shape
}

func NewRecognizer(shapes ...Shape) *Recognizer {
	return &Recognizer{shapes: append([]Shape(nil), shapes...)}
}

func (r *Recognizer) Add(shapes ...Shape) {
	r.shapes = append(r.shapes, shapes...)
}

func (r *Recognizer) Shapes() []Shape {
	return append([]Shape(nil), r.shapes...)
}

func (r *Recognizer) Recognize(msg []byte) (FormatID, bool) {
	for _, s := range r.shapes {
		if s.Matches(msg) {
			return s.ID, true
		}
	}
	return "", false
}
