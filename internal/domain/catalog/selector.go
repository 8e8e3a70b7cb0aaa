package catalog

// Selector names the variation a buyer picked. Either axis may be empty;
// matching only considers the axes that are set, which keeps the historic
// behavior where a color-only selection matches the first variant with
// that color regardless of size.
type Selector struct {
	Color string
	Size  string
}

// SelectorKind enumerates the four shapes a selector can take.
type SelectorKind int

const (
	SelectNone SelectorKind = iota
	SelectColor
	SelectSize
	SelectColorAndSize
)

func (s Selector) Kind() SelectorKind {
	switch {
	case s.Color == "" && s.Size == "":
		return SelectNone
	case s.Size == "":
		return SelectColor
	case s.Color == "":
		return SelectSize
	default:
		return SelectColorAndSize
	}
}

// IsZero reports whether no variation was selected, meaning the sale is
// against the aggregate stock only.
func (s Selector) IsZero() bool { return s.Kind() == SelectNone }

// Matches reports whether the variant satisfies every axis the selector
// specifies.
func (s Selector) Matches(v Variation) bool {
	switch s.Kind() {
	case SelectNone:
		return false
	case SelectColor:
		return v.Color == s.Color
	case SelectSize:
		return v.Size == s.Size
	default:
		return v.Color == s.Color && v.Size == s.Size
	}
}

func (s Selector) String() string {
	switch s.Kind() {
	case SelectNone:
		return "none"
	case SelectColor:
		return "color=" + s.Color
	case SelectSize:
		return "size=" + s.Size
	default:
		return "color=" + s.Color + " size=" + s.Size
	}
}
