// Package design holds the render-ready design tree and the validator that
// turns loosely shaped model output into it.
package design

// Document bounds.
const (
	MinSize         = 1
	MaxSize         = 4096
	DefaultDocSize  = 1080
	DefaultBGColor  = "#FFFFFF"
	DefaultElemSize = 100
)

// Element types the renderer knows about. Unknown types are kept as given.
const (
	TypeFrame     = "FRAME"
	TypeGroup     = "GROUP"
	TypeText      = "TEXT"
	TypeRectangle = "RECTANGLE"
	TypeEllipse   = "ELLIPSE"
	TypeLine      = "LINE"
	TypeImage     = "IMAGE"
	TypeIcon      = "ICON"
	TypeVector    = "VECTOR"
)

// Auto layout modes.
const (
	LayoutNone       = "NONE"
	LayoutHorizontal = "HORIZONTAL"
	LayoutVertical   = "VERTICAL"
)

// PositionAbsolute lets a child of an auto layout frame keep its own x/y.
const PositionAbsolute = "ABSOLUTE"

// Document is the validated result of one analysis.
type Document struct {
	Width           float64   `json:"width"`
	Height          float64   `json:"height"`
	BackgroundColor string    `json:"backgroundColor"`
	Elements        []Element `json:"elements"`
}

// Element is one node of the tree. Children is never nil.
type Element struct {
	ID                string      `json:"id"`
	Type              string      `json:"type"`
	Name              string      `json:"name"`
	X                 *float64    `json:"x,omitempty"`
	Y                 *float64    `json:"y,omitempty"`
	Width             float64     `json:"width"`
	Height            float64     `json:"height"`
	Fills             []Paint     `json:"fills,omitempty"`
	Stroke            *Stroke     `json:"stroke,omitempty"`
	Effects           []Effect    `json:"effects,omitempty"`
	CornerRadius      *float64    `json:"cornerRadius,omitempty"`
	Opacity           *float64    `json:"opacity,omitempty"`
	Text              *Text       `json:"text,omitempty"`
	AutoLayout        *AutoLayout `json:"autoLayout,omitempty"`
	LayoutPositioning string      `json:"layoutPositioning,omitempty"`
	// Asset hints for the image and icon pipelines.
	ImageDescription string    `json:"imageDescription,omitempty"`
	IconName         string    `json:"iconName,omitempty"`
	Children         []Element `json:"children"`
}

// AutoFlow reports whether the element lays out its children itself.
func (e Element) AutoFlow() bool {
	return e.AutoLayout != nil && (e.AutoLayout.Mode == LayoutHorizontal || e.AutoLayout.Mode == LayoutVertical)
}

// Paint is one fill layer.
type Paint struct {
	Type          string         `json:"type"`
	Color         string         `json:"color,omitempty"`
	Opacity       *float64       `json:"opacity,omitempty"`
	GradientStops []GradientStop `json:"gradientStops,omitempty"`
}

type GradientStop struct {
	Position float64 `json:"position"`
	Color    string  `json:"color"`
}

type Stroke struct {
	Color  string  `json:"color"`
	Weight float64 `json:"weight"`
}

// Effect is a shadow or blur.
type Effect struct {
	Type    string  `json:"type"`
	Color   string  `json:"color,omitempty"`
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
	Radius  float64 `json:"radius"`
	Spread  float64 `json:"spread,omitempty"`
}

// Text is the payload of a TEXT element.
type Text struct {
	Content       string   `json:"content"`
	FontSize      float64  `json:"fontSize"`
	FontWeight    int      `json:"fontWeight"`
	Color         string   `json:"color"`
	FontFamily    string   `json:"fontFamily"`
	TextAlign     string   `json:"textAlign"`
	LineHeight    *float64 `json:"lineHeight,omitempty"`
	LetterSpacing *float64 `json:"letterSpacing,omitempty"`
}

type AutoLayout struct {
	Mode              string  `json:"mode"`
	Spacing           float64 `json:"spacing"`
	PaddingTop        float64 `json:"paddingTop"`
	PaddingRight      float64 `json:"paddingRight"`
	PaddingBottom     float64 `json:"paddingBottom"`
	PaddingLeft       float64 `json:"paddingLeft"`
	PrimaryAxisAlign  string  `json:"primaryAxisAlign"`
	CounterAxisAlign  string  `json:"counterAxisAlign"`
	PrimaryAxisSizing string  `json:"primaryAxisSizing"`
	CounterAxisSizing string  `json:"counterAxisSizing"`
}
