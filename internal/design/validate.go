package design

import (
	"strings"

	"github.com/google/uuid"
)

const (
	defaultTextColor  = "#000000"
	defaultFillColor  = "#CCCCCC"
	defaultStroke     = "#000000"
	defaultShadow     = "#000000"
	defaultFontFamily = "Inter"
	defaultFontSize   = 16
	defaultFontWeight = 400
	minFontSize       = 1
	maxFontSize       = 200
)

// ValidateDocument turns a decoded model response into a Document. It
// never fails: missing or malformed fields get defaults and out-of-range
// values are clamped. raw is not modified.
func ValidateDocument(raw any) Document {
	m := asMap(raw)
	doc := Document{
		Width:           clamp(numberOr(m["width"], DefaultDocSize), MinSize, MaxSize),
		Height:          clamp(numberOr(m["height"], DefaultDocSize), MinSize, MaxSize),
		BackgroundColor: NormalizeColor(first(m, "backgroundColor", "background"), DefaultBGColor),
	}
	doc.Elements = ValidateElements(m["elements"], doc.Width, doc.Height, false)
	return doc
}

// ValidateElements validates a list of raw elements placed inside a parent
// of the given size. Children of an auto layout parent lose x/y unless
// they are positioned absolutely. Entries that are not objects are
// dropped. The result is never nil.
func ValidateElements(raw any, boundW, boundH float64, parentAutoFlow bool) []Element {
	list, _ := raw.([]any)
	out := make([]Element, 0, len(list))
	for _, item := range list {
		m := asMap(item)
		if m == nil {
			continue
		}
		out = append(out, validateElement(m, boundW, boundH, parentAutoFlow))
	}
	return out
}

func validateElement(m map[string]any, boundW, boundH float64, parentAutoFlow bool) Element {
	el := Element{
		ID:                asString(m["id"]),
		Type:              strings.ReplaceAll(upper(m["type"]), "-", "_"),
		Name:              asString(m["name"]),
		LayoutPositioning: upper(m["layoutPositioning"]),
		ImageDescription:  asString(m["imageDescription"]),
		IconName:          asString(m["iconName"]),
	}
	if el.ID == "" {
		el.ID = uuid.NewString()
	}
	if el.Type == "" {
		el.Type = TypeFrame
	}
	if el.Name == "" {
		el.Name = nameFor(el.Type)
	}

	el.Width = clampDimension(m["width"], boundW)
	el.Height = clampDimension(m["height"], boundH)
	if !parentAutoFlow || el.LayoutPositioning == PositionAbsolute {
		el.X = optNumber(m["x"])
		el.Y = optNumber(m["y"])
	}

	if r, ok := asNumber(m["cornerRadius"]); ok {
		r = clamp(r, 0, minFloat(el.Width, el.Height)/2)
		el.CornerRadius = &r
	}
	if o, ok := asNumber(m["opacity"]); ok {
		o = clamp(o, 0, 1)
		el.Opacity = &o
	}

	fills := validateFills(first(m, "fills", "fill", "backgroundColor"))
	if el.Type == TypeText {
		el.Text = validateText(m, fills)
	} else {
		el.Fills = fills
	}
	el.Stroke = validateStroke(m)
	el.Effects = validateEffects(m["effects"])
	el.AutoLayout = validateAutoLayout(m)

	el.Children = ValidateElements(m["children"], el.Width, el.Height, el.AutoFlow())
	return el
}

// clampDimension keeps a size within (0, bound]. Non-numeric sizes default
// to DefaultElemSize, itself limited by the bound.
func clampDimension(v any, bound float64) float64 {
	if bound < MinSize {
		bound = MinSize
	}
	f, ok := asNumber(v)
	if !ok {
		f = DefaultElemSize
	}
	if f < MinSize {
		f = MinSize
	}
	return minFloat(f, bound)
}

func nameFor(typ string) string {
	if typ == "" {
		return "Layer"
	}
	parts := strings.Split(strings.ToLower(typ), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

func validateFills(raw any) []Paint {
	var out []Paint
	for _, item := range asList(raw) {
		if s, ok := item.(string); ok {
			out = append(out, Paint{Type: "SOLID", Color: NormalizeColor(s, defaultFillColor)})
			continue
		}
		m := asMap(item)
		if m == nil {
			continue
		}
		p := Paint{Type: oneOf(m["type"], "SOLID", "SOLID", "GRADIENT_LINEAR", "GRADIENT_RADIAL", "IMAGE")}
		if o, ok := asNumber(m["opacity"]); ok {
			o = clamp(o, 0, 1)
			p.Opacity = &o
		}
		switch p.Type {
		case "SOLID":
			p.Color = NormalizeColor(m["color"], defaultFillColor)
		case "GRADIENT_LINEAR", "GRADIENT_RADIAL":
			for _, s := range asList(m["gradientStops"]) {
				sm := asMap(s)
				if sm == nil {
					continue
				}
				p.GradientStops = append(p.GradientStops, GradientStop{
					Position: clamp(numberOr(sm["position"], 0), 0, 1),
					Color:    NormalizeColor(sm["color"], defaultFillColor),
				})
			}
		}
		out = append(out, p)
	}
	return out
}

func validateStroke(m map[string]any) *Stroke {
	raw := first(m, "stroke", "strokes")
	if raw == nil {
		return nil
	}
	if list, ok := raw.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		raw = list[0]
	}
	s := &Stroke{Weight: clamp(numberOr(m["strokeWeight"], 1), 0, 100)}
	if sm := asMap(raw); sm != nil {
		s.Color = NormalizeColor(sm["color"], defaultStroke)
		s.Weight = clamp(numberOr(sm["weight"], s.Weight), 0, 100)
	} else {
		s.Color = NormalizeColor(raw, defaultStroke)
	}
	return s
}

func validateEffects(raw any) []Effect {
	var out []Effect
	for _, item := range asList(raw) {
		m := asMap(item)
		if m == nil {
			continue
		}
		e := Effect{
			Type:   oneOf(m["type"], "DROP_SHADOW", "DROP_SHADOW", "INNER_SHADOW", "LAYER_BLUR", "BACKGROUND_BLUR"),
			Radius: clamp(numberOr(m["radius"], 4), 0, 1000),
			Spread: numberOr(m["spread"], 0),
		}
		off := asMap(m["offset"])
		e.OffsetX = numberOr(first(off, "x"), numberOr(m["offsetX"], 0))
		e.OffsetY = numberOr(first(off, "y"), numberOr(m["offsetY"], 0))
		if strings.HasSuffix(e.Type, "SHADOW") {
			e.Color = NormalizeColor(m["color"], defaultShadow)
		}
		out = append(out, e)
	}
	return out
}

// validateText builds the payload of a TEXT element. Fills are never kept
// on text; the first solid fill seeds the text color when none is given.
func validateText(m map[string]any, fills []Paint) *Text {
	tm := asMap(m["text"])
	if tm == nil {
		tm = m
	}
	fallback := defaultTextColor
	for _, f := range fills {
		if f.Type == "SOLID" && f.Color != "" {
			fallback = f.Color
			break
		}
	}
	t := &Text{
		Content:    asString(first(tm, "content", "characters", "text")),
		FontSize:   clamp(numberOr(tm["fontSize"], defaultFontSize), minFontSize, maxFontSize),
		FontWeight: fontWeight(tm["fontWeight"]),
		Color:      NormalizeColor(tm["color"], fallback),
		FontFamily: asString(tm["fontFamily"]),
		TextAlign:  oneOf(first(tm, "textAlign", "textAlignHorizontal"), "LEFT", "LEFT", "CENTER", "RIGHT", "JUSTIFIED"),
	}
	if t.Content == "" {
		t.Content = asString(m["content"])
	}
	if t.FontFamily == "" {
		t.FontFamily = defaultFontFamily
	}
	if lh, ok := asNumber(tm["lineHeight"]); ok && lh > 0 {
		t.LineHeight = &lh
	}
	t.LetterSpacing = optNumber(tm["letterSpacing"])
	return t
}

func fontWeight(v any) int {
	switch strings.ToLower(asString(v)) {
	case "thin":
		return 100
	case "light":
		return 300
	case "regular", "normal":
		return 400
	case "medium":
		return 500
	case "semibold":
		return 600
	case "bold":
		return 700
	case "black":
		return 900
	}
	f, ok := asNumber(v)
	if !ok {
		return defaultFontWeight
	}
	w := int(clamp(f, 100, 900))
	return w - w%100
}

// validateAutoLayout reads either a nested autoLayout object or flat
// layoutMode style fields. It returns nil when neither is present.
func validateAutoLayout(m map[string]any) *AutoLayout {
	am := asMap(m["autoLayout"])
	if am == nil {
		if _, ok := m["layoutMode"]; !ok {
			return nil
		}
		am = m
	}
	pad := numberOr(am["padding"], 0)
	return &AutoLayout{
		Mode:              oneOf(first(am, "mode", "layoutMode"), LayoutNone, LayoutNone, LayoutHorizontal, LayoutVertical),
		Spacing:           clamp(numberOr(first(am, "spacing", "itemSpacing"), 0), 0, MaxSize),
		PaddingTop:        clamp(numberOr(am["paddingTop"], pad), 0, MaxSize),
		PaddingRight:      clamp(numberOr(am["paddingRight"], pad), 0, MaxSize),
		PaddingBottom:     clamp(numberOr(am["paddingBottom"], pad), 0, MaxSize),
		PaddingLeft:       clamp(numberOr(am["paddingLeft"], pad), 0, MaxSize),
		PrimaryAxisAlign:  oneOf(first(am, "primaryAxisAlign", "primaryAxisAlignItems"), "MIN", "MIN", "CENTER", "MAX", "SPACE_BETWEEN"),
		CounterAxisAlign:  oneOf(first(am, "counterAxisAlign", "counterAxisAlignItems"), "MIN", "MIN", "CENTER", "MAX", "BASELINE"),
		PrimaryAxisSizing: oneOf(first(am, "primaryAxisSizing", "primaryAxisSizingMode"), "FIXED", "FIXED", "AUTO"),
		CounterAxisSizing: oneOf(first(am, "counterAxisSizing", "counterAxisSizingMode"), "FIXED", "FIXED", "AUTO"),
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
