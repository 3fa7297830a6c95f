package models

// Grade is a letter grade derived from a confidence score
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeBPlus Grade = "B+"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
)

// FactorScore is one factor's contribution to a confidence score
type FactorScore struct {
	Name      string  `json:"name"`
	MaxPoints float64 `json:"max_points"`
	Points    float64 `json:"points"`
}

// ConfidenceScore is the bounded composite score for a row
type ConfidenceScore struct {
	Profile string        `json:"profile"`
	Value   float64       `json:"value"` // 0..100
	Grade   Grade         `json:"grade"`
	Factors []FactorScore `json:"factors"`
}

// RowView is a row as the user currently sees it: interaction overrides
// applied, score and price attached. SourceMarket is the market the row
// was loaded under, before any selector change.
type RowView struct {
	Key          RowKey          `json:"key"`
	Row          StatRow         `json:"row"`
	SourceMarket string          `json:"source_market,omitempty"`
	Score        ConfidenceScore `json:"score"`
	Price        *int            `json:"price,omitempty"`
	KeyStat      StatFamily      `json:"key_stat"`
	Modified     bool            `json:"modified"`
	Phase        string          `json:"phase"`
	Error        string          `json:"error,omitempty"`
}

// LoadedMarket is the market the row belongs to for filtering. A row the
// user moved to another market stays under the market it was loaded with.
func (v RowView) LoadedMarket() string {
	if v.SourceMarket != "" {
		return v.SourceMarket
	}
	return v.Row.Market
}

// HasPrice reports whether a best-available price is known
func (v RowView) HasPrice() bool {
	return v.Price != nil
}

// Edge returns the primary conditional average minus the line
func (v RowView) Edge() float64 {
	return v.Row.Stats.Primary.Conditional - v.Row.Line
}

// ErrorResponse is the JSON error envelope
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
