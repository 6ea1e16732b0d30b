package highlight

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// DefaultTheme is the style used when no theme is configured.
const DefaultTheme = "oceanic-next"

// OceanicNext is a dark theme with the oceanicNext palette.
var OceanicNext = styles.Register(chroma.MustNewStyle(DefaultTheme, chroma.StyleEntries{
	chroma.Background:          "#ffffff bg:#282c34",
	chroma.Text:                "#ffffff",
	chroma.Error:               "#fc929e",
	chroma.Comment:             "italic #999999",
	chroma.CommentPreproc:      "#c5a5c5",
	chroma.Keyword:             "#c5a5c5",
	chroma.KeywordConstant:     "#ff8b50",
	chroma.KeywordType:         "#FAC863",
	chroma.Name:                "#ffffff",
	chroma.NameAttribute:       "#c5a5c5",
	chroma.NameBuiltin:         "#D8DEE9",
	chroma.NameClass:           "#FAC863",
	chroma.NameFunction:        "#79b6f2",
	chroma.NameTag:             "#fc929e",
	chroma.NameVariable:        "#d7deea",
	chroma.LiteralString:       "#8dc891",
	chroma.LiteralStringRegex:  "#5FB3B3",
	chroma.LiteralNumber:       "#5a9bcf",
	chroma.Operator:            "#d7deea",
	chroma.Punctuation:         "#5FB3B3",
	chroma.GenericDeleted:      "#fc929e",
	chroma.GenericInserted:     "#8dc891",
	chroma.GenericEmph:         "italic",
	chroma.GenericStrong:       "bold",
	chroma.GenericHeading:      "bold #79b6f2",
	chroma.GenericSubheading:   "#79b6f2",
	chroma.LiteralStringEscape: "#ff8b50",
}))
