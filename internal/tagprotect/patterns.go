package tagprotect

// Priorities of the built-in registry, highest first.
const (
	PriorityVariable = 100
	PriorityRichText = 90
	PriorityGameLink = 80
	PriorityFormat   = 70
	PriorityMarkup   = 60
	PriorityEnclosed = 50
	PriorityLiteral  = 40
	PriorityFallback = 30
)

var defaultPatterns = []Pattern{
	// game-specific markup
	{Name: "brace_variables", Expr: `\{\$.*?\}`, Priority: PriorityVariable},
	{Name: "unity_rich_text", Expr: `</?(?:b|i|size|color|material|quad|sprite|link|nobr|page|indent|align|mark|mspace|width|style|gradient|cspace|font|voffset|line-height|pos|space|noparse|uppercase|lowercase|smallcaps|sup|sub)(?:=[^>]*)?>`, Priority: PriorityRichText},
	{Name: "item_links", Expr: `\[item:.*?\]`, Priority: PriorityGameLink},
	{Name: "npc_links", Expr: `\[npc:.*?\]`, Priority: PriorityGameLink},
	{Name: "quest_links", Expr: `\[quest:.*?\]`, Priority: PriorityGameLink},
	{Name: "achievement_links", Expr: `\[achievement:.*?\]`, Priority: PriorityGameLink},
	{Name: "game_icons", Expr: `\[icon:.*?\]`, Priority: PriorityGameLink},
	{Name: "game_commands", Expr: `/[a-zA-Z]+`, Priority: PriorityGameLink},

	// format variables
	{Name: "percentage_vars", Expr: `%%[^%]*%%`, Priority: PriorityFormat},
	{Name: "format_specifiers", Expr: `%[\d.]*[sdfeEgGxXoc]`, Priority: PriorityFormat},
	{Name: "color_codes", Expr: `#[0-9a-fA-F]{6}`, Priority: PriorityFormat},

	// generic enclosures
	{Name: "html_tags", Expr: `<[^>]+>`, Priority: PriorityMarkup},
	{Name: "brackets", Expr: `\[.*?\]`, Priority: PriorityEnclosed},
	{Name: "parentheses", Expr: `\(.*?\)`, Priority: PriorityEnclosed},
	{Name: "quotes", Expr: `['"].*?['"]`, Priority: PriorityEnclosed},

	// literals
	{Name: "currency_symbols", Expr: `[¥$€£₽₩₴₸₺₼₾₿]`, Priority: PriorityLiteral},
	{Name: "number_format", Expr: `\d+[,.]\d+`, Priority: PriorityLiteral},
	{Name: "time_format", Expr: `\d{1,2}:\d{2}(?::\d{2})?`, Priority: PriorityLiteral},
	{Name: "date_format", Expr: `\d{4}-\d{2}-\d{2}`, Priority: PriorityLiteral},

	// stray punctuation nothing else claimed
	{Name: "special_chars", Expr: `[<>{}\[\]()%$#@!&*+=|\\/]`, Priority: PriorityFallback},
}

var descriptions = map[string]string{
	"brace_variables":   "Brace variables such as {$playerName}",
	"unity_rich_text":   "Unity rich-text tags such as <b>, <color=red>, <size=20>",
	"item_links":        "Item links such as [item:sword_01]",
	"npc_links":         "NPC links such as [npc:merchant_01]",
	"quest_links":       "Quest links such as [quest:main_01]",
	"achievement_links": "Achievement links such as [achievement:first_kill]",
	"game_icons":        "Icon tags such as [icon:item_sword]",
	"game_commands":     "Inline commands such as /command",
	"percentage_vars":   "Percent-delimited variables such as %%token%%",
	"format_specifiers": "printf-style specifiers such as %s, %d, %.2f",
	"color_codes":       "Hex color codes such as #FF0000",
	"html_tags":         "Any angle-bracket tag such as <tag>",
	"brackets":          "Bracketed text such as [text]",
	"parentheses":       "Parenthesized text such as (text)",
	"quotes":            "Quoted text such as 'text' or \"text\"",
	"currency_symbols":  "Currency symbols such as ¥, $, €, £",
	"number_format":     "Formatted numbers such as 1,234.56",
	"time_format":       "Times such as 12:34 or 12:34:56",
	"date_format":       "ISO dates such as 2024-01-01",
	"special_chars":     "Single special characters such as <, >, {, }, %, $, #",
}

// DefaultPatterns returns a copy of the built-in registry in evaluation order.
func DefaultPatterns() []Pattern {
	out := make([]Pattern, len(defaultPatterns))
	copy(out, defaultPatterns)
	return out
}

// Describe returns a human-readable description of a built-in pattern, or ""
// for unknown names.
func Describe(name string) string {
	return descriptions[name]
}
