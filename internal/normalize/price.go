package normalize

import (
	"fmt"
	"strings"

	"sjsage522/orbscreener/helpers"

	"github.com/shopspring/decimal"
)

// PriceCell is a successfully parsed compound price cell
type PriceCell struct {
	Price            decimal.Decimal
	AbsoluteChange   decimal.Decimal
	PercentageChange decimal.Decimal
	// ChangeText holds every line after the price, joined with commas
	ChangeText string
}

// PriceParseError reports why a compound price cell could not be parsed
type PriceParseError struct {
	Text   string
	Reason string
	Err    error
}

func (e *PriceParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("price cell %q: %s: %v", e.Text, e.Reason, e.Err)
	}
	return fmt.Sprintf("price cell %q: %s", e.Text, e.Reason)
}

func (e *PriceParseError) Unwrap() error {
	return e.Err
}

// ParsePriceCell parses "123.45\n+2.10 (+1.73%)": the price on the first line,
// then an absolute change and a parenthesized percentage change.
// Failures are always *PriceParseError.
func ParsePriceCell(text string) (PriceCell, error) {
	lines := helpers.Lines(text)
	if len(lines) == 0 {
		return PriceCell{}, &PriceParseError{Text: text, Reason: "empty cell"}
	}
	if len(lines) < 2 {
		return PriceCell{}, &PriceParseError{Text: text, Reason: "missing change line"}
	}

	price, err := decimal.NewFromString(helpers.CleanNumber(lines[0]))
	if err != nil {
		return PriceCell{}, &PriceParseError{Text: text, Reason: "price", Err: err}
	}

	tokens := strings.Fields(lines[1])
	if len(tokens) < 2 {
		return PriceCell{}, &PriceParseError{Text: text, Reason: "change line needs absolute and percentage change"}
	}

	abs, err := decimal.NewFromString(helpers.CleanNumber(tokens[0]))
	if err != nil {
		return PriceCell{}, &PriceParseError{Text: text, Reason: "absolute change", Err: err}
	}

	pctToken := strings.Trim(tokens[1], "()")
	pctToken = strings.TrimSuffix(pctToken, "%")
	pct, err := decimal.NewFromString(helpers.CleanNumber(pctToken))
	if err != nil {
		return PriceCell{}, &PriceParseError{Text: text, Reason: "percentage change", Err: err}
	}

	return PriceCell{
		Price:            price,
		AbsoluteChange:   abs,
		PercentageChange: pct,
		ChangeText:       strings.Join(lines[1:], ","),
	}, nil
}

// parseOptionalDecimal returns a null decimal for blank or unparsable text
func parseOptionalDecimal(text string) decimal.NullDecimal {
	lines := helpers.Lines(text)
	if len(lines) == 0 {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(helpers.CleanNumber(lines[0]))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
