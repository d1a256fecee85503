package transit

import (
	"fmt"
	"reflect"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

const DefaultDayTypeExpr = `weekday == 0 ? "sunday" : "weekday"`

// DayClassifier maps a calendar day to a schedule day type using a
// configurable expression. The expression sees weekday (0 = Sunday), day,
// month, year and date ("2006-01-02").
type DayClassifier struct {
	source  string
	program *vm.Program
}

type dayEnv struct {
	Weekday int    `expr:"weekday"`
	Day     int    `expr:"day"`
	Month   int    `expr:"month"`
	Year    int    `expr:"year"`
	Date    string `expr:"date"`
}

func NewDayClassifier(source string) (*DayClassifier, error) {
	if source == "" {
		source = DefaultDayTypeExpr
	}
	program, err := expr.Compile(source, expr.Env(dayEnv{}), expr.AsKind(reflect.String))
	if err != nil {
		return nil, fmt.Errorf("compile day type expression: %w", err)
	}
	return &DayClassifier{source: source, program: program}, nil
}

func (c *DayClassifier) String() string { return c.source }

func (c *DayClassifier) Classify(t time.Time) (DayType, error) {
	env := dayEnv{
		Weekday: int(t.Weekday()),
		Day:     t.Day(),
		Month:   int(t.Month()),
		Year:    t.Year(),
		Date:    t.Format("2006-01-02"),
	}
	out, err := expr.Run(c.program, env)
	if err != nil {
		return "", fmt.Errorf("classify %s: %w", env.Date, err)
	}
	s, _ := out.(string)
	return DayType(s), nil
}
