package aggregation

import (
	"fmt"

	"github.com/fulldump/rowmodel/query"
	"github.com/fulldump/rowmodel/rownode"
)

const (
	Sum   = "sum"
	Min   = "min"
	Max   = "max"
	Count = "count"
	Avg   = "avg"
	First = "first"
	Last  = "last"
)

type Params struct {
	// Values of the direct children: leaf values or child group aggregates.
	Values []any
	Column string
	Node   *rownode.RowNode
}

type Func func(p Params) (any, error)

// AvgValue keeps the count next to the average so parent groups can combine
// child averages without losing weight.
type AvgValue struct {
	Count int64
	Value float64
}

func (a AvgValue) String() string {
	return fmt.Sprint(a.Value)
}

func (a AvgValue) Raw() any {
	return a.Value
}

// CountValue is combinable the same way: a parent adds child counts.
type CountValue struct {
	Value int64
}

func (c CountValue) String() string {
	return fmt.Sprint(c.Value)
}

func (c CountValue) Raw() any {
	return c.Value
}

var builtins = map[string]Func{
	Sum:   sumValues,
	Min:   minValue,
	Max:   maxValue,
	Count: countValues,
	Avg:   avgValues,
	First: firstValue,
	Last:  lastValue,
}

func Builtin(name string) (Func, bool) {
	f, ok := builtins[name]
	return f, ok
}

func BuiltinNames() []string {
	return []string{Sum, Min, Max, Count, Avg, First, Last}
}

func sumValues(p Params) (any, error) {
	var result *float64
	for _, v := range p.Values {
		f, ok := query.ToFloat(v)
		if !ok {
			continue
		}
		if result == nil {
			result = new(float64)
		}
		*result += f
	}
	if result == nil {
		return nil, nil
	}
	return *result, nil
}

func minValue(p Params) (any, error) {
	var result any
	for _, v := range p.Values {
		if v == nil {
			continue
		}
		if result == nil || query.Compare(v, result) < 0 {
			result = v
		}
	}
	return result, nil
}

func maxValue(p Params) (any, error) {
	var result any
	for _, v := range p.Values {
		if v == nil {
			continue
		}
		if result == nil || query.Compare(v, result) > 0 {
			result = v
		}
	}
	return result, nil
}

func countValues(p Params) (any, error) {
	result := CountValue{}
	for _, v := range p.Values {
		if c, ok := v.(CountValue); ok {
			result.Value += c.Value
			continue
		}
		result.Value++
	}
	return result, nil
}

func avgValues(p Params) (any, error) {
	var total float64
	var n int64
	for _, v := range p.Values {
		if a, ok := v.(AvgValue); ok {
			total += a.Value * float64(a.Count)
			n += a.Count
			continue
		}
		f, ok := query.ToFloat(v)
		if !ok {
			continue
		}
		total += f
		n++
	}
	if n == 0 {
		return nil, nil
	}
	return AvgValue{Count: n, Value: total / float64(n)}, nil
}

func firstValue(p Params) (any, error) {
	if len(p.Values) == 0 {
		return nil, nil
	}
	return p.Values[0], nil
}

func lastValue(p Params) (any, error) {
	if len(p.Values) == 0 {
		return nil, nil
	}
	return p.Values[len(p.Values)-1], nil
}
