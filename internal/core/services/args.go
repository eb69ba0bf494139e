package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Args are positional host arguments as decoded from JSON or YAML.
type Args []any

func (a Args) at(i int) (any, error) {
	if i >= len(a) {
		return nil, fmt.Errorf("%w: missing argument %d", ErrBadArgument, i)
	}
	return a[i], nil
}

// String returns argument i as a string.
func (a Args) String(i int) (string, error) {
	v, err := a.at(i)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: argument %d is %T, want string", ErrBadArgument, i, v)
	}
	return s, nil
}

// Int returns argument i as an integer. Floats must be whole.
func (a Args) Int(i int) (int64, error) {
	v, err := a.at(i)
	if err != nil {
		return 0, err
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("%w: argument %d: %v", ErrBadArgument, i, err)
	}
	return n, nil
}

// Float returns argument i as a float.
func (a Args) Float(i int) (float64, error) {
	v, err := a.at(i)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: argument %d: %v", ErrBadArgument, i, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: argument %d is %T, want number", ErrBadArgument, i, v)
	}
}

// Bool returns argument i as a bool.
func (a Args) Bool(i int) (bool, error) {
	v, err := a.at(i)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: argument %d is %T, want bool", ErrBadArgument, i, v)
	}
	return b, nil
}

// Strings returns argument i as a string slice.
func (a Args) Strings(i int) ([]string, error) {
	v, err := a.at(i)
	if err != nil {
		return nil, err
	}
	switch list := v.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return list, nil
	case []any:
		out := make([]string, len(list))
		for j, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: argument %d[%d] is %T, want string", ErrBadArgument, i, j, item)
			}
			out[j] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: argument %d is %T, want string list", ErrBadArgument, i, v)
	}
}

// Ints returns argument i as an integer slice.
func (a Args) Ints(i int) ([]int, error) {
	v, err := a.at(i)
	if err != nil {
		return nil, err
	}
	switch list := v.(type) {
	case nil:
		return []int{}, nil
	case []int:
		return list, nil
	case []any:
		out := make([]int, len(list))
		for j, item := range list {
			n, err := toInt(item)
			if err != nil {
				return nil, fmt.Errorf("%w: argument %d[%d]: %v", ErrBadArgument, i, j, err)
			}
			out[j] = int(n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: argument %d is %T, want integer list", ErrBadArgument, i, v)
	}
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case json.Number:
		return strconv.ParseInt(n.String(), 10, 64)
	default:
		return 0, fmt.Errorf("%T is not a number", v)
	}
}
