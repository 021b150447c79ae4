package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"
)

var durationUnits = map[rune]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'y': 365 * 24 * time.Hour,
}

// ParseDuration parses compact durations such as "5m", "1d12h" or "90".
// Each token is digits (optionally with a dot) followed by a unit letter;
// a token without a unit counts as seconds. Tokens add up.
func ParseDuration(s string) (time.Duration, error) {
	var (
		total time.Duration
		value strings.Builder
	)

	tooLong := fmt.Errorf("duration out of range: %q", s)
	add := func(d time.Duration) error {
		if d > math.MaxInt64-total {
			return tooLong
		}
		total += d
		return nil
	}
	flush := func(unit time.Duration) error {
		raw := value.String()
		value.Reset()
		if !strings.Contains(raw, ".") {
			n, err := strconv.ParseInt(raw, 10, 64)
			if errors.Is(err, strconv.ErrRange) {
				return tooLong
			}
			if err != nil {
				return fmt.Errorf("invalid duration: %q", s)
			}
			if n > math.MaxInt64/int64(unit) {
				return tooLong
			}
			return add(time.Duration(n) * unit)
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid duration: %q", s)
		}
		// float64(MaxInt64) rounds up to 2^63, which is already out of range.
		if v := math.Round(f * float64(unit)); v < float64(math.MaxInt64) {
			return add(time.Duration(v))
		}
		return tooLong
	}

	for _, c := range s + " " {
		switch unit, isUnit := durationUnits[c]; {
		case unicode.IsDigit(c) || c == '.':
			value.WriteRune(c)
		case isUnit && value.Len() > 0:
			if err := flush(unit); err != nil {
				return 0, err
			}
		case unicode.IsSpace(c):
			if value.Len() > 0 {
				if err := flush(time.Second); err != nil {
					return 0, err
				}
			}
		default:
			return 0, fmt.Errorf("invalid duration: %q", s)
		}
	}
	return total, nil
}

// FormatDuration renders d in the compact grammar accepted by ParseDuration.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	var b strings.Builder
	if d < 0 {
		// The grammar has no sign; negative values only show up in logs.
		b.WriteByte('-')
		d = -d
	}
	for _, u := range []struct {
		letter byte
		unit   time.Duration
	}{{'d', 24 * time.Hour}, {'h', time.Hour}, {'m', time.Minute}} {
		if n := d / u.unit; n > 0 {
			b.WriteString(strconv.FormatInt(int64(n), 10))
			b.WriteByte(u.letter)
			d -= n * u.unit
		}
	}
	if d > 0 {
		if d%time.Second == 0 {
			b.WriteString(strconv.FormatInt(int64(d/time.Second), 10))
		} else {
			b.WriteString(strconv.FormatFloat(d.Seconds(), 'f', -1, 64))
		}
		b.WriteByte('s')
	}
	return b.String()
}

// Duration is a time.Duration that reads and writes the compact grammar in
// YAML files and environment variables.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return FormatDuration(time.Duration(d)) }

// UnmarshalYAML accepts strings ("1d") and bare numbers of seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	parsed, err := ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	parsed, err := ParseDuration(value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}
