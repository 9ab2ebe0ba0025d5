package plugins

import (
	"fmt"
	"math"
	"time"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/behaviour"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
)

// Register adds the built-in dynamic functions to r:
//
//	sysUpTime    hundredths of a second since the store started
//	dateAndTime  the current time as DateAndTime octets
//	counter      start + rate × elapsed seconds, wrapping past the type maximum
//	             back to its minimum
//	cycle        steps through params.values, one per params.period seconds
//	rowIndex     the row's index value at params.position (default 0)
func Register(r *behaviour.DynamicRegistry) error {
	for name, fn := range map[string]behaviour.DynamicFunc{
		"sysUpTime":   SysUpTime,
		"dateAndTime": DateAndTime,
		"counter":     Counter,
		"cycle":       Cycle,
		"rowIndex":    RowIndex,
	} {
		if err := r.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// SysUpTime returns TimeTicks since start, wrapping at 2^32.
func SysUpTime(c behaviour.DynamicCall) (any, error) {
	cs := c.Now.Sub(c.Started) / (10 * time.Millisecond)
	if cs < 0 {
		cs = 0
	}
	return int64(uint32(cs)), nil
}

// DateAndTime returns the current time.
func DateAndTime(c behaviour.DynamicCall) (any, error) {
	return EncodeDateAndTime(c.Now), nil
}

// Counter grows linearly with time. Params: start (default 0), rate per
// second (default 1).
func Counter(c behaviour.DynamicCall) (any, error) {
	start, err := number(c.Params, "start", 0)
	if err != nil {
		return nil, err
	}
	rate, err := number(c.Params, "rate", 1)
	if err != nil {
		return nil, err
	}
	elapsed := c.Now.Sub(c.Started).Seconds()
	v := start + rate*elapsed
	switch {
	case v < 0:
		v = 0
	case v >= 1<<63:
		v = math.Mod(v, 1<<63)
	}
	return wrap(int64(v), c.Type.Ranges()), nil
}

// wrap folds n into the span of ranges, restarting at the lowest minimum
// once the highest maximum is passed.
func wrap(n int64, ranges []mibtypes.Constraint) int64 {
	if len(ranges) == 0 {
		return n
	}
	lo, hi := ranges[0].Min, ranges[0].Max
	for _, r := range ranges[1:] {
		lo, hi = min(lo, r.Min), max(hi, r.Max)
	}
	if n < lo {
		return lo
	}
	span := uint64(hi) - uint64(lo) + 1
	off := uint64(n) - uint64(lo)
	if span != 0 {
		off %= span
	}
	return int64(uint64(lo) + off)
}

// Cycle returns params.values[i] where i advances every params.period
// seconds (default 1).
func Cycle(c behaviour.DynamicCall) (any, error) {
	values, ok := c.Params["values"].([]any)
	if !ok || len(values) == 0 {
		return nil, fmt.Errorf("plugins: cycle: params.values must be a non-empty list")
	}
	period, err := number(c.Params, "period", 1)
	if err != nil {
		return nil, err
	}
	if period <= 0 {
		return nil, fmt.Errorf("plugins: cycle: period must be positive")
	}
	step := int64(c.Now.Sub(c.Started).Seconds() / period)
	if step < 0 {
		step = 0
	}
	return values[step%int64(len(values))], nil
}

// RowIndex echoes one component of the row index.
func RowIndex(c behaviour.DynamicCall) (any, error) {
	pos, err := number(c.Params, "position", 0)
	if err != nil {
		return nil, err
	}
	i := int(pos)
	if i < 0 || i >= len(c.Index) {
		return nil, fmt.Errorf("plugins: rowIndex: position %d outside a %d-part index", i, len(c.Index))
	}
	return c.Index[i], nil
}

// number reads a numeric parameter as decoded from YAML.
func number(params map[string]any, key string, def float64) (float64, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch x := raw.(type) {
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float64:
		return x, nil
	}
	return 0, fmt.Errorf("plugins: param %s: %T is not a number", key, raw)
}
