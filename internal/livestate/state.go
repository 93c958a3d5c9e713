// Package livestate holds the process-wide device state and pushes every
// change to connected observers.
package livestate

import (
	"bytes"
	"encoding/json"
	"sync"
)

// DeviceState is the current sensor and actuator status shown to observers.
type DeviceState struct {
	Temperature      float64 `json:"temperature"`
	Rain             bool    `json:"rain"`
	Soil             string  `json:"soil"`
	Wind             float64 `json:"wind"`
	Humidity         float64 `json:"humidity"`
	RainProb         float64 `json:"rainProb"`
	Forecast         string  `json:"forecast"`
	Realtime         bool    `json:"realtime"`
	PumpOn           bool    `json:"pumpOn"`
	MotorOn          bool    `json:"motorOn"`
	PumpAdvice       string  `json:"pumpAdvice"`
	ProtectionAdvice string  `json:"protectionAdvice"`
}

// DefaultState is the state a process starts with.
func DefaultState() DeviceState {
	return DeviceState{
		Temperature: 24,
		Soil:        "جيدة",
		Wind:        10,
		Humidity:    65,
		RainProb:    10,
		Forecast:    "غائم جزئياً",
	}
}

// DryHumidity is the humidity percentage below which irrigation is advised.
const DryHumidity = 40

const (
	AdviceRainStop    = "المطر يهطل. توقف."
	AdviceIrrigate    = "اسقي إذا كانت التربة جافة."
	AdviceEnoughMoist = "رطوبة كافية."

	ProtectHeavyRain = "غطي الطماطم بالأغطية وتفقدي المصارف."
	ProtectWind      = "قوي دعامات الطماطم واحمِي الشتلات الصغيرة."
	ProtectHeat      = "اسقي في المساء."
	ProtectCold      = "احمي الطماطم من البرد."
	ProtectStable    = "الأحوال مستقرة."
)

type fieldSetter func(s *DeviceState, raw json.RawMessage) (any, bool)

var jsonNull = []byte("null")

// typedField accepts a raw value only when it decodes into T. JSON null is
// rejected rather than read as the zero value.
func typedField[T any](ptr func(*DeviceState) *T) fieldSetter {
	return func(s *DeviceState, raw json.RawMessage) (any, bool) {
		if bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
			return nil, false
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, false
		}
		*ptr(s) = v
		return v, true
	}
}

// fields is the fixed set of keys accepted from external updates.
var fields = map[string]fieldSetter{
	"temperature":      typedField(func(s *DeviceState) *float64 { return &s.Temperature }),
	"rain":             typedField(func(s *DeviceState) *bool { return &s.Rain }),
	"soil":             typedField(func(s *DeviceState) *string { return &s.Soil }),
	"wind":             typedField(func(s *DeviceState) *float64 { return &s.Wind }),
	"humidity":         typedField(func(s *DeviceState) *float64 { return &s.Humidity }),
	"rainProb":         typedField(func(s *DeviceState) *float64 { return &s.RainProb }),
	"forecast":         typedField(func(s *DeviceState) *string { return &s.Forecast }),
	"realtime":         typedField(func(s *DeviceState) *bool { return &s.Realtime }),
	"pumpOn":           typedField(func(s *DeviceState) *bool { return &s.PumpOn }),
	"motorOn":          typedField(func(s *DeviceState) *bool { return &s.MotorOn }),
	"pumpAdvice":       typedField(func(s *DeviceState) *string { return &s.PumpAdvice }),
	"protectionAdvice": typedField(func(s *DeviceState) *string { return &s.ProtectionAdvice }),
}

// derivedTriggers are the keys whose acceptance recomputes the advice fields.
var derivedTriggers = []string{"humidity", "realtime", "wind", "temperature"}

// Store is the single live DeviceState. Apply and Get are mutually atomic.
type Store struct {
	mu    sync.RWMutex
	state DeviceState
}

func NewStore() *Store {
	return &Store{state: DefaultState()}
}

// Get returns a snapshot copy of the state.
func (s *Store) Get() DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Apply overwrites every known field present in partial and returns the
// accepted fields with their decoded values. Unknown keys and values of the
// wrong JSON type are dropped.
func (s *Store) Apply(partial map[string]json.RawMessage) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	accepted := make(map[string]any, len(partial))
	next := s.state
	for key, raw := range partial {
		set, ok := fields[key]
		if !ok {
			continue
		}
		if v, ok := set(&next, raw); ok {
			accepted[key] = v
		}
	}

	for _, key := range derivedTriggers {
		if _, ok := accepted[key]; ok {
			recompute(&next)
			break
		}
	}

	s.state = next
	return accepted
}

func recompute(s *DeviceState) {
	switch {
	case s.Realtime:
		s.PumpAdvice = AdviceRainStop
	case s.Humidity < DryHumidity:
		s.PumpAdvice = AdviceIrrigate
	default:
		s.PumpAdvice = AdviceEnoughMoist
	}

	switch {
	case s.Realtime:
		s.ProtectionAdvice = ProtectHeavyRain
	case s.Wind > 40:
		s.ProtectionAdvice = ProtectWind
	case s.Temperature > 35:
		s.ProtectionAdvice = ProtectHeat
	case s.Temperature < 10:
		s.ProtectionAdvice = ProtectCold
	default:
		s.ProtectionAdvice = ProtectStable
	}
}

// Partial encodes Go values into an update suitable for Apply.
func Partial(values map[string]any) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = raw
	}
	return out, nil
}
