// Package config decodes the loosely-typed configuration map the process
// is started with into a typed Spec, replacing the throwing
// HasKey/GetString/GetUint64-style accessors of the original
// implementation with one fallible decode.
package config

import (
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Spec is the recognized shape of an Output's configuration. Unknown keys
// in the source map are ignored; type mismatches fail Decode.
type Spec struct {
	OutputFormat  string        `mapstructure:"output_format"`
	OutputSocket  string        `mapstructure:"output_socket"`
	EnableAckMode bool          `mapstructure:"enable_ack_mode"`
	AckQueueSize  int           `mapstructure:"ack_queue_size"`
	AckTimeout    time.Duration `mapstructure:"ack_timeout"`
}

// Decode parses raw (typically sourced from JSON/YAML already unmarshaled
// into map[string]any) into a Spec. ack_timeout is accepted as a bare
// integer number of milliseconds, matching the original config format.
func Decode(raw map[string]any) (Spec, error) {
	var spec Spec
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &spec,
		WeaklyTypedInput: true,
		DecodeHook:       millisToDuration,
	})
	if err != nil {
		return Spec{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// millisToDuration interprets a bare number destined for a time.Duration
// field as milliseconds, so config files write "ack_timeout": 5000 to
// mean 5 seconds rather than 5 microseconds.
func millisToDuration(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case time.Duration:
		return v, nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v) * time.Millisecond, nil
	default:
		return data, nil
	}
}
