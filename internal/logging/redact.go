package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/tribed/internal/config"
)

// maxPatternLength bounds redaction regexes as a basic ReDoS guard.
const maxPatternLength = 200

// Secret creates a field for a config.Secret that carries only the
// value's length, never the value.
func Secret(key string, val config.Secret) zap.Field {
	return RedactedString(key, val.Value())
}

// RedactedString creates a field with the value replaced by a redaction
// marker and its length.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// redactRules is the compiled redaction policy. Encoder clones share one
// instance; it is read-only after construction.
type redactRules struct {
	fields   map[string]bool
	patterns []*regexp.Regexp
}

func compileRules(cfg RedactionConfig) (*redactRules, error) {
	rules := &redactRules{fields: make(map[string]bool, len(cfg.Fields))}
	for _, f := range cfg.Fields {
		rules.fields[strings.ToLower(f)] = true
	}
	for _, p := range cfg.Patterns {
		if len(p) > maxPatternLength {
			return nil, fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLength, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		rules.patterns = append(rules.patterns, re)
	}
	return rules, nil
}

func (r *redactRules) matchKey(key string) bool {
	return r.fields[strings.ToLower(key)]
}

func (r *redactRules) matchValue(val string) bool {
	for _, re := range r.patterns {
		if re.MatchString(val) {
			return true
		}
	}
	return false
}

// RedactingEncoder wraps a zapcore.Encoder and replaces sensitive field
// values with redaction markers before they are written.
type RedactingEncoder struct {
	zapcore.Encoder
	rules *redactRules
}

// NewRedactingEncoder wraps base with the redaction rules from cfg. A
// disabled config yields a passthrough encoder. Returns an error if any
// pattern fails to compile.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	if !cfg.Enabled {
		return &RedactingEncoder{Encoder: base}, nil
	}
	rules, err := compileRules(cfg)
	if err != nil {
		return nil, err
	}
	return &RedactingEncoder{Encoder: base, rules: rules}, nil
}

// EncodeEntry applies the redaction rules to every field. Cores attach
// fields here rather than through the ObjectEncoder methods, so this
// override is what puts the rules on the logging path.
func (e *RedactingEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if e.rules == nil {
		return e.Encoder.EncodeEntry(entry, fields)
	}
	clone := e.Clone().(*RedactingEncoder)
	for i := range fields {
		fields[i].AddTo(clone)
	}
	return clone.Encoder.EncodeEntry(entry, nil)
}

// AddString redacts by field name first, then by value pattern.
func (e *RedactingEncoder) AddString(key, val string) {
	if e.rules != nil {
		if e.rules.matchKey(key) {
			e.Encoder.AddString(key, "[REDACTED]")
			return
		}
		if e.rules.matchValue(val) {
			e.Encoder.AddString(key, "[REDACTED:pattern]")
			return
		}
	}
	e.Encoder.AddString(key, val)
}

// AddByteString redacts by field name.
func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.rules != nil && e.rules.matchKey(key) {
		e.Encoder.AddByteString(key, []byte("[REDACTED]"))
		return
	}
	e.Encoder.AddByteString(key, val)
}

// AddBinary redacts by field name.
func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.rules != nil && e.rules.matchKey(key) {
		e.Encoder.AddBinary(key, []byte("[REDACTED]"))
		return
	}
	e.Encoder.AddBinary(key, val)
}

// AddReflected replaces the whole value when the key is sensitive. Deep
// inspection of reflected structs is out of scope; use explicit
// zap.Object marshalers for those.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.rules != nil && e.rules.matchKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

// AddArray redacts by field name.
func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.rules != nil && e.rules.matchKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

// AddObject redacts by field name.
func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.rules != nil && e.rules.matchKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// Clone copies the encoder; the compiled rules are shared.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), rules: e.rules}
}
