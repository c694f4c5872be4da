package log

import (
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Mask replaces one secret pattern with its replacement.
type Mask struct {
	RegExp *regexp.Regexp
	Mask   string
}

func NewMask(cfg MaskConfig) Mask {
	return Mask{RegExp: regexp.MustCompile(cfg.RegExp), Mask: cfg.Mask}
}

// FieldMasker holds all masks for a single field.
type FieldMasker struct {
	Field string // lowercased on construction, empty for fieldless rules
	Masks []Mask
}

func NewFieldMasker(cfg MaskingRuleConfig) FieldMasker {
	fm := FieldMasker{Field: strings.ToLower(cfg.Field), Masks: make([]Mask, 0, len(cfg.Masks))}

	for _, maskCfg := range cfg.Masks {
		fm.Masks = append(fm.Masks, NewMask(maskCfg))
	}
	for _, format := range cfg.Formats {
		switch format {
		case FieldMaskFormatHTTPHeader:
			fm.Masks = append(fm.Masks, NewMask(MaskConfig{`(?i)` + cfg.Field + `: .+?\r\n`, cfg.Field + ": ***\r\n"}))
		case FieldMaskFormatJSON:
			fm.Masks = append(fm.Masks, NewMask(MaskConfig{`(?i)"` + cfg.Field + `"\s*:\s*".*?[^\\]"`, `"` + cfg.Field + `": "***"`}))
		case FieldMaskFormatURLEncoded:
			fm.Masks = append(fm.Masks, NewMask(MaskConfig{`(?i)` + cfg.Field + `\s*=\s*[^&\s]+`, cfg.Field + "=***"}))
		}
	}
	return fm
}

// Masker applies the configured masking rules to strings.
// Field names are prefiltered with an Aho-Corasick automaton,
// so a string that contains none of them is scanned only once
// before all the per-field regexps are skipped.
// Rules without a field name are applied unconditionally.
type Masker struct {
	fieldMasks []FieldMasker
	fieldless  []int   // indexes of fieldMasks with an empty field
	byDictIdx  [][]int // matcher dictionary index -> indexes of fieldMasks
	matcher    *ahocorasick.Matcher
}

func NewMasker(rules []MaskingRuleConfig) *Masker {
	m := &Masker{fieldMasks: make([]FieldMasker, 0, len(rules))}
	dictIdxByField := make(map[string]int)
	var dict []string
	for i, rule := range rules {
		fm := NewFieldMasker(rule)
		m.fieldMasks = append(m.fieldMasks, fm)
		if fm.Field == "" {
			m.fieldless = append(m.fieldless, i)
			continue
		}
		di, ok := dictIdxByField[fm.Field]
		if !ok {
			di = len(dict)
			dictIdxByField[fm.Field] = di
			dict = append(dict, fm.Field)
			m.byDictIdx = append(m.byDictIdx, nil)
		}
		m.byDictIdx[di] = append(m.byDictIdx[di], i)
	}
	m.matcher = ahocorasick.NewStringMatcher(dict)
	return m
}

func (m *Masker) Mask(s string) string {
	if len(m.fieldMasks) == 0 {
		return s
	}

	hits := m.matcher.MatchThreadSafe([]byte(strings.ToLower(s)))
	if len(hits) == 0 && len(m.fieldless) == 0 {
		return s
	}

	// Masks are applied in the order the rules were configured.
	active := make([]bool, len(m.fieldMasks))
	for _, i := range m.fieldless {
		active[i] = true
	}
	for _, di := range hits {
		for _, i := range m.byDictIdx[di] {
			active[i] = true
		}
	}
	for i, fm := range m.fieldMasks {
		if !active[i] {
			continue
		}
		for _, mask := range fm.Masks {
			s = mask.RegExp.ReplaceAllString(s, mask.Mask)
		}
	}
	return s
}

// DefaultMasks is a ready-made rule set for secrets that commonly leak into logs
// of clients talking to payment and auth APIs.
var DefaultMasks = []MaskingRuleConfig{
	{
		Field:   "Authorization",
		Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader},
	},
	{
		Field:   "password",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "client_secret",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "access_token",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "refresh_token",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "api_key",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "pin",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "cardNumber",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON},
	},
}
