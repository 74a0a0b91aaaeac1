package snapshot

import (
	"math"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mcdev12/majorityrules/go/internal/tx"
)

type decoder struct {
	fields   []byte
	problems []DecodeError
}

func (d *decoder) problem(field, reason string) {
	d.problems = append(d.problems, DecodeError{Field: field, Reason: reason})
}

// Decode converts raw object fields into a Game. Numbers may arrive as JSON
// numbers or decimal strings.
func Decode(id string, version uint64, fields []byte) Game {
	d := &decoder{fields: fields}
	if !gjson.ValidBytes(fields) {
		d.problem("*", "invalid json")
		d.fields = []byte("{}")
	}

	g := Game{
		ID:            id,
		Version:       version,
		Tier:          uint8(d.unsigned("tier", math.MaxUint8)),
		Status:        Status(d.unsigned("status", uint64(StatusCancelled))),
		Round:         d.unsigned("current_round", math.MaxUint64),
		Players:       d.addresses("players"),
		Eliminated:    d.addresses("eliminated"),
		PrizePool:     d.unsigned("prize_pool", math.MaxUint64),
		Asker:         tx.NormalizeAddress(d.str("current_questioner")),
		QuestionAsked: d.boolean("question_asked"),
		Question: Question{
			Text:    d.str("question_text"),
			OptionA: d.str("option_a"),
			OptionB: d.str("option_b"),
			OptionC: d.str("option_c"),
		},
		Answers: d.answers("player_answers"),
	}
	if ms := d.unsigned("deadline", math.MaxInt64); ms > 0 {
		g.Deadline = time.UnixMilli(int64(ms))
	}
	g.Problems = d.problems
	return g
}

func (d *decoder) get(field string) (gjson.Result, bool) {
	r := gjson.GetBytes(d.fields, field)
	if !r.Exists() || r.Type == gjson.Null {
		d.problem(field, "missing")
		return r, false
	}
	return r, true
}

func (d *decoder) unsigned(field string, limit uint64) uint64 {
	r, ok := d.get(field)
	if !ok {
		return 0
	}
	v, ok := parseUint(r)
	if !ok {
		d.problem(field, "not an unsigned integer: "+r.Raw)
		return 0
	}
	if v > limit {
		d.problem(field, "out of range: "+r.Raw)
		return 0
	}
	return v
}

func parseUint(r gjson.Result) (uint64, bool) {
	switch r.Type {
	case gjson.Number:
		v, err := strconv.ParseUint(r.Raw, 10, 64)
		return v, err == nil
	case gjson.String:
		v, err := strconv.ParseUint(r.Str, 10, 64)
		return v, err == nil
	default:
		return 0, false
	}
}

func (d *decoder) str(field string) string {
	r, ok := d.get(field)
	if !ok {
		return ""
	}
	if r.Type != gjson.String {
		d.problem(field, "not a string")
		return ""
	}
	return r.Str
}

func (d *decoder) boolean(field string) bool {
	r, ok := d.get(field)
	if !ok {
		return false
	}
	switch r.Type {
	case gjson.True:
		return true
	case gjson.False:
		return false
	}
	d.problem(field, "not a bool")
	return false
}

func (d *decoder) addresses(field string) []string {
	out := []string{}
	r, ok := d.get(field)
	if !ok {
		return out
	}
	if !r.IsArray() {
		d.problem(field, "not a list")
		return out
	}
	for _, item := range r.Array() {
		if item.Type != gjson.String || item.Str == "" {
			d.problem(field, "skipped non-address entry")
			continue
		}
		out = append(out, tx.NormalizeAddress(item.Str))
	}
	return out
}

// answers accepts either a plain {address: code} object or a map encoded as
// {"contents": [{"key": address, "value": code}]}, optionally nested under
// "fields" at either level.
func (d *decoder) answers(field string) map[string]uint8 {
	out := map[string]uint8{}
	r, ok := d.get(field)
	if !ok {
		return out
	}
	if !r.IsObject() {
		d.problem(field, "not an object")
		return out
	}

	contents := r.Get("contents")
	if !contents.Exists() {
		contents = r.Get("fields.contents")
	}
	if contents.Exists() {
		if !contents.IsArray() {
			d.problem(field, "contents is not a list")
			return out
		}
		for _, entry := range contents.Array() {
			if inner := entry.Get("fields"); inner.IsObject() {
				entry = inner
			}
			d.answer(field, out, entry.Get("key"), entry.Get("value"))
		}
		return out
	}

	r.ForEach(func(key, value gjson.Result) bool {
		d.answer(field, out, key, value)
		return true
	})
	return out
}

func (d *decoder) answer(field string, out map[string]uint8, key, value gjson.Result) {
	if key.Type != gjson.String || key.Str == "" {
		d.problem(field, "answer without player address")
		return
	}
	code, ok := parseUint(value)
	if !ok || code > math.MaxUint8 {
		d.problem(field, "answer code is not a small integer: "+value.Raw)
		return
	}
	out[tx.NormalizeAddress(key.Str)] = uint8(code)
}
