// Package voicecmd extracts symptom readings from dictated text, e.g.
// "pain is 7, slept 8 hours" -> pain_level=7, sleep_hours=8.
package voicecmd

import (
	"regexp"
	"strconv"
	"strings"
)

// Field 症状字段
type Field string

const (
	PainLevel    Field = "pain_level"
	FatigueLevel Field = "fatigue_level"
	Mood         Field = "mood"
	SleepHours   Field = "sleep_hours"
	Appetite     Field = "appetite"
	Energy       Field = "energy"
	Temperature  Field = "temperature"
)

// Limit 字段取值范围（闭区间）
type Limit struct {
	Min, Max float64
}

var Limits = map[Field]Limit{
	PainLevel:    {1, 10},
	FatigueLevel: {1, 10},
	Mood:         {1, 10},
	SleepHours:   {0, 16},
	Appetite:     {1, 10},
	Energy:       {1, 10},
	Temperature:  {90, 115},
}

type pattern struct {
	field Field
	re    *regexp.Regexp
}

const (
	number   = `(\d+(?:\.\d+)?)`
	outOf    = `(?:\s+out\s+of\s+\d+)?\b`
	optional = `\s+(?:a\s+)?`
)

// Patterns are tried in order; each field matches at most once.
var patterns = []pattern{
	{PainLevel, regexp.MustCompile(`(?i)\b(?:pain|painful|hurting|aching|hurt)(?:\s+(?:is|level|score|at|rating|of|today))?` + optional + number + outOf)},
	{FatigueLevel, regexp.MustCompile(`(?i)\b(?:fatigue|fatigued|tired|tiredness|exhausted|exhaustion|weary)(?:\s+(?:is|level|score|at|rating))?` + optional + number + outOf)},
	{Mood, regexp.MustCompile(`(?i)\b(?:mood|feeling|emotional|spirit|spirits)(?:\s+(?:is|are|was|at|today|score|rating))?` + optional + number + outOf)},
	{SleepHours, regexp.MustCompile(`(?i)\b(?:slept|sleep|sleeping|got)\s+(?:about\s+|around\s+|only\s+|just\s+)?` + number + `\s+(?:hours?|hrs?)(?:\s+of\s+sleep)?\b`)},
	{Appetite, regexp.MustCompile(`(?i)\b(?:appetite|hungry|hunger|eating|food)(?:\s+(?:is|was|level|score|at|rating))?` + optional + number + outOf)},
	{Energy, regexp.MustCompile(`(?i)\b(?:energy|energetic|stamina|vitality)(?:\s+(?:is|was|level|score|at|today))?` + optional + number + outOf)},
	{Temperature, regexp.MustCompile(`(?i)\b(?:temperature|temp|fever)\s+(?:is\s+|of\s+|at\s+)?` + number + `\s*(?:degrees?|°[FC]?)?\b`)},
}

var (
	punctuation = regexp.MustCompile(`[,;.!?]+\s*`)
	spaces      = regexp.MustCompile(`\s{2,}`)
)

// Result 解析结果：识别出的字段与剩余文本
type Result struct {
	Fields    map[Field]float64
	Remaining string
}

// Matched reports whether any field was recognised.
func (r Result) Matched() bool { return len(r.Fields) > 0 }

// Parse extracts readings within their limits. Matched phrases are removed
// from the text; out-of-range values are left in place. The remaining text
// has punctuation runs collapsed to single spaces.
func Parse(text string) Result {
	res := Result{Fields: make(map[Field]float64)}
	remaining := text

	for _, p := range patterns {
		loc := p.re.FindStringSubmatchIndex(remaining)
		if loc == nil {
			continue
		}
		val, err := strconv.ParseFloat(remaining[loc[2]:loc[3]], 64)
		if err != nil {
			continue
		}
		lim := Limits[p.field]
		if val < lim.Min || val > lim.Max {
			continue
		}
		res.Fields[p.field] = val
		remaining = strings.TrimSpace(remaining[:loc[0]] + remaining[loc[1]:])
	}

	remaining = punctuation.ReplaceAllString(remaining, " ")
	remaining = spaces.ReplaceAllString(remaining, " ")
	res.Remaining = strings.TrimSpace(remaining)
	return res
}
