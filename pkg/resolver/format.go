package resolver

import (
	"path"
	"strconv"
	"strings"
	"time"
)

// Recording holds the fields FormatPath can substitute.
type Recording struct {
	Title       string
	Subtitle    string
	Description string
	Category    string
	RecGroup    string
	Hostname    string
	ChanID      int64

	StartTime       time.Time
	EndTime         time.Time
	ProgStart       time.Time
	ProgEnd         time.Time
	OriginalAirDate time.Time

	// Basename is the stored file name; its extension is appended
	Basename string
}

// hostileChars are replaced when FormatPath is given a replacement.
var hostileChars = []string{`\`, ":", "*", "?", `"`, "<", ">", "|"}

// FormatPath expands the tags of pattern from rec and appends the extension
// of rec.Basename.
//
// Field tags: %T title, %S subtitle, %R description, %C category,
// %U recording group, %hn hostname, %c channel id. Slashes in field values
// become dashes.
//
// Time tags use a prefix per timestamp: % start, %e end, %p programme start,
// %pe programme end, followed by y Y (year), n m (month), j d (day), H h
// (24 and 12 hour), i (minute), s (second), a A (am/pm). %o followed by
// y Y n m j d formats the original air date.
//
// %- is a literal dash and %% a literal percent sign. When replace is not
// empty, characters that are invalid in Windows file names are replaced
// with it.
func FormatPath(pattern string, rec Recording, replace string) string {
	field := func(v string) string {
		return strings.ReplaceAll(v, "/", "-")
	}

	// Longer tags must precede their prefixes: the replacer tries
	// arguments in order at each position.
	pairs := []string{
		"%%", "%",
		"%-", "-",
		"%hn", field(rec.Hostname),
	}
	for _, ts := range []struct {
		prefix string
		t      time.Time
	}{
		{"%pe", rec.ProgEnd},
		{"%p", rec.ProgStart},
		{"%e", rec.EndTime},
	} {
		pairs = append(pairs, timeTags(ts.prefix, ts.t)...)
	}
	pairs = append(pairs, dateTags("%o", rec.OriginalAirDate)...)
	pairs = append(pairs,
		"%T", field(rec.Title),
		"%S", field(rec.Subtitle),
		"%R", field(rec.Description),
		"%C", field(rec.Category),
		"%U", field(rec.RecGroup),
		"%c", strconv.FormatInt(rec.ChanID, 10),
	)
	pairs = append(pairs, timeTags("%", rec.StartTime)...)

	out := strings.NewReplacer(pairs...).Replace(pattern)
	if ext := path.Ext(rec.Basename); ext != "" {
		out += ext
	}

	if replace != "" {
		for _, c := range hostileChars {
			out = strings.ReplaceAll(out, c, replace)
		}
	}
	return out
}

func dateTags(prefix string, t time.Time) []string {
	return []string{
		prefix + "y", t.Format("06"),
		prefix + "Y", t.Format("2006"),
		prefix + "n", t.Format("01"),
		prefix + "m", t.Format("01"),
		prefix + "j", t.Format("02"),
		prefix + "d", t.Format("02"),
	}
}

func timeTags(prefix string, t time.Time) []string {
	return append(dateTags(prefix, t),
		prefix+"H", t.Format("15"),
		prefix+"h", t.Format("03"),
		prefix+"i", t.Format("04"),
		prefix+"s", t.Format("05"),
		prefix+"a", t.Format("pm"),
		prefix+"A", t.Format("PM"),
	)
}
