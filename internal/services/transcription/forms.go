package transcription

import (
	"sort"
	"strings"
)

// MeetingType selects which metadata fields a form collects.
type MeetingType string

const (
	MeetingSupport    MeetingType = "support"
	MeetingGeneral    MeetingType = "general"
	MeetingConference MeetingType = "conference"
	MeetingPlain      MeetingType = "plain"
)

// DefaultMeetingType is used when no type is given.
const DefaultMeetingType = MeetingSupport

// FormField describes one input of a meeting form.
type FormField struct {
	Key         string
	Label       string
	Placeholder string
}

// FormLayout groups form fields into header lines.
type FormLayout struct {
	Type  MeetingType
	Title string
	Lines [][]FormField
}

var layouts = map[MeetingType]FormLayout{
	MeetingSupport: {
		Type:  MeetingSupport,
		Title: "支援記録",
		Lines: [][]FormField{
			{{Key: "in_charge_name", Label: "担当者"}},
			{{Key: "user_name", Label: "利用者名"}},
			{
				{Key: "session_date", Label: "開催日", Placeholder: "例: 2024年11月29日"},
				{Key: "session_place", Label: "開催場所"},
				{Key: "session_time", Label: "開催時間", Placeholder: "例: 10:00~11:00"},
				{Key: "session_count", Label: "開催回数", Placeholder: "例: 第1回"},
			},
		},
	},
	MeetingGeneral: {
		Type:  MeetingGeneral,
		Title: "議事録",
		Lines: [][]FormField{
			{{Key: "subject", Label: "件名"}},
			{
				{Key: "date_time", Label: "日時", Placeholder: "例: 2024年11月29日 10:00~11:00"},
				{Key: "place", Label: "場所"},
			},
			{{Key: "attendees", Label: "参加者"}},
		},
	},
	MeetingConference: {
		Type:  MeetingConference,
		Title: "担当者会議",
		Lines: [][]FormField{
			{{Key: "meeting_name", Label: "会議名"}},
			{{Key: "user_name", Label: "利用者名"}},
			{
				{Key: "session_date", Label: "開催日", Placeholder: "例: 2024年11月29日"},
				{Key: "session_place", Label: "開催場所"},
				{Key: "session_time", Label: "開催時間", Placeholder: "例: 10:00~11:00"},
			},
			{{Key: "attendees", Label: "出席者"}},
		},
	},
	MeetingPlain: {
		Type:  MeetingPlain,
		Title: "文字起こし",
	},
}

// LookupLayout returns the layout for t. An empty t selects the default.
func LookupLayout(t MeetingType) (FormLayout, bool) {
	if t == "" {
		t = DefaultMeetingType
	}
	l, ok := layouts[t]
	return l, ok
}

// MeetingTypes lists the registered types, default first.
func MeetingTypes() []MeetingType {
	types := make([]MeetingType, 0, len(layouts))
	for t := range layouts {
		if t != DefaultMeetingType {
			types = append(types, t)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return append([]MeetingType{DefaultMeetingType}, types...)
}

// Fields returns every field of the layout in display order.
func (l FormLayout) Fields() []FormField {
	var out []FormField
	for _, line := range l.Lines {
		out = append(out, line...)
	}
	return out
}

// Header builds the metadata header from submitted values. Missing values are
// rendered empty; newlines inside a value are flattened so each HeaderLine
// stays on one text line.
func (l FormLayout) Header(values map[string]string) Header {
	if len(l.Lines) == 0 {
		return nil
	}
	h := make(Header, 0, len(l.Lines))
	for _, line := range l.Lines {
		hl := make(HeaderLine, 0, len(line))
		for _, f := range line {
			hl = append(hl, Field{Label: f.Label, Value: flatten(values[f.Key])})
		}
		h = append(h, hl)
	}
	return h
}

var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func flatten(v string) string {
	return strings.TrimSpace(newlineReplacer.Replace(v))
}
