package extract

import (
	"regexp"
	"sort"
	"strings"
)

// Section is a titled part of a clinical note. Offset is the byte position
// of Text within the note.
type Section struct {
	Title  string
	Text   string
	Offset int
}

var sectionTitles = []string{
	"chief complaint",
	"history of present illness",
	"hpi",
	"past medical history",
	"past surgical history",
	"social history",
	"family history",
	"review of systems",
	"allergies",
	"medications on admission",
	"physical exam",
	"physical examination",
	"vital signs",
	"vitals",
	"pertinent results",
	"labs",
	"imaging",
	"brief hospital course",
	"hospital course",
	"assessment and plan",
	"assessment",
	"impression",
	"plan",
	"major surgical or invasive procedure",
	"discharge medications",
	"discharge disposition",
	"discharge diagnosis",
	"discharge diagnoses",
	"discharge condition",
	"discharge instructions",
	"followup instructions",
}

var sectionHeaderRe = buildSectionHeaderRe()

func buildSectionHeaderRe() *regexp.Regexp {
	titles := append([]string(nil), sectionTitles...)
	sort.SliceStable(titles, func(i, j int) bool { return len(titles[i]) > len(titles[j]) })
	for i, t := range titles {
		titles[i] = strings.ReplaceAll(regexp.QuoteMeta(t), " ", `[ \t]+`)
	}
	return regexp.MustCompile(`(?im)^[ \t]*(` + strings.Join(titles, "|") + `)[ \t]*:`)
}

// SplitSections cuts a note at known section headers such as
// "History of Present Illness:". Text before the first header becomes a
// section with an empty title. Sections without any text are skipped.
func SplitSections(text string) []Section {
	locs := sectionHeaderRe.FindAllStringSubmatchIndex(text, -1)

	var sections []Section
	add := func(title string, start, end int) {
		body := text[start:end]
		trimmed := strings.TrimSpace(body)
		if trimmed == "" {
			return
		}
		lead := strings.Index(body, trimmed)
		sections = append(sections, Section{
			Title:  title,
			Text:   trimmed,
			Offset: start + lead,
		})
	}

	if len(locs) == 0 {
		add("", 0, len(text))
		return sections
	}

	add("", 0, locs[0][0])
	for i, loc := range locs {
		title := strings.Join(strings.Fields(text[loc[2]:loc[3]]), " ")
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		add(title, loc[1], end)
	}
	return sections
}
