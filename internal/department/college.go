package department

// College is one college in the roster menu. Departments may list a family
// base, which the menu expands into its groups.
type College struct {
	Key         string
	Name        string
	Departments []string
}

// Group is one of the two macro groups the colleges are split into.
type Group struct {
	Key      string
	Name     string
	Colleges []College
}

// Groups mirrors the college structure of the university.
var Groups = []Group{
	{
		Key:  "hlb",
		Name: "文法商",
		Colleges: []College{
			{Key: "hum", Name: "人文學院", Departments: []string{"81", "82", "83"}},
			{Key: "law", Name: "法律學院", Departments: []string{"71"}},
			{Key: "bus", Name: "商學院", Departments: []string{"79", "80", "77", "78", "84"}},
		},
	},
	{
		Key:  "pse",
		Name: "公社電資",
		Colleges: []College{
			{Key: "pub", Name: "公共事務學院", Departments: []string{"72", "76", "75"}},
			{Key: "soc", Name: "社會科學學院", Departments: []string{"73", "74"}},
			{Key: "eecs", Name: "電機資訊學院", Departments: []string{"87", "85", "86"}},
		},
	},
}

// FindGroup looks a group up by key or name.
func FindGroup(s string) (Group, bool) {
	for _, g := range Groups {
		if g.Key == s || g.Name == s {
			return g, true
		}
	}
	return Group{}, false
}

// FindCollege looks a college up by key or name.
func FindCollege(s string) (College, bool) {
	for _, g := range Groups {
		for _, c := range g.Colleges {
			if c.Key == s || c.Name == s {
				return c, true
			}
		}
	}
	return College{}, false
}

// FamilyName returns the short family name for a base code.
func FamilyName(base string) (string, bool) {
	f, ok := familyOf[base]
	if !ok || f.Base != base {
		return "", false
	}
	return f.Name, true
}
