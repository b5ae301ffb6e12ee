package datapackage

// License holds the lookup result for a license code.
type License struct {
	URL   string
	Title string
}

// licenses maps the open-data license codes a dataset may declare. Unknown
// codes fall back to a bare entry carrying the code as its title.
var licenses = map[string]License{
	"cc-by": {
		URL:   "https://creativecommons.org/licenses/by/4.0/",
		Title: "Creative Commons Attribution 4.0",
	},
	"cc-by-sa": {
		URL:   "https://creativecommons.org/licenses/by-sa/4.0/",
		Title: "Creative Commons Attribution Share-Alike 4.0",
	},
	"cc0": {
		URL:   "https://creativecommons.org/publicdomain/zero/1.0/",
		Title: "CC0 1.0",
	},
	"ogl-uk": {
		URL:   "https://www.nationalarchives.gov.uk/doc/open-government-licence/version/3/",
		Title: "Open Government Licence 3.0 (United Kingdom)",
	},
	"odc-by": {
		URL:   "https://opendatacommons.org/licenses/by/1.0/",
		Title: "Open Data Commons Attribution License 1.0",
	},
	"odc-pddl": {
		URL:   "https://opendatacommons.org/licenses/pddl/1.0/",
		Title: "Open Data Commons Public Domain Dedication and Licence 1.0",
	},
}

// LicenseDetails looks up a license code.
func LicenseDetails(code string) License {
	if l, ok := licenses[code]; ok {
		return l
	}
	return License{Title: code}
}
