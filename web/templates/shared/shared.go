package shared

import "github.com/microcosm-cc/bluemonday"

type Breadcrumb struct {
	Title string
	URL   string
}

var ugcPolicy = bluemonday.UGCPolicy()

// SafeHTML cleans administrator supplied HTML for output
func SafeHTML(s string) string {
	return ugcPolicy.Sanitize(s)
}
