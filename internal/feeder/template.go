package feeder

import "strings"

// SubstitutePlaceholders replaces every {{field}} in template with the
// record's value. Unknown fields are left as written.
func SubstitutePlaceholders(template string, record Record) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	result := template
	for key, value := range record {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}
