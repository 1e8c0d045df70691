package reader

import "strings"

// tagSection introduces datadog-style tags in a statsd line.
const tagSection = "|#"

// AddTags appends datadog-style tags to a statsd line. Lines that already
// carry a tag section get the new tags joined onto it.
func AddTags(line string, tags []string) string {
	if len(tags) == 0 {
		return line
	}

	joined := strings.Join(tags, ",")
	if strings.Contains(line, tagSection) {
		return line + "," + joined
	}

	return line + tagSection + joined
}
