package extract

// CompleteObjects scans s for every syntactically complete top-level JSON
// object, using depth-tracked brace matching that ignores braces inside
// quoted strings. Nested objects are not reported separately; each
// returned slice element spans one balanced top-level {...} region.
func CompleteObjects(s string) []string {
	var objects []string

	depth := 0
	start := -1
	inString := false
	escapeNext := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escapeNext = true
			case '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			// Quotes outside any object belong to surrounding prose;
			// only track strings once an object has opened.
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					objects = append(objects, s[start:i+1])
					start = -1
				}
			}
		}
	}

	return objects
}

// FirstObject returns the first syntactically complete top-level object
// in s, or false when none exists.
func FirstObject(s string) (string, bool) {
	objects := CompleteObjects(s)
	if len(objects) == 0 {
		return "", false
	}
	return objects[0], true
}
