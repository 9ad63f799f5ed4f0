package domain

// Staff is one directory entry, keyed by staff code. The directory
// doubles as the intake allow-list: when it is non-empty, reporters
// must present a known code.
type Staff struct {
	Code       string
	FullName   string
	Department string
	Position   string
	Phone      string
}
