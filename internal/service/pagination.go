package service

const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

// clampPage normalises offset pagination: skip is at least 0 and take is in [1, MaxPageSize].
// A take of 0 selects DefaultPageSize.
func clampPage(skip, take int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	switch {
	case take == 0:
		take = DefaultPageSize
	case take < 1:
		take = 1
	case take > MaxPageSize:
		take = MaxPageSize
	}
	return skip, take
}
