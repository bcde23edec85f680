package domain

const (
	GenderMale        = "male"
	GenderFemale      = "female"
	GenderNonBinary   = "non-binary"
	GenderUnspecified = "unspecified"
)

// ValidGender reports whether g is a recognized gender category.
func ValidGender(g string) bool {
	switch g {
	case GenderMale, GenderFemale, GenderNonBinary, GenderUnspecified:
		return true
	}
	return false
}

const (
	StatePending = "PENDING"
	StateActive  = "ACTIVE"
	StateExpired = "EXPIRED"
)

const (
	EventJoined = "joined"
	EventMoved  = "moved"
	EventLeft   = "left"
)

const (
	MinAge            = 18
	MaxAge            = 120
	MaxDisplayNameLen = 30
)

// Report outcome reasons returned to the client when a location report
// is not applied.
const (
	ReasonInvalidCoords = "invalid_coordinates"
	ReasonNotRegistered = "not_registered"
	ReasonStale         = "stale_report"
	ReasonRateLimited   = "rate_limited"
	ReasonInternal      = "internal"
)
