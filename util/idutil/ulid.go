package idutil

import "github.com/oklog/ulid/v2"

// Generate time-ordered id with 26 characters.
//
// Ids generated later in time are ordered after the earlier ones, ids generated within the same
// millisecond are ordered randomly. Thread safe. Can be used in distributed environment.
func New() (id string) {
	return ulid.Make().String()
}
