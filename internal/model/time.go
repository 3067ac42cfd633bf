package model

import (
	"fmt"
	"time"
)

// localTimeFormat renders timestamps without timezone noise for display
// surfaces.
const localTimeFormat = "2006-01-02 15:04:05"

// LocalTime renders as "YYYY-MM-DD HH:MM:SS" in JSON responses.
type LocalTime time.Time

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", time.Time(t).Format(localTimeFormat))), nil
}

// String returns the display form.
func (t LocalTime) String() string {
	return time.Time(t).Format(localTimeFormat)
}
