package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks records created locally that the backend has not
// confirmed yet.
const TempIDPrefix = "temp_"

// NewTempID returns a temporary identifier for an optimistic record.
func NewTempID(now time.Time) string {
	return fmt.Sprintf("%s%d_%s", TempIDPrefix, now.UnixMilli(), uuid.NewString()[:8])
}

// IsTempID reports whether id belongs to a record pending sync.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}
