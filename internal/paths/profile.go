package paths

import (
	"fmt"
	"regexp"
)

const DefaultProfile = "main"

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name conforms to profile naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid profile name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// Resolve determines the active profile using precedence:
// 1. flagOverride (--profile flag)
// 2. configured default_profile (config file or SMARTCART_PROFILE)
// 3. "main"
func Resolve(flagOverride, configured string) (string, error) {
	name := DefaultProfile
	switch {
	case flagOverride != "":
		name = flagOverride
	case configured != "":
		name = configured
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}
