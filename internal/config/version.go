package config

import (
	"github.com/Masterminds/semver/v3"
)

// FormatVersion is the version of the configuration file format written by this package.
const FormatVersion = "0.1.0"

// formatConstraint accepts any 0.1.x format.
var formatConstraint *semver.Constraints

func init() {
	var err error
	formatConstraint, err = semver.NewConstraint("~0.1")
	if err != nil {
		panic(err)
	}
}

// IsFormatCompatible reports whether a configuration file of the given format version
// can be read. Invalid version strings are not compatible.
func IsFormatCompatible(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return formatConstraint.Check(v)
}
