// Package version compares installed and required runtime versions. Compare is
// total: versions that are not semver (for example four-part runtime builds
// such as 23.53.589.4) are ordered segment by segment instead of failing.
// Validate rejects strings that cannot name a required version.
package version
