// Package config manages user-level settings stored at ~/.xwalk/config.yaml,
// overlaid by XWALK_* environment variables and an optional .env file. It
// also resolves the runtime download URL once per process.
package config
