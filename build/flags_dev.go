//go:build dev
// +build dev

package build

// Release is set at compile time and indicates which build of the binary was
// compiled.
const Release = "dev"

// DEBUG is a compile-time flag that, when set, causes Critical and Severe to
// panic instead of merely logging.
const DEBUG = true
