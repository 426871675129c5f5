//go:build !(race || asan || msan)

package buildtags

// Instrumented is true if this is an instrumented testing build that is
// likely to be significantly slower (like race or address sanitizer builds).
const Instrumented = false
