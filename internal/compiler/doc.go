// Package compiler turns CUE declarations into ir types.
//
// Two documents are compiled: the module catalog (which code modules the
// factory can install and how to mint through them) and the service
// declaration (the factory's public interface). Both are checked against an
// embedded CUE schema before any field is read, so a typo in a field name is a
// positioned CompileError rather than a silently missing value.
package compiler
