// Package secrets redacts credentials from file content before it is
// embedded or stored in a vector collection.
//
// Rules are regular expressions with optional keyword prefilters. A match
// that also matches an allow-list pattern is left alone.
package secrets
