// Package testutil holds helpers shared by switchboard's tests. It is only
// imported from _test.go files.
package testutil
