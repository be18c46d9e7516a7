/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package testutil

// MockT records failures instead of stopping the test, so helpers can be checked for both outcomes.
type MockT struct {
	Failed bool
	Format string
	Args   []interface{}
}

func (t *MockT) FailNow() {
	t.Failed = true
}

func (t *MockT) Errorf(format string, args ...interface{}) {
	t.Failed = true
	t.Format, t.Args = format, args
}
