// Package testutil provides testing utilities for the oauth2-server library:
// a controllable clock, fixtures for storage rows and clients, assertion
// helpers, and a conformance suite every storage.Backend must pass.
package testutil
