// Package fakes provides in-memory stand-ins for the Azure SDK clients the
// service talks to. They are safe for concurrent use and record calls so
// tests can assert on interactions.
package fakes
