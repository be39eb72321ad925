// Package factory creates token collections: it provisions a fresh unit on
// the host runtime, installs a registry module into it with a startup record,
// and hands control of the unit to the requesting caller.
//
// The factory keeps no record of the units it created. Everything durable
// lives in the host runtime.
package factory
