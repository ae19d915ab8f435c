// Package bunstore implements ballast.Driver on PostgreSQL through the
// Bun ORM. It maps each collection to a Bun model and interprets commands
// with Bun's query builders, which makes it the right backend when the
// host application already wires its persistence through Bun.
package bunstore
