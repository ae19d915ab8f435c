// Package mongo implements ballast.Driver on MongoDB using the official
// v2 driver. A batch maps to a multi-document transaction on a session,
// which requires a replica set or sharded deployment; standalone servers
// do not support transactions.
//
// Collection members are individual documents. Insertion order for lists
// and queues follows ObjectID order, and the maintenance sweep removes
// documents whose expire_at has passed.
package mongo
