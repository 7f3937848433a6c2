// Package mongostore persists chatflow state in MongoDB with the official
// v1 driver.
//
// [Store] implements graph.SnapshotStore with one collection per document
// kind. [FollowUpStore] implements followup.Store over the "chat" and
// "pipeline" collections. Every call is bounded by a five second timeout on
// top of the caller's context.
package mongostore
