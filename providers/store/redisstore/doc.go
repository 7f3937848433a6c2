// Package redisstore keeps graph documents in Redis using go-redis/v9.
//
// Graphs, agents and templates live under separate key spaces
// ("chatflow:graph:<id>", "chatflow:agent:<id>", "chatflow:template:<name>")
// so the same id may exist in each. Saved graphs can be given a TTL with
// [WithTTL]; agents and templates are permanent.
package redisstore
