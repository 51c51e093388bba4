// Package util provides small helpers shared by KVDB implementations and the
// server configuration: seeded string hashing and random seed generation.
package util
