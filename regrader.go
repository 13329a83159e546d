// Package regrader holds the records shared by the judge, the scoreboard and
// the administrative layer, along with the store contracts they run against.
package regrader

const Version = "v0.3.0"
