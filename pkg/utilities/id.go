package utilities

import (
	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// uidPrefix marks account identifiers so they are recognisable in logs.
const uidPrefix = "u_"

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewUID returns a fresh account uid. Every user creation path must use it.
// A KSUID carries a second-resolution timestamp followed by 128 random bits,
// so two creations racing within the same tick still get distinct values.
func NewUID() string {
	return uidPrefix + NewKSUID()
}

// NewSnowflakeNode returns a snowflake generator for the given node ID.
// An out-of-range node falls back to node 1 instead of failing startup.
func NewSnowflakeNode(nodeID int64) *snowflake.Node {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		// node 1 is always within the default node bit range
		node, _ = snowflake.NewNode(1)
	}
	return node
}
