package uid

import (
	"fmt"
	"hash/fnv"
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
)

// Snowflake generates time-ordered int64 ids, used as audit event keys.
type Snowflake struct {
	node *snowflake.Node
}

// NewSnowflake builds a generator for the given node number (0-1023). A
// negative node is derived from the hostname and process id, which keeps
// replicas apart without coordination in most deployments.
func NewSnowflake(node int64) (*Snowflake, error) {
	if node < 0 {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("uid: snowflake node from hostname: %w", err)
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(host + "/" + strconv.Itoa(os.Getpid())))
		node = int64(h.Sum32() % 1024)
	}

	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, err
	}
	return &Snowflake{node: n}, nil
}

// Generate returns the next id.
func (s *Snowflake) Generate() int64 {
	return s.node.Generate().Int64()
}
