package id

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// DefaultNodeID is used when New is called before Init, or after Init failed.
const DefaultNodeID int64 = 0

var (
	node *snowflake.Node
	once sync.Once

	defaultNode = sync.OnceValue(func() *snowflake.Node {
		// Node 0 is always in range, so NewNode cannot fail here.
		n, _ := snowflake.NewNode(DefaultNodeID)
		return n
	})
)

// Init initializes the Snowflake node. Each binary uses its own node ID
// (server=1, worker=2, bot=3) so run and event IDs never collide.
// Only the first call (or first New) picks the node.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

func current() *snowflake.Node {
	once.Do(func() {
		node = defaultNode()
	})
	if node == nil {
		return defaultNode()
	}
	return node
}

// New returns a time-ordered unique ID.
func New() int64 {
	return current().Generate().Int64()
}

// NewString is New formatted for places that carry IDs as text
// (stream message fields, HTTP responses).
func NewString() string {
	return fmt.Sprintf("%d", New())
}
