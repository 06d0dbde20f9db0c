package octree

import (
	"fmt"
	"io"
	"strings"

	"github.com/aukilabs/blobtree/geometry"
)

// debug writes one line per node, indented by depth.
func (n *node[T]) debug(w io.Writer, region geometry.Box, octant, depth int) {
	indent := strings.Repeat("  ", depth)

	label := "root"
	if octant >= 0 {
		label = fmt.Sprintf("octant %d", octant)
	}

	if n == nil {
		fmt.Fprintf(w, "%s%s: empty\n", indent, label)
		return
	}

	switch n.typ {
	case leafNode:
		fmt.Fprintf(w, "%s%s: leaf point=(%g, %g, %g) extent=%v\n",
			indent,
			label,
			n.point.X, n.point.Y, n.point.Z,
			n.bounds,
		)

	case branchNode:
		fmt.Fprintf(w, "%s%s: branch depth=%d size=%d region=%v hull=%v\n",
			indent,
			label,
			depth,
			n.size,
			region,
			n.hull,
		)

		subboxes := geometry.Subboxes(region)
		for i, c := range n.children {
			if c == nil {
				continue
			}
			c.debug(w, subboxes[i], i, depth+1)
		}
	}
}
