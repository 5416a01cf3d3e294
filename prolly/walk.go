package prolly

import (
	"context"

	"github.com/nickyhof/TreeDB/hash"
)

// WalkNodes visits root and every node below it, depth first. When visit
// returns false the node's children are skipped.
func WalkNodes(ctx context.Context, ns *NodeStore, root hash.Hash, visit func(hash.Hash) (bool, error)) error {
	descend, err := visit(root)
	if err != nil || !descend {
		return err
	}
	nd, err := ns.Read(ctx, root)
	if err != nil {
		return err
	}
	for _, ref := range nd.refs {
		if err := WalkNodes(ctx, ns, ref, visit); err != nil {
			return err
		}
	}
	return nil
}
