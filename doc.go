// Package synapse embeds a node of a loop-safe key lookup and replication
// overlay. A node routes GET and PUT operations through its membership view,
// fans searches out to peers it judges worth asking, and drops branches
// whose ttl runs out or whose tag it has already processed.
//
//	n, err := synapse.New(
//		synapse.WithAddress("10.0.0.1:7946"),
//		synapse.WithPeers("P1", "P2", "P3"),
//	)
//	if err != nil { ... }
//	defer n.Close()
//
//	_, _ = n.Put(ctx, "k", []byte("v"))
//	v, err := n.Get(ctx, "k")
package synapse
