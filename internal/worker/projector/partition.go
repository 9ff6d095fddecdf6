package projector

import "hash/fnv"

// PartitionStrategy decides which projector instance handles an order.
type PartitionStrategy interface {
	ShouldProcess(orderID string, partitionKey, totalPartitions int) bool
}

// HashPartitionStrategy spreads orders over partitions by FNV-1a hash of
// the order id, so all events of one order land on the same instance.
type HashPartitionStrategy struct{}

func (HashPartitionStrategy) ShouldProcess(orderID string, partitionKey, totalPartitions int) bool {
	if totalPartitions <= 1 {
		return true
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(orderID))

	return int(h.Sum32()%uint32(totalPartitions)) == partitionKey
}
