package volume

import (
	"github.com/bgrewell/udf-kit/pkg/partition"
	"github.com/bgrewell/udf-kit/pkg/vat"
)

// Stats are the observability counters of a mounted volume.
type Stats struct {
	DescriptorReads    uint64 `json:"descriptor_reads" yaml:"descriptor_reads"`
	DescriptorFailures uint64 `json:"descriptor_failures" yaml:"descriptor_failures"`
	InodeCacheHits     uint64 `json:"inode_cache_hits" yaml:"inode_cache_hits"`
	InodeCacheMisses   uint64 `json:"inode_cache_misses" yaml:"inode_cache_misses"`
	InodeCacheEntries  int    `json:"inode_cache_entries" yaml:"inode_cache_entries"`
	// VAT holds the cache counters of each virtual partition, by reference number.
	VAT map[uint16]vat.Stats `json:"vat,omitempty" yaml:"vat,omitempty"`
}

// Stats returns a snapshot of the counters.
func (v *Volume) Stats() Stats {
	st := Stats{
		DescriptorReads:    v.reads.Load(),
		DescriptorFailures: v.failures.Load(),
		InodeCacheHits:     v.inodeHits.Load(),
		InodeCacheMisses:   v.inodeMisses.Load(),
	}
	if v.inodes != nil {
		st.InodeCacheEntries = v.inodes.Len()
	}
	for _, m := range v.translator.Maps() {
		if vm, ok := m.(*partition.Virtual); ok && vm.Cache != nil {
			if st.VAT == nil {
				st.VAT = make(map[uint16]vat.Stats)
			}
			st.VAT[vm.ReferenceNumber] = vm.Cache.Stats()
		}
	}
	return st
}
