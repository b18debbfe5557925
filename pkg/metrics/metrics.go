// Package metrics exports the counters of mounted volumes to prometheus.
package metrics

import (
	"strconv"

	"github.com/bgrewell/udf-kit/pkg/volume"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace       = "udf"
	volumeSubsystem = "volume"
	vatSubsystem    = "vat_cache"

	volumeLabelKey    = "volume"
	partitionLabelKey = "partition"
)

// StatsSource is what the collector reads. *volume.Volume implements it.
type StatsSource interface {
	Label() string
	Stats() volume.Stats
}

// Collector reports the counters of one volume each time it is scraped.
type Collector struct {
	src StatsSource

	descriptorReads    *prometheus.Desc
	descriptorFailures *prometheus.Desc
	inodeHits          *prometheus.Desc
	inodeMisses        *prometheus.Desc
	inodeEntries       *prometheus.Desc

	vatHits      *prometheus.Desc
	vatMisses    *prometheus.Desc
	vatInserts   *prometheus.Desc
	vatEvictions *prometheus.Desc
	vatEntries   *prometheus.Desc
	vatSlots     *prometheus.Desc
}

func NewCollector(src StatsSource) *Collector {
	volumeDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, volumeSubsystem, name), help,
			[]string{volumeLabelKey}, nil)
	}
	vatDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, vatSubsystem, name), help,
			[]string{volumeLabelKey, partitionLabelKey}, nil)
	}
	return &Collector{
		src:                src,
		descriptorReads:    volumeDesc("descriptor_reads_total", "Tagged descriptors read"),
		descriptorFailures: volumeDesc("descriptor_failures_total", "Tagged descriptors that failed verification or could not be read"),
		inodeHits:          volumeDesc("inode_cache_hits_total", "Inode lookups served from the inode cache"),
		inodeMisses:        volumeDesc("inode_cache_misses_total", "Inode lookups that read the file entry"),
		inodeEntries:       volumeDesc("inode_cache_entries", "Inodes held in the inode cache"),
		vatHits:            vatDesc("hits_total", "Virtual block translations served from the cache"),
		vatMisses:          vatDesc("misses_total", "Virtual block translations that read the VAT"),
		vatInserts:         vatDesc("inserts_total", "Translations stored in the cache"),
		vatEvictions:       vatDesc("evictions_total", "Cached translations displaced by colliding inserts"),
		vatEntries:         vatDesc("entries", "Translations held in the cache"),
		vatSlots:           vatDesc("slots", "Capacity of the cache"),
	}
}

// MustRegister registers a collector for src with the default registry.
func MustRegister(src StatsSource) *Collector {
	c := NewCollector(src)
	prometheus.MustRegister(c)
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.descriptorReads, c.descriptorFailures, c.inodeHits, c.inodeMisses, c.inodeEntries,
		c.vatHits, c.vatMisses, c.vatInserts, c.vatEvictions, c.vatEntries, c.vatSlots,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	label := c.src.Label()
	st := c.src.Stats()

	ch <- prometheus.MustNewConstMetric(c.descriptorReads, prometheus.CounterValue, float64(st.DescriptorReads), label)
	ch <- prometheus.MustNewConstMetric(c.descriptorFailures, prometheus.CounterValue, float64(st.DescriptorFailures), label)
	ch <- prometheus.MustNewConstMetric(c.inodeHits, prometheus.CounterValue, float64(st.InodeCacheHits), label)
	ch <- prometheus.MustNewConstMetric(c.inodeMisses, prometheus.CounterValue, float64(st.InodeCacheMisses), label)
	ch <- prometheus.MustNewConstMetric(c.inodeEntries, prometheus.GaugeValue, float64(st.InodeCacheEntries), label)

	for ref, vs := range st.VAT {
		partition := strconv.Itoa(int(ref))
		ch <- prometheus.MustNewConstMetric(c.vatHits, prometheus.CounterValue, float64(vs.Hits), label, partition)
		ch <- prometheus.MustNewConstMetric(c.vatMisses, prometheus.CounterValue, float64(vs.Misses), label, partition)
		ch <- prometheus.MustNewConstMetric(c.vatInserts, prometheus.CounterValue, float64(vs.Inserts), label, partition)
		ch <- prometheus.MustNewConstMetric(c.vatEvictions, prometheus.CounterValue, float64(vs.Evictions), label, partition)
		ch <- prometheus.MustNewConstMetric(c.vatEntries, prometheus.GaugeValue, float64(vs.Entries), label, partition)
		ch <- prometheus.MustNewConstMetric(c.vatSlots, prometheus.GaugeValue, float64(vs.Slots), label, partition)
	}
}
