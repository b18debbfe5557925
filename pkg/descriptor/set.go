package descriptor

// VolumeDescriptorSet collects the prevailing descriptors of a volume descriptor sequence.
// When a descriptor is recorded more than once the one with the highest sequence number
// prevails (ECMA-167 3/8.4.3).
type VolumeDescriptorSet struct {
	Primary    *PrimaryVolumeDescriptor
	Logical    *LogicalVolumeDescriptor
	Partitions map[uint16]*PartitionDescriptor
	// Pointers are the volume descriptor pointers met, in order.
	Pointers   []*VolumeDescriptorPointer
	Terminated bool
}

func NewVolumeDescriptorSet() *VolumeDescriptorSet {
	return &VolumeDescriptorSet{Partitions: make(map[uint16]*PartitionDescriptor)}
}

// Add records vd and reports whether it prevailed over what was already held.
func (s *VolumeDescriptorSet) Add(vd VolumeDescriptor) bool {
	switch d := vd.(type) {
	case *PrimaryVolumeDescriptor:
		if s.Primary == nil || d.SequenceNumber() >= s.Primary.SequenceNumber() {
			s.Primary = d
			return true
		}
	case *LogicalVolumeDescriptor:
		if s.Logical == nil || d.SequenceNumber() >= s.Logical.SequenceNumber() {
			s.Logical = d
			return true
		}
	case *PartitionDescriptor:
		cur, ok := s.Partitions[d.PartitionNumber]
		if !ok || d.SequenceNumber() >= cur.SequenceNumber() {
			s.Partitions[d.PartitionNumber] = d
			return true
		}
	case *VolumeDescriptorPointer:
		s.Pointers = append(s.Pointers, d)
		return true
	case *TerminatingDescriptor:
		s.Terminated = true
		return true
	}
	return false
}

// Complete reports whether the set holds what a mount needs.
func (s *VolumeDescriptorSet) Complete() bool {
	return s.Primary != nil && s.Logical != nil && len(s.Partitions) > 0
}

// Partition returns the descriptor of the partition with the given number.
func (s *VolumeDescriptorSet) Partition(number uint16) (*PartitionDescriptor, bool) {
	pd, ok := s.Partitions[number]
	return pd, ok
}
