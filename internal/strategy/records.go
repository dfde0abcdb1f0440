package strategy

// Record is a side-effect-free, tagged snapshot of a strategy's internal
// state (spec §3). Variant names are free-form strings owned by the
// concrete strategy implementation, not the kernel, since strategy bodies
// are external collaborators; the kernel only fixes the envelope shape so
// the record stream has a stable schema to serialize (spec §6).
type Record struct {
	Variant string
	Fields  map[string]any
}

// NewRecord builds a Record, defensively copying fields so the caller's map
// can be reused or mutated afterward without aliasing the snapshot.
func NewRecord(variant string, fields map[string]any) Record {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return Record{Variant: variant, Fields: copied}
}

// NodeRecord is the aggregate per-node, per-step record the simulator
// serializes (spec §6 "Record stream (output)").
type NodeRecord struct {
	Name      string
	Kind      string
	Timestamp float32
	Position  Position

	Estimator       *Record
	BenchEstimators map[string]Record
	Navigator       *Record
	Controller      *Record
	Physics         *Record
}
