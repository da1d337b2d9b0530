package mesh

// Wire records exchanged between ranks during construction. One structured
// message per logical exchange replaces the original flat buffer triple; the
// cluster fabric serializes them with gob, so all fields are exported.

// Tags of the construction phases. Each phase uses its own tag so a
// straggler from one round can never be matched by the next; rounds that
// receive from wildcard sources additionally end with a barrier.
const (
	tagElemBatch = iota + 1
	tagHaloRequest
	tagHaloReply
	tagScheduleIDs
)

// elemRecord describes one volume element in the ownership transfer. Face
// neighbor and periodic data travel along for halo discovery on the
// receiving side but are not stored in the assembled element.
type elemRecord struct {
	Kind      GeometryType
	NPolyGrid int
	NPolySol  int
	NDOFsGrid int
	NDOFsSol  int
	NFaces    int

	JacConstant bool

	ElemIDGlobal        int64
	OffsetDOFsSolGlobal int64

	NodeIDs []int64

	FaceNeighbors   []int64
	FacePeriodic    []int
	FaceJacConstant []bool
}

type nodeRecord struct {
	GlobalID      int64
	PeriodicIndex int
	Coor          [3]float64
}

type surfRecord struct {
	Kind      GeometryType
	NPolyGrid int
	NDOFsGrid int

	VolElemIDGlobal   int64
	BoundElemIDGlobal int64

	NodeIDs []int64
}

// elementBatch is the ownership-transfer message: everything one rank sends
// another in the redistribution round. Bound is indexed by marker; node IDs
// are deduplicated before packing so no coordinate travels twice.
type elementBatch struct {
	Elems []elemRecord
	Nodes []nodeRecord
	Bound [][]surfRecord
}

// haloRequestItem asks the donor rank for one halo element. LocalIndex is
// the requester's slot in its element array; the donor echoes it back so
// the reply can be stored without re-matching.
type haloRequestItem struct {
	ElemIDGlobal  int64
	PeriodicIndex int
	LocalIndex    int
}

type haloRequest struct {
	Items []haloRequestItem
}

// haloElemRecord is the donor's answer for one requested halo element.
type haloElemRecord struct {
	LocalIndex    int
	PeriodicIndex int
	RankOriginal  int

	Kind      GeometryType
	NPolyGrid int
	NPolySol  int
	NDOFsGrid int
	NDOFsSol  int
	NFaces    int

	ElemIDGlobal int64
	NodeIDs      []int64
}

// haloReply carries the element answers plus the deduplicated
// (node, periodic index) point list they reference, with coordinates.
type haloReply struct {
	Elems []haloElemRecord
	Nodes []nodeRecord
}

// scheduleRequest carries the global IDs of the halo elements one rank
// holds from its peer, in the order the requester records its receive DOFs.
type scheduleRequest struct {
	ElemIDs []int64
}
