package bounty

// Exchange is the query and settlement surface shared by the registry and
// the factory. Callers address requests by id in both variants.
type Exchange interface {
	Submit(caller [20]byte, id [32]byte) error
	Reclaim(caller [20]byte, id [32]byte) error
	IsExpired(id [32]byte) (bool, error)
	Get(id [32]byte) (*BountyRequest, error)
	Deadline(id [32]byte) (int64, error)
}

var (
	_ Exchange = (*Registry)(nil)
	_ Exchange = (*Factory)(nil)
)
