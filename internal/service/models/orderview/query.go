package orderview

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ListQuery holds paging parameters for listing order views.
type ListQuery struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Normalize clamps the query to sane bounds.
func (q ListQuery) Normalize() ListQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	return q
}
